package core

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

type BaseFixture struct {
	ctx      context.Context
	db       *sql.DB
	t        *testing.T
	tearDown func()
}

func NewBaseFixture(t *testing.T) *BaseFixture {

	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	migrationfs := os.DirFS("../migrations")
	goose.SetBaseFS(migrationfs)

	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}

	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	return &BaseFixture{
		ctx: ctx,
		db:  db,
		t:   t,
		tearDown: func() {
			cancel()
			goose.Down(db, ".")
			db.Close()
		},
	}
}

func seedMessages(f *BaseFixture, store MessageStore, inputs ...MessageCreateInput) []Message {
	messages := make([]Message, 0, len(inputs))
	for _, input := range inputs {
		created, err := store.InsertMessage(f.ctx, input)
		if err != nil {
			f.t.Fatal(err)
		}
		messages = append(messages, *created)
	}
	return messages
}
