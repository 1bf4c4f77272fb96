package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type UserFixture struct {
	*BaseFixture
	userStore UserStore
}

func NewUserFixture(t *testing.T) *UserFixture {
	base := NewBaseFixture(t)
	return &UserFixture{
		BaseFixture: base,
		userStore:   NewSQLiteUserStore(base.db),
	}
}

func TestCreateUser(t *testing.T) {

	t.Run("create user successfully", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()

		err := f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"})
		require.Nil(t, err)

		exists, err := f.userStore.Exists(f.ctx, "alice")
		require.Nil(t, err)
		assert.True(t, exists)
	})

	t.Run("duplicated username", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()

		err := f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"})
		require.Nil(t, err)

		err = f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "other"})
		require.NotNil(t, err)
		assert.ErrorIs(t, err, ErrConflictedUser)
	})
}

func TestComparePassword(t *testing.T) {

	t.Run("correct password", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()
		require.Nil(t, f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"}))

		ok, err := f.userStore.ComparePassword(f.ctx, "alice", "secret")
		require.Nil(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()
		require.Nil(t, f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"}))

		ok, err := f.userStore.ComparePassword(f.ctx, "alice", "not-secret")
		require.Nil(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown username is a mismatch not an error", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()

		ok, err := f.userStore.ComparePassword(f.ctx, "nobody", "secret")
		require.Nil(t, err)
		assert.False(t, ok)
	})
}
