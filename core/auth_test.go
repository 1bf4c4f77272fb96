package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type AuthFixture struct {
	*UserFixture
	authStore AuthStore
}

func NewAuthFixture(t *testing.T, opts ...AuthOption) *AuthFixture {
	userFixture := NewUserFixture(t)
	return &AuthFixture{
		UserFixture: userFixture,
		authStore:   NewJWTAuthStore(userFixture.userStore, []byte("secret"), opts...),
	}
}

func TestNewSession(t *testing.T) {

	t.Run("valid credentials", func(t *testing.T) {
		f := NewAuthFixture(t)
		defer f.tearDown()
		require.Nil(t, f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"}))

		session, err := f.authStore.NewSession(f.ctx, "alice", "secret")

		require.Nil(t, err)
		require.NotNil(t, session)
		assert.Equal(t, "alice", session.Username)
		assert.NotEmpty(t, session.Token)
		assert.True(t, session.ExpiresAt.After(time.Now()))
	})

	t.Run("wrong password", func(t *testing.T) {
		f := NewAuthFixture(t)
		defer f.tearDown()
		require.Nil(t, f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"}))

		session, err := f.authStore.NewSession(f.ctx, "alice", "wrong")

		require.NotNil(t, err)
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("unknown username", func(t *testing.T) {
		f := NewAuthFixture(t)
		defer f.tearDown()

		session, err := f.authStore.NewSession(f.ctx, "nobody", "secret")

		require.NotNil(t, err)
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrBadCredentials)
	})
}

func TestSession(t *testing.T) {

	t.Run("valid token", func(t *testing.T) {
		f := NewAuthFixture(t)
		defer f.tearDown()
		require.Nil(t, f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"}))
		issued, err := f.authStore.NewSession(f.ctx, "alice", "secret")
		require.Nil(t, err)

		session, err := f.authStore.Session(f.ctx, issued.Token)

		require.Nil(t, err)
		assert.Equal(t, "alice", session.Username)
		assert.Equal(t, issued.Token, session.Token)
	})

	t.Run("expired token", func(t *testing.T) {
		f := NewAuthFixture(t, WithTokenExp(-time.Hour))
		defer f.tearDown()
		require.Nil(t, f.userStore.CreateUser(f.ctx, User{Username: "alice", Password: "secret"}))
		issued, err := f.authStore.NewSession(f.ctx, "alice", "secret")
		require.Nil(t, err)

		session, err := f.authStore.Session(f.ctx, issued.Token)

		require.NotNil(t, err)
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("garbage token", func(t *testing.T) {
		f := NewAuthFixture(t)
		defer f.tearDown()

		session, err := f.authStore.Session(f.ctx, "garbage")

		require.NotNil(t, err)
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}
