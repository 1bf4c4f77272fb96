package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Session struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AuthStore interface {
	// NewSession verifies the credentials and issues a signed session. It
	// returns ErrBadCredentials when the username or password is wrong.
	NewSession(ctx context.Context, username, password string) (*Session, error)

	// Session verifies the token and returns the session it encodes. It
	// returns ErrUnauthenticated for expired or invalid tokens.
	Session(ctx context.Context, token string) (*Session, error)
}

// JWTAuthStore issues stateless JWT sessions backed by a user store for
// credential checks.
type JWTAuthStore struct {
	tokenExp  time.Duration
	secret    []byte
	userStore UserStore
}

type AuthOption func(*JWTAuthStore)

func WithTokenExp(exp time.Duration) AuthOption {
	return func(a *JWTAuthStore) {
		a.tokenExp = exp
	}
}

func NewJWTAuthStore(userStore UserStore, secret []byte, opts ...AuthOption) *JWTAuthStore {
	auth := &JWTAuthStore{
		tokenExp:  time.Hour * 24,
		secret:    secret,
		userStore: userStore,
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth
}

func (a *JWTAuthStore) NewSession(ctx context.Context, username, password string) (*Session, error) {
	ok, err := a.userStore.ComparePassword(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	token, exp, err := NewToken(username, a.tokenExp, a.secret)
	if err != nil {
		return nil, fmt.Errorf("creating token: %w", err)
	}

	return &Session{
		Username:  username,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (a *JWTAuthStore) Session(ctx context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	return &Session{
		Username:  claims.Username,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
