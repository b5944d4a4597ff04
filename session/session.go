// Package session issues the login tokens carried in the session cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

const (
	CookieName = "session_token"
	DefaultTTL = 7 * 24 * time.Hour
)

// Session binds a random token to a club member until ExpiresAt.
type Session struct {
	ID        uuid.UUID
	UserID    int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Repository interface {
	Create(ctx context.Context, userID int64) (*Session, error)
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID int64) error
}
