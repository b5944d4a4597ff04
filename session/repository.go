package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/billbatista/clubledger/database"
	"github.com/google/uuid"
)

type repository struct {
	db  database.Querier
	ttl time.Duration
	now func() time.Time
}

var _ Repository = (*repository)(nil)

type Option func(*repository)

// WithTTL sets how long new sessions stay valid. Non-positive values keep
// DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *repository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *repository) {
		r.now = now
	}
}

func NewRepository(db database.Querier, opts ...Option) *repository {
	r := &repository{db: db, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a session for userID and drops the user's expired ones.
func (r *repository) Create(ctx context.Context, userID int64) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	now := r.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1 AND expires_at <= $2`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("pruning sessions of user %d: %w", userID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.Token, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return s, nil
}

// GetByToken returns the live session for token. Unknown tokens give
// ErrInvalidSession and stale ones ErrExpiredSession.
func (r *repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	var s Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at, created_at FROM sessions WHERE token = $1`, token,
	).Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}

	if s.Expired(r.now()) {
		return nil, ErrExpiredSession
	}
	return &s, nil
}

func (r *repository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (r *repository) DeleteByUserID(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// newToken returns 32 random bytes, URL-safe base64 encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
