package user

import (
	"context"
	"time"
)

// User is a club member or a clearing account. Points and Money are the
// materialized ledger balances and are only written by the ledger engine.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	PointExempt  bool      `json:"point_exempt"`
	Points       float64   `json:"points"`
	Money        float64   `json:"money"`
	CreatedAt    time.Time `json:"created_at"`
}

type Repository interface {
	Register(ctx context.Context, username, email, password string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	VerifyPassword(hashedPassword, password string) error
	UpdateName(ctx context.Context, userID int64, name string) error
	SetPointExempt(ctx context.Context, userID int64, exempt bool) error
	EnsureClearingAccounts(ctx context.Context, usernames ...string) error
}
