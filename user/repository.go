package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billbatista/clubledger/database"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameExists = errors.New("username already exists")
	ErrBlankUsername  = errors.New("username can't be blank")
	ErrInvalidEmail   = errors.New("invalid email format")
	ErrBlankPassword  = errors.New("password can't be blank")
	ErrNotFound       = errors.New("user not found")
)

type repository struct {
	db database.Querier
}

var _ Repository = (*repository)(nil)

func NewRepository(db database.Querier) *repository {
	return &repository{db: db}
}

const userColumns = `id, username, COALESCE(name, ''), email, password_hash, point_exempt, points, money, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.PointExempt,
		&u.Points,
		&u.Money,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) Register(ctx context.Context, username, email, password string) (*User, error) {
	if username == "" {
		return nil, ErrBlankUsername
	}

	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	if password == "" {
		return nil, ErrBlankPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if exists {
		return nil, ErrUsernameExists
	}

	query := `INSERT INTO users (username, email, password_hash, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err = r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return user, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return user, nil
}

// List returns all users with their materialized balances.
func (r *repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *repository) UpdateName(ctx context.Context, userID int64, name string) error {
	query := `UPDATE users SET name = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, name, userID)
	return err
}

// SetPointExempt changes the exemption flag. Events the user takes part in
// only pick up the change when they are rebuilt.
func (r *repository) SetPointExempt(ctx context.Context, userID int64, exempt bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET point_exempt = $1 WHERE id = $2`, exempt, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// EnsureClearingAccounts creates the given accounts if missing. They have no
// password and can't log in.
func (r *repository) EnsureClearingAccounts(ctx context.Context, usernames ...string) error {
	query := `INSERT INTO users (username, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (username) DO NOTHING`
	for _, username := range usernames {
		_, err := r.db.ExecContext(ctx, query, username, username, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("creating clearing account %q: %w", username, err)
		}
	}
	return nil
}
