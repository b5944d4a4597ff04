package ledger

import (
	"context"
	"time"
)

// Store is the unit of work the engine reads and writes through. All calls
// made during one rebuild must share the same database transaction.
type Store interface {
	LockEvent(ctx context.Context, eventID int64) (Event, error)
	LockUsers(ctx context.Context, userIDs []int64) error
	ClearingAccounts(ctx context.Context) (ClearingAccounts, error)

	GetCostDetail(ctx context.Context, eventID int64) (*CostDetail, error)
	ListParticipations(ctx context.Context, eventID int64) ([]Participation, error)
	ListTransfers(ctx context.Context, eventID int64) ([]Transfer, error)
	UpdateMoneyCost(ctx context.Context, eventID int64, moneyCost float64) error

	ListEventTransactions(ctx context.Context, eventID int64) ([]Transaction, error)
	InsertTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error

	// BalanceBefore returns the balance of the user's last transaction in
	// currency dated strictly before date, or 0.
	BalanceBefore(ctx context.Context, userID int64, currency Currency, date time.Time) (float64, error)
	// TransactionsAfter returns up to limit rows ordered by (date, id) that
	// come after the (date, id) cursor.
	TransactionsAfter(ctx context.Context, date time.Time, afterID int64, limit int) ([]Transaction, error)
	UpdateTransactionBalance(ctx context.Context, id int64, balance float64) error

	// MaterializeUserBalances copies every user's latest balance per
	// currency into the users table in one statement.
	MaterializeUserBalances(ctx context.Context) error
}
