package ledger

import (
	"context"
	"fmt"
	"time"
)

const DefaultBatchSize = 1000

// balanceCursor keeps running balances per currency and user while the
// ledger is streamed in (date, id) order.
type balanceCursor struct {
	store    Store
	start    time.Time
	balances map[Currency]map[int64]float64
}

func newBalanceCursor(store Store, start time.Time) *balanceCursor {
	return &balanceCursor{
		store:    store,
		start:    start,
		balances: make(map[Currency]map[int64]float64),
	}
}

func (c *balanceCursor) add(ctx context.Context, t Transaction) (float64, error) {
	users, ok := c.balances[t.Currency]
	if !ok {
		users = make(map[int64]float64)
		c.balances[t.Currency] = users
	}

	balance, ok := users[t.UserID]
	if !ok {
		var err error
		balance, err = c.store.BalanceBefore(ctx, t.UserID, t.Currency, c.start)
		if err != nil {
			return 0, fmt.Errorf("loading opening balance for user %d: %w", t.UserID, err)
		}
	}

	balance += t.Amount
	users[t.UserID] = balance
	return balance, nil
}

// RecalculateBalances re-derives the balance column of every transaction
// dated on or after start and returns how many rows were updated.
func RecalculateBalances(ctx context.Context, store Store, start time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	start = Day(start)
	cursor := newBalanceCursor(store, start)
	date, afterID := start, int64(0)
	updated := 0

	for {
		batch, err := store.TransactionsAfter(ctx, date, afterID, batchSize)
		if err != nil {
			return updated, fmt.Errorf("loading transactions after %s/%d: %w", date.Format(time.DateOnly), afterID, err)
		}

		for _, t := range batch {
			balance, err := cursor.add(ctx, t)
			if err != nil {
				return updated, err
			}
			if !nearlyEqual(balance, t.Balance) {
				if err := store.UpdateTransactionBalance(ctx, t.ID, balance); err != nil {
					return updated, fmt.Errorf("updating balance of transaction %d: %w", t.ID, err)
				}
				updated++
			}
			date, afterID = t.Date, t.ID
		}

		if len(batch) < batchSize {
			return updated, nil
		}
	}
}
