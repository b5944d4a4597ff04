package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// RebuildResult summarizes the ledger changes made for one event.
type RebuildResult struct {
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Deleted      int        `json:"deleted"`
	EarliestDate *time.Time `json:"earliest_date,omitempty"`
}

func (r RebuildResult) UpdateCount() int {
	return r.Inserted + r.Updated + r.Deleted
}

// Engine keeps the ledger consistent with event data. It never opens or
// commits transactions; the Store passed to each call carries the caller's.
type Engine struct {
	batchSize int
}

func NewEngine(batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{batchSize: batchSize}
}

// RebuildEvent brings the ledger, the running balances and the user
// aggregates in line with the current data of one event.
func (e *Engine) RebuildEvent(ctx context.Context, store Store, eventID int64) (RebuildResult, error) {
	event, err := store.LockEvent(ctx, eventID)
	if err != nil {
		return RebuildResult{}, err
	}

	result, err := e.RebuildEventTransactions(ctx, store, event)
	if err != nil {
		return result, err
	}

	if result.EarliestDate == nil {
		return result, nil
	}

	if _, err := e.RebuildTransactionBalances(ctx, store, *result.EarliestDate); err != nil {
		return result, err
	}
	if err := e.RebuildUserBalances(ctx, store); err != nil {
		return result, err
	}

	return result, nil
}

// RebuildEventTransactions synthesizes the event's entries and reconciles
// them with its stored transactions. Balances are left untouched.
func (e *Engine) RebuildEventTransactions(ctx context.Context, store Store, event Event) (RebuildResult, error) {
	data, err := loadEventData(ctx, store, event)
	if err != nil {
		return RebuildResult{}, err
	}

	if data.Cost != nil {
		if err := refreshMoneyCost(ctx, store, data); err != nil {
			return RebuildResult{}, err
		}
	}

	accounts, err := store.ClearingAccounts(ctx)
	if err != nil {
		return RebuildResult{}, err
	}

	desired, err := Synthesize(data, accounts)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("synthesizing event %d: %w", event.ID, err)
	}

	existing, err := store.ListEventTransactions(ctx, event.ID)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("listing transactions of event %d: %w", event.ID, err)
	}

	if err := store.LockUsers(ctx, involvedUsers(desired, existing)); err != nil {
		return RebuildResult{}, fmt.Errorf("locking users: %w", err)
	}

	rec, err := Reconcile(event.ID, desired, existing)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("reconciling event %d: %w", event.ID, err)
	}

	if err := apply(ctx, store, rec); err != nil {
		return RebuildResult{}, fmt.Errorf("applying ledger changes for event %d: %w", event.ID, err)
	}

	result := RebuildResult{
		Inserted:     len(rec.Inserts),
		Updated:      len(rec.Updates),
		Deleted:      len(rec.Deletes),
		EarliestDate: rec.EarliestDate,
	}
	slog.Debug("rebuilt event transactions",
		"event_id", event.ID,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"deleted", result.Deleted,
	)
	return result, nil
}

// RebuildTransactionBalances recalculates running balances from start on.
func (e *Engine) RebuildTransactionBalances(ctx context.Context, store Store, start time.Time) (int, error) {
	updated, err := RecalculateBalances(ctx, store, start, e.batchSize)
	if err != nil {
		return updated, fmt.Errorf("recalculating balances from %s: %w", start.Format(time.DateOnly), err)
	}
	slog.Debug("recalculated balances", "from", start.Format(time.DateOnly), "updated", updated)
	return updated, nil
}

// RebuildUserBalances refreshes the points and money of every user from the
// last transaction in each currency.
func (e *Engine) RebuildUserBalances(ctx context.Context, store Store) error {
	if err := store.MaterializeUserBalances(ctx); err != nil {
		return fmt.Errorf("materializing user balances: %w", err)
	}
	return nil
}

func loadEventData(ctx context.Context, store Store, event Event) (EventData, error) {
	data := EventData{Event: event}

	switch event.Type {
	case EventLunch, EventSpecial:
		cost, err := store.GetCostDetail(ctx, event.ID)
		if err != nil {
			return data, fmt.Errorf("loading cost detail of event %d: %w", event.ID, err)
		}
		if cost == nil {
			return data, &MissingCostDetailError{EventID: event.ID}
		}
		data.Cost = cost

		data.Participations, err = store.ListParticipations(ctx, event.ID)
		if err != nil {
			return data, fmt.Errorf("loading participations of event %d: %w", event.ID, err)
		}
	case EventTransfer:
		var err error
		data.Transfers, err = store.ListTransfers(ctx, event.ID)
		if err != nil {
			return data, fmt.Errorf("loading transfers of event %d: %w", event.ID, err)
		}
	}

	return data, nil
}

func refreshMoneyCost(ctx context.Context, store Store, data EventData) error {
	var moneyCost float64
	for _, p := range data.Participations {
		moneyCost += p.MoneyCredited
	}
	if nearlyEqual(moneyCost, data.Cost.MoneyCost) {
		return nil
	}
	data.Cost.MoneyCost = moneyCost
	if err := store.UpdateMoneyCost(ctx, data.Event.ID, moneyCost); err != nil {
		return fmt.Errorf("updating money cost of event %d: %w", data.Event.ID, err)
	}
	return nil
}

func apply(ctx context.Context, store Store, rec Reconciliation) error {
	for _, t := range rec.Deletes {
		if err := store.DeleteTransaction(ctx, t.ID); err != nil {
			return err
		}
	}
	for _, t := range rec.Updates {
		if err := store.UpdateTransaction(ctx, t); err != nil {
			return err
		}
	}
	for i := range rec.Inserts {
		if err := store.InsertTransaction(ctx, &rec.Inserts[i]); err != nil {
			return err
		}
	}
	return nil
}

// involvedUsers returns the sorted ids of every user whose balance may
// change. Locking in a fixed order keeps concurrent rebuilds deadlock free.
func involvedUsers(desired []Entry, existing []Transaction) []int64 {
	seen := make(map[int64]bool)
	for _, e := range desired {
		seen[e.UserID] = true
	}
	for _, t := range existing {
		seen[t.UserID] = true
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
