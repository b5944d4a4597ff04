package ledger

import (
	"math"
	"sort"
	"time"
)

type entryKey struct {
	user     int64
	contra   int64
	currency Currency
}

// Reconciliation is the minimal set of row changes that turns an event's
// stored transactions into its synthesized entries.
type Reconciliation struct {
	Inserts []Transaction
	Updates []Transaction // rows carrying their new date and amount
	Deletes []Transaction

	// EarliestDate is the first date whose balances are affected, or nil
	// when nothing changed.
	EarliestDate *time.Time
}

func (r Reconciliation) Changes() int {
	return len(r.Inserts) + len(r.Updates) + len(r.Deletes)
}

// Reconcile matches desired entries to existing rows sharing the same
// (user, contra user, currency), reusing the lowest ids first. Leftover rows
// are deleted and unmatched entries inserted.
func Reconcile(eventID int64, desired []Entry, existing []Transaction) (Reconciliation, error) {
	for _, e := range desired {
		if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) {
			return Reconciliation{}, &NaNAmountError{UserID: e.UserID, ContraUserID: e.ContraUserID, Currency: e.Currency}
		}
	}

	rows := append([]Transaction(nil), existing...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	queues := make(map[entryKey][]Transaction)
	for _, t := range rows {
		k := entryKey{user: t.UserID, contra: t.ContraUserID, currency: t.Currency}
		queues[k] = append(queues[k], t)
	}

	var r Reconciliation
	touch := func(d time.Time) {
		if r.EarliestDate == nil || d.Before(*r.EarliestDate) {
			d := d
			r.EarliestDate = &d
		}
	}

	for _, e := range desired {
		k := e.key()
		queue := queues[k]
		if len(queue) == 0 {
			r.Inserts = append(r.Inserts, Transaction{
				Date:         e.Date,
				UserID:       e.UserID,
				ContraUserID: e.ContraUserID,
				Currency:     e.Currency,
				Amount:       e.Amount,
				EventID:      eventID,
			})
			touch(e.Date)
			continue
		}

		t := queue[0]
		queues[k] = queue[1:]
		if t.Date.Equal(e.Date) && nearlyEqual(t.Amount, e.Amount) {
			continue
		}
		touch(t.Date)
		touch(e.Date)
		t.Date = e.Date
		t.Amount = e.Amount
		r.Updates = append(r.Updates, t)
	}

	leftover := make(map[int64]bool)
	for _, queue := range queues {
		for _, t := range queue {
			leftover[t.ID] = true
		}
	}
	for _, t := range rows {
		if leftover[t.ID] {
			r.Deletes = append(r.Deletes, t)
			touch(t.Date)
		}
	}

	return r, nil
}
