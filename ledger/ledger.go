package ledger

import (
	"math"
	"time"
)

// Epsilon is the tolerance below which two amounts are considered equal.
const Epsilon = 1e-6

type Currency string

const (
	Points Currency = "POINTS"
	Money  Currency = "MONEY"
)

// Currencies lists every ledger currency. The two ledgers never mix.
var Currencies = []Currency{Points, Money}

func (c Currency) Valid() bool {
	return c == Points || c == Money
}

// Transaction is one stored ledger row. Every row has a mirror with user and
// contra user swapped and the amount negated.
type Transaction struct {
	ID           int64     `json:"id"`
	Date         time.Time `json:"date"`
	UserID       int64     `json:"user_id"`
	ContraUserID int64     `json:"contra_user_id"`
	Currency     Currency  `json:"currency"`
	Amount       float64   `json:"amount"`
	Balance      float64   `json:"balance"` // running sum per (user, currency) ordered by (date, id)
	EventID      int64     `json:"event_id"`
}

// Entry is a synthesized ledger row that has not been matched to storage yet.
type Entry struct {
	Date         time.Time
	UserID       int64
	ContraUserID int64
	Currency     Currency
	Amount       float64
}

func (e Entry) key() entryKey {
	return entryKey{user: e.UserID, contra: e.ContraUserID, currency: e.Currency}
}

// ClearingAccounts holds the user ids of the System pot and the Andeo
// rounding account, resolved once per rebuild.
type ClearingAccounts struct {
	System int64
	Andeo  int64
}

// Day truncates t to midnight UTC. All ledger dates are whole days.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}
