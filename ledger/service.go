package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/billbatista/clubledger/database"
	"github.com/billbatista/clubledger/eventlogger"
)

// Auditor receives a record of every committed ledger mutation.
type Auditor interface {
	Log(event eventlogger.Event) bool
}

// Service is the business layer over events. Each mutation runs in its own
// database transaction and rebuilds the event's ledger before committing.
type Service struct {
	db       *database.DB
	engine   *Engine
	accounts AccountNames
	audit    Auditor
}

type ServiceOption func(*Service)

func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		s.audit = a
	}
}

func WithAccountNames(names AccountNames) ServiceOption {
	return func(s *Service) {
		s.accounts = names
	}
}

func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		s.engine = NewEngine(n)
	}
}

func NewService(db *database.DB, opts ...ServiceOption) *Service {
	s := &Service{
		db:       db,
		engine:   NewEngine(DefaultBatchSize),
		accounts: DefaultAccountNames,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EventDetail is an event with its business records.
type EventDetail struct {
	Event          Event           `json:"event"`
	Cost           *CostDetail     `json:"cost,omitempty"`
	Participations []Participation `json:"participations"`
	Transfers      []Transfer      `json:"transfers"`
}

func (s *Service) repo(q database.Querier) *repository {
	return NewRepository(q, s.db.Dialect, s.accounts)
}

// mutate runs fn and the event rebuild in one transaction.
func (s *Service) mutate(ctx context.Context, eventID int64, fn func(r *repository) error) (RebuildResult, error) {
	var result RebuildResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		r := s.repo(tx)
		if err := fn(r); err != nil {
			return err
		}
		var err error
		result, err = s.engine.RebuildEvent(ctx, r, eventID)
		return err
	})
	if err != nil {
		return result, err
	}

	s.log("ledger.event_rebuilt", eventID, result)
	return result, nil
}

func (s *Service) log(eventType string, eventID int64, result RebuildResult) {
	if s.audit == nil {
		return
	}
	data := map[string]string{
		"event_id": strconv.FormatInt(eventID, 10),
		"inserted": strconv.Itoa(result.Inserted),
		"updated":  strconv.Itoa(result.Updated),
		"deleted":  strconv.Itoa(result.Deleted),
	}
	if result.EarliestDate != nil {
		data["earliest_date"] = result.EarliestDate.Format(time.DateOnly)
	}
	s.audit.Log(eventlogger.NewEvent(eventlogger.WithType(eventType), eventlogger.WithData(data)))
}

// CreateEvent stores a new event. Lunch and special events get a default
// cost detail when cost is nil.
func (s *Service) CreateEvent(ctx context.Context, eventType EventType, date time.Time, name string, cost *CostDetail) (Event, error) {
	if !eventType.Valid() {
		return Event{}, &UnknownEventTypeError{Type: eventType}
	}

	event := Event{Type: eventType, Date: Day(date), Name: name}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		r := s.repo(tx)
		if err := r.CreateEvent(ctx, &event); err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}

		if eventType.HasCost() {
			c := CostDetail{VegetarianMoneyFactor: 1}
			if cost != nil {
				c = *cost
			}
			c.EventID = event.ID
			if err := validateCost(c); err != nil {
				return err
			}
			if err := r.SaveCostDetail(ctx, c); err != nil {
				return fmt.Errorf("inserting cost detail: %w", err)
			}
		}

		_, err := s.engine.RebuildEvent(ctx, r, event.ID)
		return err
	})
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID int64) (EventDetail, error) {
	r := s.repo(s.db)

	event, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return EventDetail{}, err
	}
	detail := EventDetail{Event: event, Participations: []Participation{}, Transfers: []Transfer{}}

	if event.Type.HasCost() {
		if detail.Cost, err = r.GetCostDetail(ctx, eventID); err != nil {
			return detail, err
		}
		if detail.Participations, err = r.ListParticipations(ctx, eventID); err != nil {
			return detail, err
		}
	}
	if event.Type == EventTransfer {
		if detail.Transfers, err = r.ListTransfers(ctx, eventID); err != nil {
			return detail, err
		}
	}
	return detail, nil
}

// UpdateEvent renames and/or moves an event. The type never changes.
func (s *Service) UpdateEvent(ctx context.Context, eventID int64, name *string, date *time.Time) (RebuildResult, error) {
	return s.mutate(ctx, eventID, func(r *repository) error {
		event, err := r.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if name != nil {
			event.Name = *name
		}
		if date != nil {
			event.Date = Day(*date)
		}
		return r.UpdateEvent(ctx, event)
	})
}

// DeleteEvent removes an event's records, rebuilds its now empty ledger and
// then removes the event itself.
func (s *Service) DeleteEvent(ctx context.Context, eventID int64) error {
	var result RebuildResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		r := s.repo(tx)
		event, err := r.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := r.DeleteParticipations(ctx, eventID); err != nil {
			return err
		}
		if err := r.DeleteTransfers(ctx, eventID); err != nil {
			return err
		}

		// rebuild as a label so no cost detail is required
		event.Type = EventLabel
		result, err = s.engine.RebuildEventTransactions(ctx, r, event)
		if err != nil {
			return err
		}
		if err := r.DeleteEvent(ctx, eventID); err != nil {
			return fmt.Errorf("deleting event %d: %w", eventID, err)
		}
		if result.EarliestDate != nil {
			if _, err := s.engine.RebuildTransactionBalances(ctx, r, *result.EarliestDate); err != nil {
				return err
			}
			return s.engine.RebuildUserBalances(ctx, r)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log("ledger.event_deleted", eventID, result)
	return nil
}

func validateCost(c CostDetail) error {
	for _, v := range []float64{c.PointsCost, c.VegetarianMoneyFactor, c.ParticipationFee} {
		if math.IsNaN(v) || v < 0 {
			return ErrNegativeAmount
		}
	}
	if c.ParticipationFlatRate != nil && (math.IsNaN(*c.ParticipationFlatRate) || *c.ParticipationFlatRate < 0) {
		return ErrNegativeAmount
	}
	return nil
}

// SetCostDetail replaces the cost detail of a lunch or special event.
func (s *Service) SetCostDetail(ctx context.Context, cost CostDetail) (RebuildResult, error) {
	if err := validateCost(cost); err != nil {
		return RebuildResult{}, err
	}
	return s.mutate(ctx, cost.EventID, func(r *repository) error {
		event, err := r.LockEvent(ctx, cost.EventID)
		if err != nil {
			return err
		}
		if !event.Type.HasCost() {
			return fmt.Errorf("%w: %s has no cost detail", ErrWrongEventType, event.Type)
		}
		return r.SaveCostDetail(ctx, cost)
	})
}

// ParticipationInput is a participation as submitted by a caller. A nil
// MoneyFactor stores 1; an explicit 0 is kept.
type ParticipationInput struct {
	EventID        int64
	UserID         int64
	Type           ParticipationType
	PointsCredited float64
	MoneyCredited  float64
	MoneyFactor    *float64
}

func (in ParticipationInput) participation() (Participation, error) {
	p := Participation{
		EventID:        in.EventID,
		UserID:         in.UserID,
		Type:           in.Type,
		PointsCredited: in.PointsCredited,
		MoneyCredited:  in.MoneyCredited,
		MoneyFactor:    1,
	}
	if in.MoneyFactor != nil {
		p.MoneyFactor = *in.MoneyFactor
	}
	for _, v := range []float64{p.PointsCredited, p.MoneyCredited, p.MoneyFactor} {
		if math.IsNaN(v) || v < 0 {
			return p, ErrNegativeAmount
		}
	}
	return p, nil
}

// SetParticipation creates or replaces the participation of a user in an
// event. A type the event does not accept fails the rebuild and nothing is
// written.
func (s *Service) SetParticipation(ctx context.Context, in ParticipationInput) (Participation, RebuildResult, error) {
	p, err := in.participation()
	if err != nil {
		return p, RebuildResult{}, err
	}
	result, err := s.mutate(ctx, p.EventID, func(r *repository) error {
		event, err := r.LockEvent(ctx, p.EventID)
		if err != nil {
			return err
		}
		if !event.Type.HasCost() {
			return fmt.Errorf("%w: %s has no participations", ErrWrongEventType, event.Type)
		}
		return r.SaveParticipation(ctx, &p)
	})
	return p, result, err
}

func (s *Service) DeleteParticipation(ctx context.Context, eventID, userID int64) (RebuildResult, error) {
	return s.mutate(ctx, eventID, func(r *repository) error {
		return r.DeleteParticipation(ctx, eventID, userID)
	})
}

func (s *Service) AddTransfer(ctx context.Context, t Transfer) (Transfer, RebuildResult, error) {
	if !t.Currency.Valid() {
		return t, RebuildResult{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, t.Currency)
	}
	if math.IsNaN(t.Amount) || t.Amount < 0 {
		return t, RebuildResult{}, ErrNegativeAmount
	}
	result, err := s.mutate(ctx, t.EventID, func(r *repository) error {
		event, err := r.LockEvent(ctx, t.EventID)
		if err != nil {
			return err
		}
		if event.Type != EventTransfer {
			return fmt.Errorf("%w: %s has no transfers", ErrWrongEventType, event.Type)
		}
		return r.CreateTransfer(ctx, &t)
	})
	return t, result, err
}

func (s *Service) DeleteTransfer(ctx context.Context, eventID, transferID int64) (RebuildResult, error) {
	return s.mutate(ctx, eventID, func(r *repository) error {
		return r.DeleteTransfer(ctx, eventID, transferID)
	})
}

func (s *Service) ListEventTransactions(ctx context.Context, eventID int64) ([]Transaction, error) {
	r := s.repo(s.db)
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return r.ListEventTransactions(ctx, eventID)
}

func (s *Service) ListUserTransactions(ctx context.Context, userID int64, currency Currency, limit int) ([]Transaction, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo(s.db).ListUserTransactions(ctx, userID, currency, limit)
}

// RebuildEvent reruns the rebuild of one event without changing its data.
func (s *Service) RebuildEvent(ctx context.Context, eventID int64) (RebuildResult, error) {
	return s.mutate(ctx, eventID, func(*repository) error { return nil })
}

func (s *Service) RebuildBalances(ctx context.Context, from time.Time) (int, error) {
	var updated int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		r := s.repo(tx)
		var err error
		if updated, err = s.engine.RebuildTransactionBalances(ctx, r, from); err != nil {
			return err
		}
		return s.engine.RebuildUserBalances(ctx, r)
	})
	return updated, err
}

func (s *Service) RebuildUsers(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.engine.RebuildUserBalances(ctx, s.repo(tx))
	})
}

// RebuildAll reconciles every event, then recalculates balances once from
// the earliest affected date.
func (s *Service) RebuildAll(ctx context.Context) (RebuildResult, error) {
	var total RebuildResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		r := s.repo(tx)
		events, err := r.ListEvents(ctx)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}

		for _, event := range events {
			result, err := s.engine.RebuildEventTransactions(ctx, r, event)
			if err != nil {
				return err
			}
			total.Inserted += result.Inserted
			total.Updated += result.Updated
			total.Deleted += result.Deleted
			if result.EarliestDate != nil && (total.EarliestDate == nil || result.EarliestDate.Before(*total.EarliestDate)) {
				total.EarliestDate = result.EarliestDate
			}
		}

		if total.EarliestDate == nil {
			return nil
		}
		if _, err := s.engine.RebuildTransactionBalances(ctx, r, *total.EarliestDate); err != nil {
			return err
		}
		return s.engine.RebuildUserBalances(ctx, r)
	})
	if err != nil {
		return total, err
	}

	slog.Info("rebuilt ledger", "inserted", total.Inserted, "updated", total.Updated, "deleted", total.Deleted)
	return total, nil
}

// CheckZeroSum returns the per currency sum of all ledger amounts together
// with an error when any of them is not zero.
func (s *Service) CheckZeroSum(ctx context.Context) (map[Currency]float64, error) {
	sums, err := s.repo(s.db).CurrencySums(ctx)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, c := range Currencies {
		if math.Abs(sums[c]) > Epsilon {
			errs = append(errs, fmt.Errorf("%s ledger sums to %g", c, sums[c]))
		}
	}
	return sums, errors.Join(errs...)
}
