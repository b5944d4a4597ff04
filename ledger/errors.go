package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParticipation = errors.New("participation type not valid for event type")
	ErrMissingCostDetail    = errors.New("event has no cost detail")
	ErrNaNAmount            = errors.New("transaction amount is not a number")
	ErrUnknownEventType     = errors.New("unknown event type")

	ErrEventNotFound          = errors.New("event not found")
	ErrParticipationNotFound  = errors.New("participation not found")
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrClearingAccountMissing = errors.New("clearing account missing")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrNegativeAmount         = errors.New("amount can't be negative")
	ErrWrongEventType         = errors.New("operation not supported for event type")
)

type InvalidParticipationError struct {
	EventType         EventType
	ParticipationType ParticipationType
}

func (e *InvalidParticipationError) Error() string {
	return fmt.Sprintf("participation type %s not valid for %s event", e.ParticipationType, e.EventType)
}

func (e *InvalidParticipationError) Is(target error) bool {
	return target == ErrInvalidParticipation
}

type MissingCostDetailError struct {
	EventID int64
}

func (e *MissingCostDetailError) Error() string {
	return fmt.Sprintf("event %d has no cost detail", e.EventID)
}

func (e *MissingCostDetailError) Is(target error) bool {
	return target == ErrMissingCostDetail
}

type NaNAmountError struct {
	UserID       int64
	ContraUserID int64
	Currency     Currency
}

func (e *NaNAmountError) Error() string {
	return fmt.Sprintf("non-finite %s amount for user %d against %d", e.Currency, e.UserID, e.ContraUserID)
}

func (e *NaNAmountError) Is(target error) bool {
	return target == ErrNaNAmount
}

type UnknownEventTypeError struct {
	Type EventType
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

func (e *UnknownEventTypeError) Is(target error) bool {
	return target == ErrUnknownEventType
}
