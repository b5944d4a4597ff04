package ledger

import "time"

type EventType string

const (
	EventLunch    EventType = "LUNCH"
	EventSpecial  EventType = "SPECIAL"
	EventLabel    EventType = "LABEL"
	EventTransfer EventType = "TRANSFER"
)

func (t EventType) Valid() bool {
	switch t {
	case EventLunch, EventSpecial, EventLabel, EventTransfer:
		return true
	}
	return false
}

// HasCost reports whether events of this type own a cost detail and
// participations.
func (t EventType) HasCost() bool {
	return t == EventLunch || t == EventSpecial
}

type ParticipationType string

const (
	Omnivorous ParticipationType = "OMNIVOROUS"
	Vegetarian ParticipationType = "VEGETARIAN"
	OptIn      ParticipationType = "OPT_IN"
	OptOut     ParticipationType = "OPT_OUT"
	Undecided  ParticipationType = "UNDECIDED"
)

// Event is a dated occurrence that produces ledger transactions. The type is
// fixed at creation.
type Event struct {
	ID   int64     `json:"id"`
	Type EventType `json:"type"`
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

type CostDetail struct {
	EventID               int64    `json:"event_id"`
	PointsCost            float64  `json:"points_cost"`
	MoneyCost             float64  `json:"money_cost"` // sum of credited money, informational
	VegetarianMoneyFactor float64  `json:"vegetarian_money_factor"`
	ParticipationFlatRate *float64 `json:"participation_flat_rate,omitempty"`
	ParticipationFee      float64  `json:"participation_fee"`
	FeeRecipientID        *int64   `json:"participation_fee_recipient_id,omitempty"`
	Comment               string   `json:"comment"`
}

type Participation struct {
	ID             int64             `json:"id"`
	EventID        int64             `json:"event_id"`
	UserID         int64             `json:"user_id"`
	Type           ParticipationType `json:"type"`
	PointsCredited float64           `json:"points_credited"`
	MoneyCredited  float64           `json:"money_credited"`
	MoneyFactor    float64           `json:"money_factor"`
	PointExempt    bool              `json:"point_exempt"` // copied from the user
}

type Transfer struct {
	ID          int64    `json:"id"`
	EventID     int64    `json:"event_id"`
	SenderID    int64    `json:"sender_id"`
	RecipientID int64    `json:"recipient_id"`
	Currency    Currency `json:"currency"`
	Amount      float64  `json:"amount"`
}

// EventData is everything the synthesizer needs to know about one event.
type EventData struct {
	Event          Event
	Cost           *CostDetail
	Participations []Participation
	Transfers      []Transfer
}
