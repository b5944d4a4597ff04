package ledger

import (
	"math"
	"sort"
	"time"
)

// eventHandler has one method per event type. Adding an event type means
// adding a method here, which breaks every handler until it is covered.
type eventHandler interface {
	lunch(d EventData) ([]Entry, error)
	special(d EventData) ([]Entry, error)
	label(d EventData) ([]Entry, error)
	transfer(d EventData) ([]Entry, error)
}

func dispatch(h eventHandler, d EventData) ([]Entry, error) {
	switch d.Event.Type {
	case EventLunch:
		return h.lunch(d)
	case EventSpecial:
		return h.special(d)
	case EventLabel:
		return h.label(d)
	case EventTransfer:
		return h.transfer(d)
	default:
		return nil, &UnknownEventTypeError{Type: d.Event.Type}
	}
}

// Synthesize returns the ledger entries an event should have. Entries come in
// mirrored pairs, ordered by ascending participation or transfer id.
func Synthesize(d EventData, accounts ClearingAccounts) ([]Entry, error) {
	return dispatch(synthesizer{accounts: accounts}, d)
}

type synthesizer struct {
	accounts ClearingAccounts
}

func (s synthesizer) lunch(d EventData) ([]Entry, error)   { return s.costShare(d) }
func (s synthesizer) special(d EventData) ([]Entry, error) { return s.costShare(d) }

func (s synthesizer) label(EventData) ([]Entry, error) { return nil, nil }

// entryWriter appends mirrored pairs for a single event date.
type entryWriter struct {
	date    time.Time
	entries []Entry
}

// pair credits user with amount against contra and writes the mirror row.
// Amounts within Epsilon of zero are skipped; it returns what was written.
func (w *entryWriter) pair(user, contra int64, currency Currency, amount float64) float64 {
	if math.Abs(amount) <= Epsilon {
		return 0
	}
	w.entries = append(w.entries,
		Entry{Date: w.date, UserID: user, ContraUserID: contra, Currency: currency, Amount: amount},
		Entry{Date: w.date, UserID: contra, ContraUserID: user, Currency: currency, Amount: -amount},
	)
	return amount
}

func (s synthesizer) costShare(d EventData) ([]Entry, error) {
	if d.Cost == nil {
		return nil, &MissingCostDetailError{EventID: d.Event.ID}
	}
	cost := *d.Cost

	participations := sortedParticipations(d.Participations)
	weights := make([]Weights, len(participations))

	var totalPointsWeight, totalMoneyWeight, totalPointsCredited, totalMoneyCredited float64
	for i, p := range participations {
		w, err := Weigh(d.Event.Type, p, cost)
		if err != nil {
			return nil, err
		}
		weights[i] = w
		totalPointsWeight += w.Points
		totalMoneyWeight += w.Money
		totalPointsCredited += p.PointsCredited
		totalMoneyCredited += p.MoneyCredited
	}

	// nobody cooked or nobody ate: no points change hands
	var pointsCreditPerPointsCredited, pointsCostPerWeightUnit float64
	if totalPointsWeight > Epsilon && totalPointsCredited > Epsilon {
		pointsCreditPerPointsCredited = cost.PointsCost / totalPointsCredited
		pointsCostPerWeightUnit = cost.PointsCost / totalPointsWeight
	}

	enableMoney := totalMoneyCredited > Epsilon && totalMoneyWeight > Epsilon
	var moneyCostPerWeightUnit float64
	if enableMoney {
		moneyCostPerWeightUnit = totalMoneyCredited / totalMoneyWeight
	}

	system := s.accounts.System
	w := &entryWriter{date: Day(d.Event.Date)}
	var totalPointSum float64

	for i, p := range participations {
		weight := weights[i]

		totalPointSum += w.pair(p.UserID, system, Points, p.PointsCredited*pointsCreditPerPointsCredited)

		debit := -pointsCostPerWeightUnit * weight.Points
		if cost.ParticipationFlatRate != nil {
			debit = 0
			if weight.Points > Epsilon {
				debit = -*cost.ParticipationFlatRate
			}
		}
		totalPointSum += w.pair(p.UserID, system, Points, debit)

		if enableMoney {
			w.pair(p.UserID, system, Money, p.MoneyCredited)
			w.pair(p.UserID, system, Money, -moneyCostPerWeightUnit*weight.Money)
		}

		if cost.ParticipationFee > Epsilon && cost.FeeRecipientID != nil && *cost.FeeRecipientID != p.UserID &&
			(weight.Points > Epsilon || weight.Money > Epsilon) {
			w.pair(*cost.FeeRecipientID, p.UserID, Money, cost.ParticipationFee)
		}
	}

	// Only points are corrected for rounding drift; money is left as computed.
	if math.Abs(totalPointSum) > Epsilon {
		w.pair(s.accounts.Andeo, system, Points, -totalPointSum)
	}

	return w.entries, nil
}

func (s synthesizer) transfer(d EventData) ([]Entry, error) {
	system := s.accounts.System
	transfers := sortedTransfers(d.Transfers)

	var potInputs, potOutputs, direct []Transfer
	for _, t := range transfers {
		switch {
		case t.RecipientID == system:
			potInputs = append(potInputs, t)
		case t.SenderID == system:
			potOutputs = append(potOutputs, t)
		default:
			direct = append(direct, t)
		}
	}

	totalShares := make(map[Currency]float64)
	for _, t := range potOutputs {
		totalShares[t.Currency] += t.Amount
	}

	w := &entryWriter{date: Day(d.Event.Date)}

	// Inputs are collected before anything is paid out so that the listing
	// order of inputs and outputs never matters.
	potBalance := make(map[Currency]float64)
	for _, t := range potInputs {
		if shares, ok := totalShares[t.Currency]; !ok || shares <= Epsilon {
			continue
		}
		w.pair(system, t.SenderID, t.Currency, t.Amount)
		potBalance[t.Currency] += t.Amount
	}

	for _, t := range potOutputs {
		collected, ok := potBalance[t.Currency]
		if !ok {
			continue
		}
		w.pair(t.RecipientID, system, t.Currency, collected/totalShares[t.Currency]*t.Amount)
	}

	for _, t := range direct {
		w.pair(t.RecipientID, t.SenderID, t.Currency, t.Amount)
	}

	return w.entries, nil
}

func sortedParticipations(in []Participation) []Participation {
	out := append([]Participation(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedTransfers(in []Transfer) []Transfer {
	out := append([]Transfer(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
