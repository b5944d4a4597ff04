package ledger

// Weights is a participation's share of an event's points and money pools.
type Weights struct {
	Points float64
	Money  float64
}

// Weigh applies the weight policy for a participation. Point-exempt users
// share the money cost but never the points cost.
func Weigh(eventType EventType, p Participation, cost CostDetail) (Weights, error) {
	points := 1.0
	if p.PointExempt {
		points = 0
	}

	switch eventType {
	case EventLunch:
		switch p.Type {
		case Omnivorous:
			return Weights{Points: points, Money: 1}, nil
		case Vegetarian:
			return Weights{Points: points, Money: cost.VegetarianMoneyFactor}, nil
		case OptOut, Undecided:
			return Weights{}, nil
		}
	case EventSpecial:
		switch p.Type {
		case OptIn:
			return Weights{Points: points, Money: p.MoneyFactor}, nil
		case OptOut:
			return Weights{}, nil
		}
	}

	return Weights{}, &InvalidParticipationError{EventType: eventType, ParticipationType: p.Type}
}
