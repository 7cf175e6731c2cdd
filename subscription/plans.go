package subscription

// Plan IDs.
const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// Plan describes a membership tier and its entitlements.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	// InterestAllowance is the number of outgoing interests per billing
	// period. Negative means unlimited.
	InterestAllowance int `json:"interest_allowance"`
	// Messaging allows chatting with matches.
	Messaging bool `json:"messaging"`
	// SeeIncoming allows listing members who expressed interest in you.
	SeeIncoming bool `json:"see_incoming"`
}

// Unlimited reports whether the plan has no interest allowance cap.
func (p Plan) Unlimited() bool {
	return p.InterestAllowance < 0
}

var plans = map[string]Plan{
	PlanFree: {
		ID:                PlanFree,
		Name:              "Free",
		PriceCents:        0,
		InterestAllowance: 5,
		Messaging:         false,
		SeeIncoming:       false,
	},
	PlanBasic: {
		ID:                PlanBasic,
		Name:              "Basic",
		PriceCents:        999,
		InterestAllowance: 30,
		Messaging:         true,
		SeeIncoming:       true,
	},
	PlanPremium: {
		ID:                PlanPremium,
		Name:              "Premium",
		PriceCents:        1999,
		InterestAllowance: -1,
		Messaging:         true,
		SeeIncoming:       true,
	},
}

// planOrder keeps listings stable, cheapest first.
var planOrder = []string{PlanFree, PlanBasic, PlanPremium}

// Plans returns all tiers in display order.
func Plans() []Plan {
	out := make([]Plan, 0, len(planOrder))
	for _, id := range planOrder {
		out = append(out, plans[id])
	}
	return out
}

// PlanByID looks up a tier by its ID.
func PlanByID(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}
