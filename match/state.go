package match

import "github.com/rahmahapps/mawadda-server/model"

// Status is the derived relationship status of an unordered user pair.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusMatched  Status = "matched"
	StatusDeclined Status = "declined"
)

// Relationship is the state derived by replaying a pair's ledger events.
// It is symmetric: the same value describes the pair from either side.
type Relationship struct {
	Status Status `json:"status"`
	// SenderID is the user holding the outstanding interest while pending.
	SenderID int64 `json:"sender_id,omitempty"`
	// DeclinedBy is the user who turned the interest down while declined.
	DeclinedBy int64 `json:"declined_by,omitempty"`
}

// None is the relationship of a pair with no live interest.
var None = Relationship{Status: StatusNone}

// Replay derives the relationship from a pair's events in ledger order.
// Replaying the same events always yields the same result.
func Replay(events []model.InterestEvent) Relationship {
	r := None
	for _, ev := range events {
		r = r.apply(ev)
	}
	return r
}

// apply advances the relationship by one ledger event. The ledger only
// contains validated events, so impossible combinations are ignored rather
// than failing the whole derivation.
func (r Relationship) apply(ev model.InterestEvent) Relationship {
	switch ev.Action {
	case model.ActionSend:
		if r.Status == StatusPending {
			if r.SenderID == ev.FromUserID {
				return r // duplicate send, no effect
			}
			// Mutual interest: both sides sent, matched directly.
			return Relationship{Status: StatusMatched}
		}
		return Relationship{Status: StatusPending, SenderID: ev.FromUserID}

	case model.ActionAccept:
		if r.Status == StatusPending && r.SenderID != ev.FromUserID {
			return Relationship{Status: StatusMatched}
		}
		return r

	case model.ActionDecline:
		if r.Status == StatusPending && r.SenderID != ev.FromUserID {
			return Relationship{Status: StatusDeclined, DeclinedBy: ev.FromUserID}
		}
		return r

	case model.ActionCancel:
		if r.Status == StatusMatched {
			return None // unmatch
		}
		if r.Status == StatusPending && r.SenderID == ev.FromUserID {
			return None
		}
		return r
	}
	return r
}

// next validates an action by actor against the current state and returns
// the state after it. This is the transition table the resolver enforces
// before anything is appended to the ledger.
func next(cur Relationship, actor int64, action string) (Relationship, error) {
	switch action {
	case model.ActionSend:
		switch cur.Status {
		case StatusNone, StatusDeclined:
			// Re-requesting after a decline is allowed.
			return Relationship{Status: StatusPending, SenderID: actor}, nil
		case StatusPending:
			if cur.SenderID == actor {
				return cur, ErrInvalidTransition
			}
			return Relationship{Status: StatusMatched}, nil
		default: // matched
			return cur, ErrInvalidTransition
		}

	case model.ActionAccept:
		if cur.Status != StatusPending {
			return cur, ErrInvalidTransition
		}
		if cur.SenderID == actor {
			return cur, ErrInvalidActor
		}
		return Relationship{Status: StatusMatched}, nil

	case model.ActionDecline:
		if cur.Status != StatusPending {
			return cur, ErrInvalidTransition
		}
		if cur.SenderID == actor {
			return cur, ErrInvalidActor
		}
		return Relationship{Status: StatusDeclined, DeclinedBy: actor}, nil

	case model.ActionCancel:
		switch cur.Status {
		case StatusMatched:
			return None, nil
		case StatusPending:
			if cur.SenderID != actor {
				return cur, ErrInvalidActor
			}
			return None, nil
		default:
			return cur, ErrInvalidTransition
		}
	}
	return cur, ErrInvalidEvent
}
