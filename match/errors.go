package match

import "errors"

// Domain errors surfaced to the API layer. Handlers map them to HTTP status
// codes with errors.Is; wrapped causes stay inspectable.
var (
	// ErrInvalidEvent rejects malformed actions: self-directed interest,
	// missing user IDs or an unknown action verb.
	ErrInvalidEvent = errors.New("match: invalid interest event")

	// ErrInvalidActor rejects an action by the wrong party, e.g. accepting
	// one's own outgoing interest.
	ErrInvalidActor = errors.New("match: action not allowed for this user")

	// ErrInvalidTransition rejects an action not legal in the pair's
	// current state, e.g. accepting when nothing is pending.
	ErrInvalidTransition = errors.New("match: action not legal in current state")

	// ErrQuotaExceeded rejects a send beyond the plan's allowance for the
	// current billing period. No event is appended.
	ErrQuotaExceeded = errors.New("match: interest quota exceeded")

	// ErrStorage wraps ledger read/write failures. Writes are not retried
	// here; callers may re-propose, which is safe because state is always
	// re-derived from the ledger.
	ErrStorage = errors.New("match: storage unavailable")
)
