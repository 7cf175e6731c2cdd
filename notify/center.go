package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt signals that a handler wants to stop further processing.
var ErrInterrupt = errors.New("notify: interrupted")

// HandlerFn is a notification hook handler.
// Returns (modified data, nil) to continue, or (data, ErrInterrupt) to stop.
type HandlerFn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type handlerEntry struct {
	priority int
	fn       HandlerFn
	name     string
}

// Center routes interest lifecycle events to registered handlers.
// The match resolver triggers it after every successful ledger append;
// handler failures never propagate back to the resolver.
type Center struct {
	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{handlers: make(map[string][]*handlerEntry)}
}

// Register adds a handler for the given event with the given priority
// (lower runs first). name is used for Unregister.
func (c *Center) Register(event string, priority int, name string, fn HandlerFn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[event]
	entries = append(entries, &handlerEntry{priority: priority, fn: fn, name: name})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.handlers[event] = entries
}

// Unregister removes all handlers with the given name for the given event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[event]
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	c.handlers[event] = entries[:n]
}

// Trigger executes all handlers for event in priority order.
// Data flows through each handler, allowing modification.
// If any handler returns ErrInterrupt, execution stops.
func (c *Center) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	c.mu.RLock()
	entries := make([]*handlerEntry, len(c.handlers[event]))
	copy(entries, c.handlers[event])
	c.mu.RUnlock()

	var err error
	for _, e := range entries {
		data, err = e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return data, err
		}
	}
	return data, nil
}

// ---- Event name constants ----

const (
	EventInterestSent      = "interest.sent"
	EventInterestAccepted  = "interest.accepted"
	EventInterestDeclined  = "interest.declined"
	EventInterestCancelled = "interest.cancelled"
	EventMatchCreated      = "match.created"
	EventMatchDissolved    = "match.dissolved"
)

// InterestData is the payload for interest lifecycle events.
type InterestData struct {
	EventUID string `json:"event_uid"`
	ActorID  int64  `json:"actor_id"`
	TargetID int64  `json:"target_id"`
	Action   string `json:"action"`
	Status   string `json:"status"` // resulting relationship status
}
