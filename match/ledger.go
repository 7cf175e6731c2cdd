package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahmahapps/mawadda-server/model"
	"gorm.io/gorm"
)

// Ledger is the append-only store of interest events. Rows are never
// updated or deleted; it is the single source of truth for relationship
// state and quota accounting.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a Ledger on the given database.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a Ledger bound to the given transaction, so appends and
// quota counts can share one atomic unit with the resolver's checks.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// Append validates and durably writes one event. The event UID and
// timestamp are assigned here; the caller never supplies them.
func (l *Ledger) Append(ctx context.Context, ev *model.InterestEvent) error {
	if ev.FromUserID <= 0 || ev.ToUserID <= 0 || ev.FromUserID == ev.ToUserID {
		return fmt.Errorf("%w: from=%d to=%d", ErrInvalidEvent, ev.FromUserID, ev.ToUserID)
	}
	ev.EventUID = uuid.New().String()
	ev.PairKey = model.PairKey(ev.FromUserID, ev.ToUserID)
	ev.CreatedAt = time.Now()
	if err := l.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	return nil
}

// EventsForPair returns all events between two users in ledger order.
// Re-querying re-reads current ledger state.
func (l *Ledger) EventsForPair(ctx context.Context, a, b int64) ([]model.InterestEvent, error) {
	var events []model.InterestEvent
	err := l.db.WithContext(ctx).
		Where("pair_key = ?", model.PairKey(a, b)).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("%w: pair query: %v", ErrStorage, err)
	}
	return events, nil
}

// EventsForUser returns all events where the user is either side, newest
// first, for inbox and history views.
func (l *Ledger) EventsForUser(ctx context.Context, userID int64) ([]model.InterestEvent, error) {
	var events []model.InterestEvent
	err := l.db.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("%w: user query: %v", ErrStorage, err)
	}
	return events, nil
}

// CountSendsSince counts the user's outgoing SEND events at or after the
// given instant, for quota enforcement.
func (l *Ledger) CountSendsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&model.InterestEvent{}).
		Where("from_user_id = ? AND action = ? AND created_at >= ?", userID, model.ActionSend, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: quota count: %v", ErrStorage, err)
	}
	return count, nil
}
