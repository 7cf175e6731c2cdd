package model

import (
	"fmt"
	"time"
)

// Interest actions recorded in the ledger.
const (
	ActionSend    = "send"
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionCancel  = "cancel"
)

// InterestEvent is one entry in the append-only interest ledger.
// Rows are never updated or deleted; the relationship between two users
// is derived by replaying their events in order.
type InterestEvent struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventUID   string    `gorm:"uniqueIndex;size:36;not null" json:"event_uid"`
	FromUserID int64     `gorm:"index:idx_interest_from;not null" json:"from_user_id"`
	ToUserID   int64     `gorm:"index:idx_interest_to;not null" json:"to_user_id"`
	Action     string    `gorm:"size:16;not null" json:"action"`
	PairKey    string    `gorm:"index:idx_interest_pair;size:48;not null" json:"pair_key"`
	CreatedAt  time.Time `gorm:"index;autoCreateTime:milli" json:"created_at"`
}

// PairKey builds the canonical key for an unordered user pair.
// The smaller ID always comes first so both directions map to one key.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
