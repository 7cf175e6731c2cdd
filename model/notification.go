package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a stored per-user notification, also pushed over SSE.
type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64          `gorm:"index:idx_notif_user;not null" json:"user_id"`
	Kind      string         `gorm:"size:32;not null" json:"kind"` // e.g. interest.sent, match.created
	Payload   datatypes.JSON `json:"payload"`
	Read      bool           `gorm:"default:false;index" json:"read"`
	CreatedAt time.Time      `gorm:"index;autoCreateTime:milli" json:"created_at"`
}
