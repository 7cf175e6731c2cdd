package model

import "time"

// Subscription records a user's paid plan and its billing window.
// Users without an active row are on the free tier.
type Subscription struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index:idx_sub_user;not null" json:"user_id"`
	Plan      string    `gorm:"size:16;not null" json:"plan"` // free | basic | premium
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	Active    bool      `gorm:"default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
