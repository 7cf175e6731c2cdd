package model

import "time"

// Conversation is the message thread between a matched pair.
// UserAID < UserBID so each pair has exactly one thread.
type Conversation struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PairKey     string    `gorm:"uniqueIndex;size:48;not null" json:"pair_key"`
	UserAID     int64     `gorm:"index:idx_conv_a;not null" json:"user_a_id"`
	UserBID     int64     `gorm:"index:idx_conv_b;not null" json:"user_b_id"`
	LastMessage string    `gorm:"size:255" json:"last_message"`
	LastSentAt  time.Time `json:"last_sent_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Other returns the counterpart of userID in this conversation.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Involves reports whether userID is a participant.
func (c *Conversation) Involves(userID int64) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Message is a single chat message inside a conversation.
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64     `gorm:"index:idx_msg_conv;not null" json:"conversation_id"`
	SenderID       int64     `gorm:"not null" json:"sender_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	Read           bool      `gorm:"default:false" json:"read"`
	CreatedAt      time.Time `gorm:"index;autoCreateTime:milli" json:"created_at"`
}
