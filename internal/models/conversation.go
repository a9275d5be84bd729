package models

import (
	"time"

	"gorm.io/datatypes"
)

type MessageStatus string

const (
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusCompleted  MessageStatus = "completed"
	MessageStatusCancelled  MessageStatus = "cancelled"
	MessageStatusFailed     MessageStatus = "failed"
)

// Conversation owns an ordered sequence of Messages for the chat assistant.
type Conversation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID  uint   `gorm:"index;not null" json:"user_id"`
	NovelID *uint  `gorm:"index" json:"novel_id,omitempty"`
	ModelID uint   `json:"model_id"`
	Title   string `gorm:"type:varchar(200)" json:"title"`
}

// Message is one entry in a conversation. SequenceNumber is strictly
// increasing and gapless within its conversation. An assistant message is
// created in processing state and transitions exactly once to a terminal
// state.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ConversationID uint   `gorm:"index:idx_conversation_seq,unique;not null" json:"conversation_id"`
	SequenceNumber int    `gorm:"index:idx_conversation_seq,unique;not null" json:"sequence_number"`
	Role           string `gorm:"type:varchar(20);not null" json:"role"`
	Content        string `gorm:"type:text" json:"content"`

	Status         MessageStatus  `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	TokenUsage     datatypes.JSON `gorm:"type:json" json:"token_usage" swaggertype:"object"`
	ResponseTimeMs int64          `json:"response_time_ms"`
}
