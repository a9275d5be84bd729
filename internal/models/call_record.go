package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallStatus string

const (
	CallStatusSuccess          CallStatus = "success"
	CallStatusError            CallStatus = "error"
	CallStatusEmptyResponse    CallStatus = "empty_response"
	CallStatusUserDisconnected CallStatus = "user_disconnected"
	CallStatusTimeout          CallStatus = "timeout"
)

// CallRecord is the immutable audit row for one logical AI call attempt.
// For streaming calls it is written once, at stream termination, with the
// full final state.
type CallRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID       uint   `gorm:"index;not null" json:"user_id"`
	BusinessType string `gorm:"type:varchar(50);index;not null" json:"business_type"`
	ModelID      uint   `gorm:"index" json:"model_id"`
	ModelName    string `gorm:"type:varchar(100)" json:"model_name"`
	PromptID     *uint  `json:"prompt_id,omitempty"`

	RequestParams datatypes.JSON `gorm:"type:json" json:"request_params" swaggertype:"object"`
	SystemPrompt  string         `gorm:"type:text" json:"system_prompt"`
	UserPrompt    string         `gorm:"type:text" json:"user_prompt"`

	ResponseContent *string        `gorm:"type:text" json:"response_content"`
	TokenUsage      datatypes.JSON `gorm:"type:json" json:"token_usage" swaggertype:"object"`
	ResponseTimeMs  int64          `json:"response_time_ms"`

	Status       CallStatus `gorm:"type:varchar(30);index;not null" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
}
