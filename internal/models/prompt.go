package models

import "time"

// Prompt is one entry in the prompt library. UserID 0 marks a built-in
// prompt visible to everyone.
type Prompt struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   uint   `gorm:"index;default:0" json:"user_id"`
	Category string `gorm:"type:varchar(50);index" json:"category"`
	Title    string `gorm:"type:varchar(200);not null" json:"title"`
	Content  string `gorm:"type:text;not null" json:"content"`
	IsPublic bool   `gorm:"default:false" json:"is_public"`
}
