package models

import "time"

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"`
	Nickname  string    `gorm:"type:varchar(50)" json:"nickname"`
	Role      string    `gorm:"not null;default:'user'" json:"role"`
	Version   int       `gorm:"default:1" json:"version"`
}
