package models

import "time"

type Novel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   uint   `gorm:"index;not null" json:"user_id"`
	Title    string `gorm:"type:varchar(200);not null" json:"title"`
	Genre    string `gorm:"type:varchar(50)" json:"genre"`
	Synopsis string `gorm:"type:text" json:"synopsis"`
	Outline  string `gorm:"type:text" json:"outline"`
	Status   string `gorm:"type:varchar(20);default:'drafting'" json:"status"`
}

type Chapter struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	NovelID   uint   `gorm:"index;not null" json:"novel_id"`
	Title     string `gorm:"type:varchar(200);not null" json:"title"`
	Content   string `gorm:"type:text" json:"content"`
	Summary   string `gorm:"type:text" json:"summary"`
	WordCount int    `gorm:"default:0" json:"word_count"`
	Sort      int    `gorm:"default:0" json:"sort"`
}

type Character struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	NovelID     uint   `gorm:"index;not null" json:"novel_id"`
	Name        string `gorm:"type:varchar(100);not null" json:"name"`
	RoleType    string `gorm:"type:varchar(50)" json:"role_type"`
	Personality string `gorm:"type:text" json:"personality"`
	Background  string `gorm:"type:text" json:"background"`
}

type Worldview struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	NovelID uint   `gorm:"index;not null" json:"novel_id"`
	Title   string `gorm:"type:varchar(200);not null" json:"title"`
	Setting string `gorm:"type:text" json:"setting"`
}
