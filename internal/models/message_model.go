package models

import (
	"time"
)

// Message is immutable once created and ordered by insertion per group.
type Message struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	GroupID    string    `gorm:"not null;index" json:"group_id"`
	UserID     string    `gorm:"not null;index" json:"user_id"`
	Username   string    `json:"username"`
	UserAvatar string    `json:"user_avatar,omitempty"`
	Text       string    `gorm:"not null" json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

func (Message) TableName() string {
	return "messages"
}
