package models

import (
	"time"
)

// Membership is one roster record. At most one record exists per
// (GroupID, UserID) pair; the group creator holds the only admin record.
type Membership struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	GroupID   string    `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_group_user" json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar,omitempty"`
	IsAdmin   bool      `gorm:"default:false" json:"is_admin"`
	JoinedAt  time.Time `json:"joined_at"`
}

func (Membership) TableName() string {
	return "memberships"
}
