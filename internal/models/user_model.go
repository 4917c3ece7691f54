package models

import (
	"time"
)

// User is a registry record. The secret hash never leaves this package's
// storage shape; consumers get an Identity snapshot instead.
type User struct {
	ID string `gorm:"primaryKey" json:"id"`

	Username   string `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email      string `gorm:"uniqueIndex;not null" json:"email"`
	SecretHash string `gorm:"not null" json:"-"`
	AvatarURL  string `json:"avatar,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Identity is the public snapshot of an authenticated user.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar,omitempty"`
}

// Identity returns the secret-free snapshot of the user.
func (u *User) Identity() *Identity {
	return &Identity{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}
