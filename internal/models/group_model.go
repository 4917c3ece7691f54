package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TagList is an ordered list of tag strings. It serializes as JSON so the
// same model works for the in-memory and the Postgres-backed repositories.
type TagList []string

func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		t = TagList{}
	}
	return json.Marshal(t)
}

func (t *TagList) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TagList", src)
	}
}

// Group is a catalog entry. MemberCount is kept in lockstep with the
// group's roster on every create/join/leave.
type Group struct {
	ID string `gorm:"primaryKey" json:"id"`

	Name        string  `gorm:"not null" json:"name"`
	Description string  `json:"description"`
	Tags        TagList `gorm:"type:text" json:"tags"`
	CreatedBy   string  `gorm:"not null;index" json:"created_by"`
	MemberCount int     `gorm:"default:1" json:"member_count"`
	AvatarURL   string  `json:"avatar,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Group) TableName() string {
	return "groups"
}
