package models

import "time"

// Presence is the live status of one user. Created on the first report,
// updated on every heartbeat, never deleted.
type Presence struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	IsOnline  bool      `gorm:"not null;default:false;index" json:"is_online"`
	LastSeen  time.Time `gorm:"not null;index" json:"last_seen"`
	SessionID *string   `gorm:"type:varchar(64)" json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PresenceStatus struct {
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

type PresenceList struct {
	Users  []Presence `json:"users"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
