package models

import "time"

// SecurityEvent is a durable audit record of an auth outcome. Failures carry
// a machine-readable reason code; successes carry the affected user.
type SecurityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Event     string    `gorm:"size:100;index;not null" json:"event"`  // e.g. login, refresh, password_change
	Outcome   string    `gorm:"size:20;index;not null" json:"outcome"` // success, failure
	Reason    string    `gorm:"size:100;index" json:"reason,omitempty"`
	UserID    *string   `gorm:"size:36;index" json:"user_id,omitempty"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	IP        string    `gorm:"size:64" json:"ip,omitempty"`
	UserAgent string    `gorm:"size:500" json:"user_agent,omitempty"`
	Extra     string    `gorm:"type:text" json:"extra,omitempty"` // JSON extra data
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SecurityEvent) TableName() string { return "security_events" }
