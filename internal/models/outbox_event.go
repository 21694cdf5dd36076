package models

import "time"

// OutboxEvent is a notification written in the same transaction as the state
// change it describes and relayed to the broker afterwards.
type OutboxEvent struct {
	Base
	Topic        string     `gorm:"size:64;not null;index" json:"topic"`
	Payload      string     `gorm:"type:text;not null" json:"payload"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	DispatchedAt *time.Time `gorm:"index" json:"dispatched_at,omitempty"`
	// FailedAt parks an event that exhausted its delivery attempts.
	FailedAt *time.Time `gorm:"index" json:"failed_at,omitempty"`
}
