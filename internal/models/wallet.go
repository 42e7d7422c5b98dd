package models

import "time"

// LinkedWallet is an Algorand address linked to a user account
type LinkedWallet struct {
	UserID     string     `json:"userId" db:"user_id"`
	Address    string     `json:"address" db:"address"`
	Label      *string    `json:"label,omitempty" db:"label"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// AuditLog records a user-visible action
type AuditLog struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"userId" db:"user_id"`
	Action    string                 `json:"action" db:"action"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"createdAt" db:"created_at"`
}
