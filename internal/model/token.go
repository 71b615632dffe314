package model

import "time"

// Token grants self-service access to every signup of one phone.
type Token struct {
	Token      string     `db:"token" json:"-"`
	Phone      string     `db:"phone" json:"phone"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

func (t Token) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }
