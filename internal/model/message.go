package model

import "time"

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) Valid() bool {
	return s == StatusPending || s == StatusSent || s == StatusFailed
}

type MessageType string

const (
	TypeConfirmation MessageType = "confirmation"
	TypeReminder     MessageType = "reminder"
	TypeCancellation MessageType = "cancellation"
	TypeChange       MessageType = "change"
	TypeSystem       MessageType = "system"
)

func (t MessageType) String() string { return string(t) }

func (t MessageType) Valid() bool {
	switch t {
	case TypeConfirmation, TypeReminder, TypeCancellation, TypeChange, TypeSystem:
		return true
	}
	return false
}

// Message is one attempted SMS in the ledger.
type Message struct {
	ID             string        `db:"id" json:"id"`
	OrganizationID *int64        `db:"organization_id" json:"organization_id,omitempty"`
	SignupID       *int64        `db:"signup_id" json:"signup_id,omitempty"`
	EventID        *int64        `db:"event_id" json:"event_id,omitempty"`
	Phone          string        `db:"phone" json:"phone"`
	Body           string        `db:"body" json:"body"`
	Type           MessageType   `db:"message_type" json:"message_type"`
	Status         MessageStatus `db:"status" json:"status"`
	ProviderID     *string       `db:"provider_id" json:"provider_id,omitempty"`
	Error          *string       `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	SentAt         *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}
