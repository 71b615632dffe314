package model

import "time"

type Intent string

const (
	IntentStop   Intent = "stop"
	IntentStart  Intent = "start"
	IntentHelp   Intent = "help"
	IntentStatus Intent = "status"
	IntentOther  Intent = "other"
)

func (i Intent) String() string { return string(i) }

// Reply is one inbound text. Replies sharing FromPhone form a conversation.
type Reply struct {
	ID             string    `db:"id" json:"id"`
	MessageID      *string   `db:"message_id" json:"message_id,omitempty"`
	OrganizationID *int64    `db:"organization_id" json:"organization_id,omitempty"`
	FromPhone      string    `db:"from_phone" json:"from_phone"`
	Text           string    `db:"text" json:"text"`
	Intent         Intent    `db:"intent" json:"intent"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	ReceivedAt     time.Time `db:"received_at" json:"received_at"`
}

type Conversation struct {
	Phone    string    `db:"phone" json:"phone"`
	LastText string    `db:"last_text" json:"last_text"`
	LastAt   time.Time `db:"last_at" json:"last_at"`
	Total    int       `db:"total" json:"total"`
	Unread   int       `db:"unread" json:"unread"`
}
