package model

import "time"

type Signup struct {
	ID                 int64      `db:"id" json:"id"`
	ListID             int64      `db:"list_id" json:"list_id"`
	Name               string     `db:"name" json:"name"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Email              *string    `db:"email" json:"email,omitempty"`
	SMSConsent         bool       `db:"sms_consent" json:"sms_consent"`
	SMSOptedOut        bool       `db:"sms_opted_out" json:"sms_opted_out"`
	OptedOutAt         *time.Time `db:"opted_out_at" json:"opted_out_at,omitempty"`
	Position           int        `db:"position" json:"position"`
	LastReminderSentAt *time.Time `db:"last_reminder_sent_at" json:"last_reminder_sent_at,omitempty"`
	ReminderCount      int        `db:"reminder_count" json:"reminder_count"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason       *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

func (s Signup) Cancelled() bool { return s.CancelledAt != nil }

// Recipient is an eligible signup joined with its list and event.
type Recipient struct {
	SignupID       int64      `db:"signup_id"`
	Name           string     `db:"name"`
	Phone          string     `db:"phone"`
	ListID         int64      `db:"list_id"`
	ListTitle      string     `db:"list_title"`
	EventID        int64      `db:"event_id"`
	EventTitle     string     `db:"event_title"`
	EventDate      *time.Time `db:"event_date"`
	OrganizationID int64      `db:"organization_id"`
}

// PhoneSignup is a non-cancelled signup as seen from the volunteer's phone.
type PhoneSignup struct {
	SignupID       int64      `db:"signup_id" json:"signup_id"`
	Name           string     `db:"name" json:"name"`
	ListID         int64      `db:"list_id" json:"list_id"`
	ListTitle      string     `db:"list_title" json:"role"`
	EventID        int64      `db:"event_id" json:"event_id"`
	EventTitle     string     `db:"event_title" json:"event"`
	EventDate      *time.Time `db:"event_date" json:"date,omitempty"`
	OrganizationID int64      `db:"organization_id" json:"organization_id"`
}

// Coordinator is the contact shown to volunteers and notified of cancellations.
type Coordinator struct {
	Name  string `db:"name"`
	Phone string `db:"phone"`
}

// Scope selects the signups a reminder dispatch targets. Exactly one field is set.
type Scope struct {
	SignupID *int64 `json:"signup_id,omitempty"`
	ListID   *int64 `json:"list_id,omitempty"`
	EventID  *int64 `json:"event_id,omitempty"`
}

func (s Scope) Valid() bool {
	n := 0
	for _, p := range []*int64{s.SignupID, s.ListID, s.EventID} {
		if p != nil && *p > 0 {
			n++
		}
	}
	return n == 1
}
