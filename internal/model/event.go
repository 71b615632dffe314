package model

import "time"

// Event is either a recurring template (IsRecurring, no TemplateID) or a dated
// instance. Instances generated from a template carry TemplateID.
type Event struct {
	ID               int64      `db:"id" json:"id"`
	OrganizationID   int64      `db:"organization_id" json:"organization_id"`
	TemplateID       *int64     `db:"template_id" json:"template_id,omitempty"`
	Slug             string     `db:"slug" json:"slug"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	IsRecurring      bool       `db:"is_recurring" json:"is_recurring"`
	IsActive         bool       `db:"is_active" json:"is_active"`
	EventDate        *time.Time `db:"event_date" json:"event_date,omitempty"`
	AnchorDate       *time.Time `db:"anchor_date" json:"anchor_date,omitempty"`
	ReminderTemplate *string    `db:"reminder_template" json:"-"`
	CoordinatorName  *string    `db:"coordinator_name" json:"-"`
	CoordinatorPhone *string    `db:"coordinator_phone" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func (e Event) IsTemplate() bool { return e.IsRecurring && e.TemplateID == nil }

// EventContext is everything the dispatcher needs to render a message for one
// event: event-level settings already resolved over organization defaults.
type EventContext struct {
	EventID          int64      `db:"event_id"`
	OrganizationID   int64      `db:"organization_id"`
	OrganizationName string     `db:"organization_name"`
	EventTitle       string     `db:"event_title"`
	EventDate        *time.Time `db:"event_date"`
	ReminderTemplate string     `db:"reminder_template"`
	CoordinatorName  string     `db:"coordinator_name"`
	CoordinatorPhone string     `db:"coordinator_phone"`
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const DateLayout = "2006-01-02"
