package model

import "time"

type List struct {
	ID          int64     `db:"id" json:"id"`
	EventID     int64     `db:"event_id" json:"event_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	MaxSlots    *int      `db:"max_slots" json:"max_slots"` // nil = unlimited
	IsLocked    bool      `db:"is_locked" json:"is_locked"`
	Position    int       `db:"position" json:"position"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ListAvailability is a list row annotated with its event and fill level.
type ListAvailability struct {
	ListID    int64     `db:"list_id" json:"list_id"`
	EventID   int64     `db:"event_id" json:"event_id"`
	EventSlug string    `db:"event_slug" json:"event_slug"`
	EventDate time.Time `db:"event_date" json:"event_date"`
	Title     string    `db:"title" json:"title"`
	MaxSlots  *int      `db:"max_slots" json:"max_slots"`
	IsLocked  bool      `db:"is_locked" json:"is_locked"`
	Filled    int       `db:"filled" json:"filled"`
}

// Remaining returns open slots, or -1 when the list is unlimited.
func (a ListAvailability) Remaining() int {
	if a.MaxSlots == nil {
		return -1
	}
	if r := *a.MaxSlots - a.Filled; r > 0 {
		return r
	}
	return 0
}

func (a ListAvailability) Open() bool {
	return !a.IsLocked && (a.MaxSlots == nil || a.Filled < *a.MaxSlots)
}
