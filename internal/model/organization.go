package model

import "time"

type Organization struct {
	ID               int64     `db:"id"`
	Name             string    `db:"name"`
	Slug             string    `db:"slug"`
	APIKey           string    `db:"api_key"`
	Status           string    `db:"status"` // active|suspended
	ReminderTemplate *string   `db:"reminder_template"`
	CoordinatorName  *string   `db:"coordinator_name"`
	CoordinatorPhone *string   `db:"coordinator_phone"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
