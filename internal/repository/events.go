package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/model"
)

// EventsRepository persists templates and their dated instances.
type EventsRepository interface {
	// GetByID returns nil, nil when the event does not exist.
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	ListActiveTemplates(ctx context.Context) ([]model.Event, error)
	// ListInstances returns the template's instances ordered by date.
	ListInstances(ctx context.Context, templateID int64) ([]model.Event, error)
	SlugExists(ctx context.Context, organizationID int64, slug string) (bool, error)
	InstanceExists(ctx context.Context, templateID int64, date time.Time) (bool, error)
	// CreateInstance inserts the instance and its lists as one unit.
	// A taken (organization, slug) is reported as model.ErrSlugTaken and an
	// existing (template, date) as model.ErrDuplicate.
	CreateInstance(ctx context.Context, inst model.Event, lists []model.List) (model.Event, error)
	// Context resolves event settings over organization defaults.
	Context(ctx context.Context, eventID int64) (*model.EventContext, error)
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

const eventColumns = `
	id, organization_id, template_id, slug, title, description, is_recurring, is_active,
	event_date, anchor_date, reminder_template, coordinator_name, coordinator_phone,
	created_at, updated_at`

func (r *EventsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	err := r.db.GetContext(ctx, &e, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventsRepositoryImpl) ListActiveTemplates(ctx context.Context) ([]model.Event, error) {
	var rows []model.Event
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+eventColumns+`
		  FROM events
		 WHERE is_recurring = 1 AND template_id IS NULL AND is_active = 1
		 ORDER BY id
	`)
	return rows, err
}

func (r *EventsRepositoryImpl) ListInstances(ctx context.Context, templateID int64) ([]model.Event, error) {
	var rows []model.Event
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+eventColumns+`
		  FROM events
		 WHERE template_id = ?
		 ORDER BY event_date, id
	`, templateID)
	return rows, err
}

func (r *EventsRepositoryImpl) SlugExists(ctx context.Context, organizationID int64, slug string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM events WHERE organization_id = ? AND slug = ?`, organizationID, slug)
	return n > 0, err
}

func (r *EventsRepositoryImpl) InstanceExists(ctx context.Context, templateID int64, date time.Time) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM events WHERE template_id = ? AND event_date = ?`,
		templateID, date.Format(model.DateLayout))
	return n > 0, err
}

func (r *EventsRepositoryImpl) CreateInstance(ctx context.Context, inst model.Event, lists []model.List) (model.Event, error) {
	const insEvent = `
		INSERT INTO events
		    (organization_id, template_id, slug, title, description, is_recurring, is_active,
		     event_date, reminder_template, coordinator_name, coordinator_phone, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)
	`
	const insList = `
		INSERT INTO lists (event_id, title, description, max_slots, is_locked, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	var date any
	if inst.EventDate != nil {
		date = inst.EventDate.Format(model.DateLayout)
	}

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, insEvent,
			inst.OrganizationID, inst.TemplateID, inst.Slug, inst.Title, inst.Description, inst.IsActive,
			date, inst.ReminderTemplate, inst.CoordinatorName, inst.CoordinatorPhone, now, now,
		)
		if err != nil {
			return instanceInsertErr(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		inst.ID = id

		for _, l := range lists {
			if _, err := tx.ExecContext(ctx, insList,
				id, l.Title, l.Description, l.MaxSlots, l.IsLocked, l.Position, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}

	inst.CreatedAt, inst.UpdatedAt = now, now
	return inst, nil
}

func (r *EventsRepositoryImpl) Context(ctx context.Context, eventID int64) (*model.EventContext, error) {
	var ec model.EventContext
	err := r.db.GetContext(ctx, &ec, `
		SELECT e.id AS event_id,
		       e.organization_id,
		       o.name AS organization_name,
		       e.title AS event_title,
		       e.event_date,
		       COALESCE(e.reminder_template, o.reminder_template, '') AS reminder_template,
		       COALESCE(e.coordinator_name, o.coordinator_name, '')   AS coordinator_name,
		       COALESCE(e.coordinator_phone, o.coordinator_phone, '') AS coordinator_phone
		  FROM events e
		  JOIN organizations o ON o.id = e.organization_id
		 WHERE e.id = ?
	`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ec, nil
}

// instanceInsertErr tells a slug collision, which the caller can retry under
// another slug, apart from the instance already existing for its date.
func instanceInsertErr(err error) error {
	switch {
	case duplicateKey(err, "uq_events_org_slug"):
		return model.ErrSlugTaken
	case isDuplicate(err):
		return model.ErrDuplicate
	}
	return err
}
