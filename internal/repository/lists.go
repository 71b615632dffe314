package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/model"
)

type ListsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.List, error)
	// ListByEvent returns the event's lists in display order.
	ListByEvent(ctx context.Context, eventID int64) ([]model.List, error)
	// Siblings returns same-titled lists on the template's instances dated on or
	// after from, at most limit rows, ordered by date.
	Siblings(ctx context.Context, templateID int64, title string, from time.Time, limit int) ([]model.ListAvailability, error)
	AvailabilityByEvents(ctx context.Context, eventIDs []int64) ([]model.ListAvailability, error)
}

type ListsRepositoryImpl struct {
	db *sqlx.DB
}

func NewListsRepository(db *sqlx.DB) *ListsRepositoryImpl {
	return &ListsRepositoryImpl{db: db}
}

var _ ListsRepository = (*ListsRepositoryImpl)(nil)

func (r *ListsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.List, error) {
	var l model.List
	err := r.db.GetContext(ctx, &l, `
		SELECT id, event_id, title, description, max_slots, is_locked, position, created_at
		  FROM lists WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListsRepositoryImpl) ListByEvent(ctx context.Context, eventID int64) ([]model.List, error) {
	var rows []model.List
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, event_id, title, description, max_slots, is_locked, position, created_at
		  FROM lists
		 WHERE event_id = ?
		 ORDER BY position, id
	`, eventID)
	return rows, err
}

const availabilitySelect = `
	SELECT l.id AS list_id, e.id AS event_id, e.slug AS event_slug, e.event_date,
	       l.title, l.max_slots, l.is_locked,
	       (SELECT COUNT(*) FROM signups s WHERE s.list_id = l.id AND s.cancelled_at IS NULL) AS filled
	  FROM lists l
	  JOIN events e ON e.id = l.event_id
`

func (r *ListsRepositoryImpl) Siblings(ctx context.Context, templateID int64, title string, from time.Time, limit int) ([]model.ListAvailability, error) {
	var rows []model.ListAvailability
	err := r.db.SelectContext(ctx, &rows, availabilitySelect+`
		 WHERE e.template_id = ?
		   AND e.is_active = 1
		   AND e.event_date >= ?
		   AND l.title = ?
		 ORDER BY e.event_date, l.position
		 LIMIT ?
	`, templateID, from.Format(model.DateLayout), title, limit)
	return rows, err
}

func (r *ListsRepositoryImpl) AvailabilityByEvents(ctx context.Context, eventIDs []int64) ([]model.ListAvailability, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(availabilitySelect+` WHERE e.id IN (?) ORDER BY e.event_date, l.position`, eventIDs)
	if err != nil {
		return nil, err
	}
	var rows []model.ListAvailability
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...)
	return rows, err
}
