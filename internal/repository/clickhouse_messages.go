package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/model"
)

// MessageFilter narrows a ledger report; zero values mean "any".
type MessageFilter struct {
	Phone  string
	Status model.MessageStatus
	Type   model.MessageType
	Limit  int
	Offset int
}

// CHMessagesRepository lists the SMS ledger from ClickHouse (CDC-fed final view).
type CHMessagesRepository interface {
	ListByOrganization(ctx context.Context, organizationID int64, f MessageFilter) ([]model.Message, error)
}

type chMessagesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHMessagesRepository(ch *sqlx.DB) CHMessagesRepository {
	return &chMessagesRepository{ch: ch}
}

func (r *chMessagesRepository) ListByOrganization(ctx context.Context, organizationID int64, f MessageFilter) ([]model.Message, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, organization_id, signup_id, event_id, phone, body, message_type, status,
		       provider_id, error, created_at, sent_at, updated_at
		FROM volunteers.messages_latest
		WHERE organization_id = ?
	`
	args := []any{organizationID}

	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.Type != "" {
		q += " AND message_type = ?"
		args = append(args, f.Type.String())
	}
	if f.Phone != "" {
		q += " AND phone = ?"
		args = append(args, f.Phone)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.Message
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
