package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/model"
)

type RepliesRepository interface {
	Insert(ctx context.Context, r model.Reply) error
	// Conversations groups replies by sender. A nil organizationID lists all
	// senders; otherwise the organization's replies plus uncorrelated ones.
	Conversations(ctx context.Context, organizationID *int64, limit int) ([]model.Conversation, error)
	// Thread and MarkRead follow the same organization scoping.
	Thread(ctx context.Context, organizationID *int64, phone string, limit int) ([]model.Reply, error)
	MarkRead(ctx context.Context, organizationID *int64, phone string) (int64, error)
}

// Uncorrelated replies (no organization) are visible to every organization.
const orgScope = "organization_id = ? OR organization_id IS NULL"

type RepliesRepositoryImpl struct {
	db *sqlx.DB
}

func NewRepliesRepository(db *sqlx.DB) *RepliesRepositoryImpl {
	return &RepliesRepositoryImpl{db: db}
}

var _ RepliesRepository = (*RepliesRepositoryImpl)(nil)

func (r *RepliesRepositoryImpl) Insert(ctx context.Context, rp model.Reply) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO replies (id, message_id, organization_id, from_phone, text, intent, is_read, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rp.ID, rp.MessageID, rp.OrganizationID, rp.FromPhone, rp.Text, rp.Intent.String(), rp.IsRead, rp.ReceivedAt)
	return err
}

func (r *RepliesRepositoryImpl) Conversations(ctx context.Context, organizationID *int64, limit int) ([]model.Conversation, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	filter := ""
	args := []any{}
	if organizationID != nil {
		filter = "WHERE " + orgScope
		args = append(args, *organizationID)
	}
	args = append(args, limit)

	q := `
		SELECT phone, total, unread, last_at, last_text FROM (
			SELECT from_phone AS phone,
			       COUNT(*) OVER w AS total,
			       SUM(CASE WHEN is_read THEN 0 ELSE 1 END) OVER w AS unread,
			       received_at AS last_at,
			       text AS last_text,
			       ROW_NUMBER() OVER (PARTITION BY from_phone ORDER BY received_at DESC, id DESC) AS rn
			  FROM replies
			  ` + filter + `
			WINDOW w AS (PARTITION BY from_phone)
		) t
		WHERE rn = 1
		ORDER BY last_at DESC
		LIMIT ?
	`
	var rows []model.Conversation
	err := r.db.SelectContext(ctx, &rows, q, args...)
	return rows, err
}

func (r *RepliesRepositoryImpl) Thread(ctx context.Context, organizationID *int64, phone string, limit int) ([]model.Reply, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `
		SELECT id, message_id, organization_id, from_phone, text, intent, is_read, received_at
		  FROM replies
		 WHERE from_phone = ?`
	args := []any{phone}
	if organizationID != nil {
		q += " AND (" + orgScope + ")"
		args = append(args, *organizationID)
	}
	q += `
		 ORDER BY received_at DESC
		 LIMIT ?`
	args = append(args, limit)

	var rows []model.Reply
	err := r.db.SelectContext(ctx, &rows, q, args...)
	return rows, err
}

func (r *RepliesRepositoryImpl) MarkRead(ctx context.Context, organizationID *int64, phone string) (int64, error) {
	q := `UPDATE replies SET is_read = 1 WHERE from_phone = ? AND is_read = 0`
	args := []any{phone}
	if organizationID != nil {
		q += " AND (" + orgScope + ")"
		args = append(args, *organizationID)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

