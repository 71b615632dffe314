package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/model"
)

// MessagesRepository defines persistence for the SMS ledger.
type MessagesRepository interface {
	// Claim inserts m as pending. When m.SignupID is set and a non-failed
	// message of the same type exists for that signup newer than
	// m.CreatedAt-window, nothing is written and claimed is false.
	Claim(ctx context.Context, m model.Message, window time.Duration) (claimed bool, err error)
	MarkSent(ctx context.Context, id, providerID string, at time.Time) error
	MarkFailed(ctx context.Context, id, errText string, at time.Time) error
	// GetByProviderID returns nil, nil when no message carries the provider id.
	GetByProviderID(ctx context.Context, providerID string) (*model.Message, error)
	// LatestBySignups returns, per signup, the newest message of the given type.
	LatestBySignups(ctx context.Context, signupIDs []int64, typ model.MessageType) (map[int64]model.Message, error)
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

const messageColumns = `
	id, organization_id, signup_id, event_id, phone, body, message_type, status,
	provider_id, error, created_at, sent_at, updated_at`

func (r *MessagesRepositoryImpl) Claim(ctx context.Context, m model.Message, window time.Duration) (bool, error) {
	const ins = `
		INSERT INTO messages
		    (id, organization_id, signup_id, event_id, phone, body, message_type, status, created_at, updated_at)
		VALUES
		    (?,  ?,               ?,         ?,        ?,     ?,    ?,            'pending', ?,        ?)
	`
	claimed := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if m.SignupID != nil {
			// lock the signup so two dispatchers cannot both pass the check
			var one int
			err := tx.GetContext(ctx, &one, `SELECT 1 FROM signups WHERE id = ? FOR UPDATE`, *m.SignupID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lock signup: %w", err)
			}

			var n int
			if err := tx.GetContext(ctx, &n, `
				SELECT COUNT(*) FROM messages
				 WHERE signup_id = ? AND message_type = ? AND status <> 'failed' AND created_at > ?
			`, *m.SignupID, m.Type.String(), m.CreatedAt.Add(-window)); err != nil {
				return fmt.Errorf("dedup check: %w", err)
			}
			if n > 0 {
				return nil
			}
		}

		if _, err := tx.ExecContext(ctx, ins,
			m.ID, m.OrganizationID, m.SignupID, m.EventID, m.Phone, m.Body, m.Type.String(), m.CreatedAt, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert pending: %w", err)
		}
		claimed = true
		return nil
	})
	return claimed, err
}

func (r *MessagesRepositoryImpl) MarkSent(ctx context.Context, id, providerID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = 'sent', provider_id = ?, sent_at = ?, updated_at = ? WHERE id = ?
	`, providerID, at, at, id)
	return err
}

func (r *MessagesRepositoryImpl) MarkFailed(ctx context.Context, id, errText string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = 'failed', error = ?, updated_at = ? WHERE id = ?
	`, errText, at, id)
	return err
}

func (r *MessagesRepositoryImpl) GetByProviderID(ctx context.Context, providerID string) (*model.Message, error) {
	var m model.Message
	err := r.db.GetContext(ctx, &m, `
		SELECT `+messageColumns+` FROM messages WHERE provider_id = ? ORDER BY created_at DESC LIMIT 1
	`, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessagesRepositoryImpl) LatestBySignups(ctx context.Context, signupIDs []int64, typ model.MessageType) (map[int64]model.Message, error) {
	out := make(map[int64]model.Message, len(signupIDs))
	if len(signupIDs) == 0 {
		return out, nil
	}

	const base = `
		SELECT ` + messageColumns + `
		  FROM messages
		 WHERE signup_id IN (?) AND message_type = ?
		 ORDER BY created_at DESC
	`
	query, args, err := sqlx.In(base, signupIDs, typ.String())
	if err != nil {
		return nil, err
	}

	var rows []model.Message
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, m := range rows {
		if _, seen := out[*m.SignupID]; !seen {
			out[*m.SignupID] = m
		}
	}
	return out, nil
}
