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

// SignupsRepository owns signup rows and the phone-scoped opt-out state.
type SignupsRepository interface {
	// InsertWithCapacity checks lock state and capacity and inserts the signup
	// in one transaction. With enforce=false lock and capacity are bypassed.
	// Returns model.ErrNotFound, model.ErrListLocked or model.ErrListFull.
	InsertWithCapacity(ctx context.Context, s model.Signup, enforce bool) (model.Signup, error)
	GetByID(ctx context.Context, id int64) (*model.Signup, error)
	// ListByList returns non-cancelled signups in position order.
	ListByList(ctx context.Context, listID int64) ([]model.Signup, error)
	// Cancel soft-cancels. Returns model.ErrNotFound or model.ErrAlreadyCancelled.
	Cancel(ctx context.Context, id int64, reason *string, at time.Time) error
	ListEligible(ctx context.Context, scope model.Scope) ([]model.Recipient, error)
	ListActiveByPhone(ctx context.Context, phone string) ([]model.PhoneSignup, error)
	MarkReminded(ctx context.Context, id int64, at time.Time) error
	// SetOptOutByPhone records the phone's consent state and applies it to
	// every signup row with that phone. Returns the number of signups touched.
	SetOptOutByPhone(ctx context.Context, phone string, optedOut bool, at time.Time) (int64, error)
	IsPhoneOptedOut(ctx context.Context, phone string) (bool, error)
	// CoordinatorForPhone returns the coordinator of the phone's most recent
	// signup that has one configured, or nil.
	CoordinatorForPhone(ctx context.Context, phone string) (*model.Coordinator, error)
}

type SignupsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSignupsRepository(db *sqlx.DB) *SignupsRepositoryImpl {
	return &SignupsRepositoryImpl{db: db}
}

var _ SignupsRepository = (*SignupsRepositoryImpl)(nil)

const signupColumns = `
	id, list_id, name, phone, email, sms_consent, sms_opted_out, opted_out_at, position,
	last_reminder_sent_at, reminder_count, cancelled_at, cancel_reason, created_at`

func (r *SignupsRepositoryImpl) InsertWithCapacity(ctx context.Context, s model.Signup, enforce bool) (model.Signup, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		// the row lock serializes concurrent registrations on this list
		var l struct {
			MaxSlots *int `db:"max_slots"`
			IsLocked bool `db:"is_locked"`
		}
		err := tx.GetContext(ctx, &l, `SELECT max_slots, is_locked FROM lists WHERE id = ? FOR UPDATE`, s.ListID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock list: %w", err)
		}
		if enforce && l.IsLocked {
			return model.ErrListLocked
		}

		var filled int
		if err := tx.GetContext(ctx, &filled,
			`SELECT COUNT(*) FROM signups WHERE list_id = ? AND cancelled_at IS NULL`, s.ListID,
		); err != nil {
			return fmt.Errorf("count signups: %w", err)
		}
		if enforce && l.MaxSlots != nil && filled >= *l.MaxSlots {
			return model.ErrListFull
		}

		if err := tx.GetContext(ctx, &s.Position,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM signups WHERE list_id = ?`, s.ListID,
		); err != nil {
			return fmt.Errorf("next position: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO signups
			    (list_id, name, phone, email, sms_consent, sms_opted_out, opted_out_at, position,
			     reminder_count, created_at)
			VALUES
			    (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		`, s.ListID, s.Name, s.Phone, s.Email, s.SMSConsent, s.SMSOptedOut, s.OptedOutAt, s.Position, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert signup: %w", err)
		}
		s.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.Signup{}, err
	}
	return s, nil
}

func (r *SignupsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Signup, error) {
	var s model.Signup
	err := r.db.GetContext(ctx, &s, `SELECT `+signupColumns+` FROM signups WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SignupsRepositoryImpl) ListByList(ctx context.Context, listID int64) ([]model.Signup, error) {
	var rows []model.Signup
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+signupColumns+`
		  FROM signups
		 WHERE list_id = ? AND cancelled_at IS NULL
		 ORDER BY position, id
	`, listID)
	return rows, err
}

func (r *SignupsRepositoryImpl) Cancel(ctx context.Context, id int64, reason *string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE signups SET cancelled_at = ?, cancel_reason = ?
		 WHERE id = ? AND cancelled_at IS NULL
	`, at, reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	s, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return model.ErrNotFound
	}
	return model.ErrAlreadyCancelled
}

func (r *SignupsRepositoryImpl) ListEligible(ctx context.Context, scope model.Scope) ([]model.Recipient, error) {
	q := `
		SELECT s.id AS signup_id, s.name, s.phone,
		       l.id AS list_id, l.title AS list_title,
		       e.id AS event_id, e.title AS event_title, e.event_date, e.organization_id
		  FROM signups s
		  JOIN lists l  ON l.id = s.list_id
		  JOIN events e ON e.id = l.event_id
		  LEFT JOIN phone_optouts po ON po.phone = s.phone
		 WHERE s.phone IS NOT NULL
		   AND s.sms_consent = 1
		   AND s.sms_opted_out = 0
		   AND s.cancelled_at IS NULL
		   AND COALESCE(po.opted_out, 0) = 0
	`
	var arg int64
	switch {
	case scope.SignupID != nil:
		q += " AND s.id = ?"
		arg = *scope.SignupID
	case scope.ListID != nil:
		q += " AND l.id = ?"
		arg = *scope.ListID
	case scope.EventID != nil:
		q += " AND e.id = ?"
		arg = *scope.EventID
	default:
		return nil, model.Invalid("scope", "one of signup_id, list_id, event_id is required")
	}
	q += " ORDER BY l.position, s.position, s.id"

	var rows []model.Recipient
	err := r.db.SelectContext(ctx, &rows, q, arg)
	return rows, err
}

func (r *SignupsRepositoryImpl) ListActiveByPhone(ctx context.Context, phone string) ([]model.PhoneSignup, error) {
	var rows []model.PhoneSignup
	err := r.db.SelectContext(ctx, &rows, `
		SELECT s.id AS signup_id, s.name, l.id AS list_id, l.title AS list_title,
		       e.id AS event_id, e.title AS event_title, e.event_date, e.organization_id
		  FROM signups s
		  JOIN lists l  ON l.id = s.list_id
		  JOIN events e ON e.id = l.event_id
		 WHERE s.phone = ? AND s.cancelled_at IS NULL
		 ORDER BY e.event_date, e.id, l.position
	`, phone)
	return rows, err
}

func (r *SignupsRepositoryImpl) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signups
		   SET last_reminder_sent_at = ?, reminder_count = reminder_count + 1
		 WHERE id = ?
	`, at, id)
	return err
}

func (r *SignupsRepositoryImpl) SetOptOutByPhone(ctx context.Context, phone string, optedOut bool, at time.Time) (int64, error) {
	var touched int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO phone_optouts (phone, opted_out, updated_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE opted_out = VALUES(opted_out), updated_at = VALUES(updated_at)
		`, phone, optedOut, at); err != nil {
			return fmt.Errorf("upsert phone_optouts: %w", err)
		}

		var stamp any
		if optedOut {
			stamp = at
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE signups SET sms_opted_out = ?, opted_out_at = ? WHERE phone = ?`,
			optedOut, stamp, phone)
		if err != nil {
			return fmt.Errorf("update signups: %w", err)
		}
		touched, _ = res.RowsAffected()
		return nil
	})
	return touched, err
}

func (r *SignupsRepositoryImpl) IsPhoneOptedOut(ctx context.Context, phone string) (bool, error) {
	var out bool
	err := r.db.GetContext(ctx, &out, `SELECT opted_out FROM phone_optouts WHERE phone = ?`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return out, err
}

func (r *SignupsRepositoryImpl) CoordinatorForPhone(ctx context.Context, phone string) (*model.Coordinator, error) {
	var c model.Coordinator
	err := r.db.GetContext(ctx, &c, `
		SELECT COALESCE(e.coordinator_name, o.coordinator_name, '') AS name,
		       COALESCE(e.coordinator_phone, o.coordinator_phone)   AS phone
		  FROM signups s
		  JOIN lists l ON l.id = s.list_id
		  JOIN events e ON e.id = l.event_id
		  JOIN organizations o ON o.id = e.organization_id
		 WHERE s.phone = ?
		   AND COALESCE(e.coordinator_phone, o.coordinator_phone) IS NOT NULL
		 ORDER BY (s.cancelled_at IS NULL) DESC, s.created_at DESC
		 LIMIT 1
	`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
