package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/model"
)

type TokensRepository interface {
	// FindValid returns the phone's token with the latest expiry after now, or nil.
	FindValid(ctx context.Context, phone string, now time.Time) (*model.Token, error)
	Insert(ctx context.Context, t model.Token) error
	Get(ctx context.Context, token string) (*model.Token, error)
	Touch(ctx context.Context, token string, at time.Time) error
}

type TokensRepositoryImpl struct {
	db *sqlx.DB
}

func NewTokensRepository(db *sqlx.DB) *TokensRepositoryImpl {
	return &TokensRepositoryImpl{db: db}
}

var _ TokensRepository = (*TokensRepositoryImpl)(nil)

func (r *TokensRepositoryImpl) FindValid(ctx context.Context, phone string, now time.Time) (*model.Token, error) {
	var t model.Token
	err := r.db.GetContext(ctx, &t, `
		SELECT token, phone, expires_at, last_used_at, created_at
		  FROM tokens
		 WHERE phone = ? AND expires_at > ?
		 ORDER BY expires_at DESC
		 LIMIT 1
	`, phone, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokensRepositoryImpl) Insert(ctx context.Context, t model.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (token, phone, expires_at, created_at) VALUES (?, ?, ?, ?)
	`, t.Token, t.Phone, t.ExpiresAt, t.CreatedAt)
	return err
}

func (r *TokensRepositoryImpl) Get(ctx context.Context, token string) (*model.Token, error) {
	var t model.Token
	err := r.db.GetContext(ctx, &t, `
		SELECT token, phone, expires_at, last_used_at, created_at FROM tokens WHERE token = ?
	`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokensRepositoryImpl) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tokens SET last_used_at = ? WHERE token = ?`, at, token)
	return err
}
