// Package tokens issues the phone-scoped self-service capabilities linked
// from every outbound text.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	tokenBytes = 32

	// ReuseWindow bounds how old a stored token may be and still be handed
	// out again, so every issued link has nearly the full TTL ahead of it.
	ReuseWindow = time.Hour
)

type Issuer struct {
	repo    repository.TokensRepository
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewIssuer(repo repository.TokensRepository, ttl time.Duration, baseURL string) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		repo:    repo,
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// WithClock replaces the issuer's time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue returns a token for phone with at least TTL minus ReuseWindow left,
// creating one if none is stored. Two racing callers may each create a
// token; both stay valid.
func (i *Issuer) Issue(ctx context.Context, phone string) (model.Token, error) {
	now := i.now().UTC()
	fresh := now
	if i.ttl > ReuseWindow {
		fresh = now.Add(i.ttl - ReuseWindow)
	}
	if t, err := i.repo.FindValid(ctx, phone, fresh); err != nil {
		return model.Token{}, fmt.Errorf("find token: %w", err)
	} else if t != nil {
		return *t, nil
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return model.Token{}, fmt.Errorf("token entropy: %w", err)
	}
	t := model.Token{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		Phone:     phone,
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}
	if err := i.repo.Insert(ctx, t); err != nil {
		return model.Token{}, fmt.Errorf("insert token: %w", err)
	}
	return t, nil
}

// URL is the self-service link for a token.
func (i *Issuer) URL(t model.Token) string {
	return i.baseURL + "/manage/" + t.Token
}

// Cache memoizes issued tokens by phone for the lifetime of one batch.
type Cache struct {
	issuer *Issuer
	byPh   map[string]model.Token
}

func (i *Issuer) NewCache() *Cache {
	return &Cache{issuer: i, byPh: map[string]model.Token{}}
}

func (c *Cache) Issue(ctx context.Context, phone string) (model.Token, error) {
	if t, ok := c.byPh[phone]; ok {
		return t, nil
	}
	t, err := c.issuer.Issue(ctx, phone)
	if err != nil {
		return model.Token{}, err
	}
	c.byPh[phone] = t
	return t, nil
}
