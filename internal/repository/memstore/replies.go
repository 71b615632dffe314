package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
)

type Replies struct{ s *Store }

var _ repository.RepliesRepository = (*Replies)(nil)

func (r *Replies) Insert(_ context.Context, rp model.Reply) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.replies = append(r.s.replies, rp)
	return nil
}

func (r *Replies) Conversations(_ context.Context, organizationID *int64, limit int) ([]model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byPhone := map[string]*model.Conversation{}
	for _, rp := range r.s.replies {
		if !visible(rp, organizationID) {
			continue
		}
		c, ok := byPhone[rp.FromPhone]
		if !ok {
			c = &model.Conversation{Phone: rp.FromPhone}
			byPhone[rp.FromPhone] = c
		}
		c.Total++
		if !rp.IsRead {
			c.Unread++
		}
		if !rp.ReceivedAt.Before(c.LastAt) {
			c.LastAt = rp.ReceivedAt
			c.LastText = rp.Text
		}
	}

	out := make([]model.Conversation, 0, len(byPhone))
	for _, c := range byPhone {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAt.After(out[j].LastAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func visible(rp model.Reply, organizationID *int64) bool {
	return organizationID == nil || rp.OrganizationID == nil || *rp.OrganizationID == *organizationID
}

func (r *Replies) Thread(_ context.Context, organizationID *int64, phone string, limit int) ([]model.Reply, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Reply
	for _, rp := range r.s.replies {
		if rp.FromPhone == phone && visible(rp, organizationID) {
			out = append(out, rp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Replies) MarkRead(_ context.Context, organizationID *int64, phone string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.replies {
		rp := r.s.replies[i]
		if rp.FromPhone == phone && !rp.IsRead && visible(rp, organizationID) {
			r.s.replies[i].IsRead = true
			n++
		}
	}
	return n, nil
}

type Tokens struct{ s *Store }

var _ repository.TokensRepository = (*Tokens)(nil)

func (r *Tokens) FindValid(_ context.Context, phone string, now time.Time) (*model.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *model.Token
	for _, t := range r.s.tokens {
		if t.Phone != phone || t.Expired(now) {
			continue
		}
		if best == nil || t.ExpiresAt.After(best.ExpiresAt) {
			tt := t
			best = &tt
		}
	}
	return best, nil
}

func (r *Tokens) Insert(_ context.Context, t model.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.Token]; ok {
		return model.ErrDuplicate
	}
	r.s.tokens[t.Token] = t
	return nil
}

func (r *Tokens) Get(_ context.Context, token string) (*model.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *Tokens) Touch(_ context.Context, token string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[token]; ok {
		t.LastUsedAt = &at
		r.s.tokens[token] = t
	}
	return nil
}
