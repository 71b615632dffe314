package memstore

import (
	"context"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
)

type Messages struct{ s *Store }

var _ repository.MessagesRepository = (*Messages)(nil)

func (r *Messages) Claim(_ context.Context, m model.Message, window time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if m.SignupID != nil {
		cutoff := m.CreatedAt.Add(-window)
		for _, x := range r.s.messages {
			if x.SignupID != nil && *x.SignupID == *m.SignupID && x.Type == m.Type &&
				x.Status != model.StatusFailed && x.CreatedAt.After(cutoff) {
				return false, nil
			}
		}
	}
	m.Status = model.StatusPending
	m.UpdatedAt = m.CreatedAt
	r.s.messages = append(r.s.messages, m)
	return true, nil
}

func (r *Messages) update(id string, fn func(*model.Message)) {
	for i := range r.s.messages {
		if r.s.messages[i].ID == id {
			fn(&r.s.messages[i])
			return
		}
	}
}

func (r *Messages) MarkSent(_ context.Context, id, providerID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.update(id, func(m *model.Message) {
		m.Status = model.StatusSent
		m.ProviderID = &providerID
		m.SentAt = &at
		m.UpdatedAt = at
	})
	return nil
}

func (r *Messages) MarkFailed(_ context.Context, id, errText string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.update(id, func(m *model.Message) {
		m.Status = model.StatusFailed
		m.Error = &errText
		m.UpdatedAt = at
	})
	return nil
}

func (r *Messages) GetByProviderID(_ context.Context, providerID string) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.messages) - 1; i >= 0; i-- {
		m := r.s.messages[i]
		if m.ProviderID != nil && *m.ProviderID == providerID {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *Messages) LatestBySignups(_ context.Context, signupIDs []int64, typ model.MessageType) (map[int64]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[int64]bool, len(signupIDs))
	for _, id := range signupIDs {
		want[id] = true
	}
	out := make(map[int64]model.Message)
	for _, m := range r.s.messages {
		if m.SignupID == nil || !want[*m.SignupID] || m.Type != typ {
			continue
		}
		if cur, ok := out[*m.SignupID]; !ok || !m.CreatedAt.Before(cur.CreatedAt) {
			out[*m.SignupID] = m
		}
	}
	return out, nil
}
