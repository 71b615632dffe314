package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
)

type Lists struct{ s *Store }

var _ repository.ListsRepository = (*Lists)(nil)

func (r *Lists) GetByID(_ context.Context, id int64) (*model.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *Lists) ListByEvent(_ context.Context, eventID int64) ([]model.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.List
	for _, l := range r.s.lists {
		if l.EventID == eventID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position == out[j].Position {
			return out[i].ID < out[j].ID
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (r *Lists) Siblings(_ context.Context, templateID int64, title string, from time.Time, limit int) ([]model.ListAvailability, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ListAvailability
	for _, l := range r.s.lists {
		e, ok := r.s.events[l.EventID]
		if !ok || e.TemplateID == nil || *e.TemplateID != templateID || !e.IsActive || e.EventDate == nil {
			continue
		}
		if l.Title != title || e.EventDate.Before(model.DateOf(from)) {
			continue
		}
		out = append(out, r.s.availability(l))
	}
	sortAvailability(out, r.s.lists)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Lists) AvailabilityByEvents(_ context.Context, eventIDs []int64) ([]model.ListAvailability, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[int64]bool, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = true
	}
	var out []model.ListAvailability
	for _, l := range r.s.lists {
		if want[l.EventID] {
			out = append(out, r.s.availability(l))
		}
	}
	sortAvailability(out, r.s.lists)
	return out, nil
}
