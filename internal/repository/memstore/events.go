package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
)

type Organizations struct{ s *Store }

var _ repository.OrganizationsRepository = (*Organizations)(nil)

func (r *Organizations) GetByAPIKey(_ context.Context, apiKey string) (*model.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orgs {
		if o.APIKey == apiKey {
			return &o, nil
		}
	}
	return nil, nil
}

type Events struct{ s *Store }

var _ repository.EventsRepository = (*Events)(nil)

func (r *Events) GetByID(_ context.Context, id int64) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *Events) ListActiveTemplates(_ context.Context) ([]model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Event
	for _, e := range r.s.events {
		if e.IsTemplate() && e.IsActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Events) ListInstances(_ context.Context, templateID int64) ([]model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Event
	for _, e := range r.s.events {
		if e.TemplateID != nil && *e.TemplateID == templateID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventDate.Equal(*out[j].EventDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].EventDate.Before(*out[j].EventDate)
	})
	return out, nil
}

func (r *Events) SlugExists(_ context.Context, organizationID int64, slug string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if e.OrganizationID == organizationID && e.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *Events) InstanceExists(_ context.Context, templateID int64, date time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.instanceExists(templateID, date), nil
}

func (r *Events) instanceExists(templateID int64, date time.Time) bool {
	for _, e := range r.s.events {
		if e.TemplateID != nil && *e.TemplateID == templateID && sameDate(e.EventDate, date) {
			return true
		}
	}
	return false
}

func (r *Events) CreateInstance(_ context.Context, inst model.Event, lists []model.List) (model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.CreateInstanceHook != nil {
		if err := r.s.CreateInstanceHook(inst); err != nil {
			return model.Event{}, err
		}
	}
	if inst.TemplateID != nil && inst.EventDate != nil && r.instanceExists(*inst.TemplateID, *inst.EventDate) {
		return model.Event{}, model.ErrDuplicate
	}
	for _, e := range r.s.events {
		if e.OrganizationID == inst.OrganizationID && e.Slug == inst.Slug {
			return model.Event{}, model.ErrSlugTaken
		}
	}

	now := time.Now().UTC()
	inst.ID = r.s.id()
	inst.CreatedAt, inst.UpdatedAt = now, now
	r.s.events[inst.ID] = inst
	for _, l := range lists {
		l.ID = r.s.id()
		l.EventID = inst.ID
		l.CreatedAt = now
		r.s.lists[l.ID] = l
	}
	return inst, nil
}

func (r *Events) Context(_ context.Context, eventID int64) (*model.EventContext, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return nil, nil
	}
	o := r.s.orgs[e.OrganizationID]
	return &model.EventContext{
		EventID:          e.ID,
		OrganizationID:   e.OrganizationID,
		OrganizationName: o.Name,
		EventTitle:       e.Title,
		EventDate:        e.EventDate,
		ReminderTemplate: coalesce(e.ReminderTemplate, o.ReminderTemplate),
		CoordinatorName:  coalesce(e.CoordinatorName, o.CoordinatorName),
		CoordinatorPhone: coalesce(e.CoordinatorPhone, o.CoordinatorPhone),
	}, nil
}

func coalesce(vals ...*string) string {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return ""
}
