package registry

import (
	"context"
	"fmt"

	"github.com/mathemusician/church-volunteers/internal/model"
)

// Sibling is the same role on another date of the same recurring event.
type Sibling struct {
	model.ListAvailability
	Remaining      int  `json:"remaining"` // -1 when unlimited
	Current        bool `json:"current"`
	OtherRolesOpen bool `json:"other_roles_open"`
}

// Siblings lists same-titled lists across the template's instances from
// today on. Lists of standalone events have no siblings; instances whose
// template or rows have since been deleted are simply absent.
func (r *Registry) Siblings(ctx context.Context, listID int64) ([]Sibling, error) {
	list, err := r.lists.GetByID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	if list == nil {
		return nil, model.ErrNotFound
	}

	event, err := r.events.GetByID(ctx, list.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	var templateID int64
	switch {
	case event == nil:
		return []Sibling{}, nil
	case event.TemplateID != nil:
		templateID = *event.TemplateID
	case event.IsTemplate():
		templateID = event.ID
	default:
		return []Sibling{}, nil
	}

	window := r.SiblingWindow
	if window <= 0 {
		window = DefaultSiblingLimit
	}
	rows, err := r.lists.Siblings(ctx, templateID, list.Title, model.DateOf(r.Now()), window)
	if err != nil {
		return nil, fmt.Errorf("list siblings: %w", err)
	}
	if len(rows) == 0 {
		return []Sibling{}, nil
	}

	eventIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		eventIDs = append(eventIDs, row.EventID)
	}
	all, err := r.lists.AvailabilityByEvents(ctx, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("event availability: %w", err)
	}
	otherOpen := map[int64]bool{}
	for _, a := range all {
		if a.Title != list.Title && a.Open() {
			otherOpen[a.EventID] = true
		}
	}

	out := make([]Sibling, 0, len(rows))
	for _, row := range rows {
		out = append(out, Sibling{
			ListAvailability: row,
			Remaining:        row.Remaining(),
			Current:          row.ListID == listID,
			OtherRolesOpen:   otherOpen[row.EventID],
		})
	}
	return out, nil
}

// NextOpen returns the first sibling after the given list's date that still
// accepts signups, or nil.
func (r *Registry) NextOpen(ctx context.Context, listID int64) (*Sibling, error) {
	sibs, err := r.Siblings(ctx, listID)
	if err != nil {
		return nil, err
	}

	var after *Sibling
	for i := range sibs {
		if sibs[i].Current {
			after = &sibs[i]
			break
		}
	}
	for i := range sibs {
		s := sibs[i]
		if s.Current || !s.Open() {
			continue
		}
		if after != nil && !s.EventDate.After(after.EventDate) {
			continue
		}
		return &s, nil
	}
	return nil, nil
}
