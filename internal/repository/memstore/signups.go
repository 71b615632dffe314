package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
)

type Signups struct{ s *Store }

var _ repository.SignupsRepository = (*Signups)(nil)

func (r *Signups) InsertWithCapacity(_ context.Context, su model.Signup, enforce bool) (model.Signup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.lists[su.ListID]
	if !ok {
		return model.Signup{}, model.ErrNotFound
	}
	if enforce && l.IsLocked {
		return model.Signup{}, model.ErrListLocked
	}
	if enforce && l.MaxSlots != nil && r.s.filled(l.ID) >= *l.MaxSlots {
		return model.Signup{}, model.ErrListFull
	}

	next := 0
	for _, x := range r.s.signups {
		if x.ListID == su.ListID && x.Position+1 > next {
			next = x.Position + 1
		}
	}
	su.Position = next
	su.ID = r.s.id()
	r.s.signups[su.ID] = su
	return su, nil
}

func (r *Signups) GetByID(_ context.Context, id int64) (*model.Signup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	su, ok := r.s.signups[id]
	if !ok {
		return nil, nil
	}
	return &su, nil
}

func (r *Signups) ListByList(_ context.Context, listID int64) ([]model.Signup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Signup
	for _, su := range r.s.signups {
		if su.ListID == listID && su.CancelledAt == nil {
			out = append(out, su)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *Signups) Cancel(_ context.Context, id int64, reason *string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	su, ok := r.s.signups[id]
	if !ok {
		return model.ErrNotFound
	}
	if su.CancelledAt != nil {
		return model.ErrAlreadyCancelled
	}
	su.CancelledAt = &at
	su.CancelReason = reason
	r.s.signups[id] = su
	return nil
}

func (r *Signups) ListEligible(_ context.Context, scope model.Scope) ([]model.Recipient, error) {
	if !scope.Valid() {
		return nil, model.Invalid("scope", "one of signup_id, list_id, event_id is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type row struct {
		rec     model.Recipient
		listPos int
		pos     int
	}
	var rows []row
	for _, su := range r.s.signups {
		l, ok := r.s.lists[su.ListID]
		if !ok {
			continue
		}
		e, ok := r.s.events[l.EventID]
		if !ok {
			continue
		}
		switch {
		case scope.SignupID != nil && su.ID != *scope.SignupID:
			continue
		case scope.ListID != nil && l.ID != *scope.ListID:
			continue
		case scope.EventID != nil && e.ID != *scope.EventID:
			continue
		}
		if su.Phone == nil || !su.SMSConsent || su.SMSOptedOut || su.CancelledAt != nil || r.s.optouts[*su.Phone] {
			continue
		}
		rows = append(rows, row{
			rec: model.Recipient{
				SignupID:       su.ID,
				Name:           su.Name,
				Phone:          *su.Phone,
				ListID:         l.ID,
				ListTitle:      l.Title,
				EventID:        e.ID,
				EventTitle:     e.Title,
				EventDate:      e.EventDate,
				OrganizationID: e.OrganizationID,
			},
			listPos: l.Position,
			pos:     su.Position,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].listPos != rows[j].listPos {
			return rows[i].listPos < rows[j].listPos
		}
		if rows[i].pos != rows[j].pos {
			return rows[i].pos < rows[j].pos
		}
		return rows[i].rec.SignupID < rows[j].rec.SignupID
	})
	out := make([]model.Recipient, len(rows))
	for i, rw := range rows {
		out[i] = rw.rec
	}
	return out, nil
}

func (r *Signups) ListActiveByPhone(_ context.Context, phone string) ([]model.PhoneSignup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.PhoneSignup
	for _, su := range r.s.signups {
		if su.Phone == nil || *su.Phone != phone || su.CancelledAt != nil {
			continue
		}
		l := r.s.lists[su.ListID]
		e := r.s.events[l.EventID]
		out = append(out, model.PhoneSignup{
			SignupID:       su.ID,
			Name:           su.Name,
			ListID:         l.ID,
			ListTitle:      l.Title,
			EventID:        e.ID,
			EventTitle:     e.Title,
			EventDate:      e.EventDate,
			OrganizationID: e.OrganizationID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].EventDate, out[j].EventDate
		if di != nil && dj != nil && !di.Equal(*dj) {
			return di.Before(*dj)
		}
		return out[i].SignupID < out[j].SignupID
	})
	return out, nil
}

func (r *Signups) MarkReminded(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	su, ok := r.s.signups[id]
	if !ok {
		return nil
	}
	su.LastReminderSentAt = &at
	su.ReminderCount++
	r.s.signups[id] = su
	return nil
}

func (r *Signups) SetOptOutByPhone(_ context.Context, phone string, optedOut bool, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.optouts[phone] = optedOut
	var n int64
	for id, su := range r.s.signups {
		if su.Phone == nil || *su.Phone != phone {
			continue
		}
		su.SMSOptedOut = optedOut
		if optedOut {
			stamp := at
			su.OptedOutAt = &stamp
		} else {
			su.OptedOutAt = nil
		}
		r.s.signups[id] = su
		n++
	}
	return n, nil
}

func (r *Signups) IsPhoneOptedOut(_ context.Context, phone string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.optouts[phone], nil
}

func (r *Signups) CoordinatorForPhone(_ context.Context, phone string) (*model.Coordinator, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var best *model.Signup
	var coord model.Coordinator
	for _, su := range r.s.signups {
		if su.Phone == nil || *su.Phone != phone {
			continue
		}
		e := r.s.events[r.s.lists[su.ListID].EventID]
		o := r.s.orgs[e.OrganizationID]
		cp := coalesce(e.CoordinatorPhone, o.CoordinatorPhone)
		if cp == "" {
			continue
		}
		if best == nil || betterCoordinatorSource(su, *best) {
			s := su
			best = &s
			coord = model.Coordinator{Name: coalesce(e.CoordinatorName, o.CoordinatorName), Phone: cp}
		}
	}
	if best == nil {
		return nil, nil
	}
	return &coord, nil
}

// active signups win, then the most recent one
func betterCoordinatorSource(a, b model.Signup) bool {
	if (a.CancelledAt == nil) != (b.CancelledAt == nil) {
		return a.CancelledAt == nil
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
