package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository/memstore"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func day(s string) *time.Time {
	d, _ := time.Parse(model.DateLayout, s)
	return &d
}

type fixture struct {
	store *memstore.Store
	reg   *Registry
	tpl   model.Event
}

func newFixture() *fixture {
	store := memstore.New()
	org := store.AddOrganization(model.Organization{Name: "Grace Chapel", APIKey: "k"})
	tpl := store.AddEvent(model.Event{OrganizationID: org.ID, Slug: "sunday", Title: "Sunday Service", IsRecurring: true, IsActive: true})
	reg := New(store.Events(), store.Lists(), store.Signups(), nil)
	reg.Now = func() time.Time { return now }
	return &fixture{store: store, reg: reg, tpl: tpl}
}

// instance adds a dated instance with one list per title; max 0 means unlimited.
func (f *fixture) instance(date string, titles map[string]int) map[string]model.List {
	e := f.store.AddEvent(model.Event{
		OrganizationID: f.tpl.OrganizationID,
		TemplateID:     &f.tpl.ID,
		Slug:           "sunday-" + date,
		Title:          f.tpl.Title,
		IsActive:       true,
		EventDate:      day(date),
	})
	out := map[string]model.List{}
	pos := 0
	for _, title := range []string{"Greeters", "Ushers"} {
		max, ok := titles[title]
		if !ok {
			continue
		}
		l := model.List{EventID: e.ID, Title: title, Position: pos}
		if max > 0 {
			l.MaxSlots = ptr(max)
		}
		out[title] = f.store.AddList(l)
		pos++
	}
	return out
}

func TestRegister_CapacityAndLock(t *testing.T) {
	f := newFixture()
	lists := f.instance("2026-10-18", map[string]int{"Greeters": 2})
	locked := f.store.AddList(model.List{EventID: lists["Greeters"].EventID, Title: "Band", IsLocked: true, Position: 5})
	ctx := context.Background()

	a, err := f.reg.Register(ctx, lists["Greeters"].ID, Volunteer{Name: " Ana ", Phone: "650-253-0000", SMSConsent: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Name != "Ana" || a.Phone == nil || *a.Phone != "+16502530000" || !a.SMSConsent {
		t.Errorf("signup = %+v", a)
	}
	b, err := f.reg.Register(ctx, lists["Greeters"].ID, Volunteer{Name: "Ben"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Position != 0 || b.Position != 1 {
		t.Errorf("positions = %d, %d", a.Position, b.Position)
	}

	if _, err := f.reg.Register(ctx, lists["Greeters"].ID, Volunteer{Name: "Cy"}); !errors.Is(err, model.ErrListFull) {
		t.Errorf("third registration err = %v, want ErrListFull", err)
	}
	if _, err := f.reg.Register(ctx, locked.ID, Volunteer{Name: "Dee"}); !errors.Is(err, model.ErrListLocked) {
		t.Errorf("locked err = %v, want ErrListLocked", err)
	}
	if _, err := f.reg.Register(ctx, 9999, Volunteer{Name: "Eve"}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing list err = %v, want ErrNotFound", err)
	}

	if _, err := f.reg.RegisterOverride(ctx, lists["Greeters"].ID, Volunteer{Name: "Cy"}); err != nil {
		t.Errorf("override on full list: %v", err)
	}
	if _, err := f.reg.RegisterOverride(ctx, locked.ID, Volunteer{Name: "Dee"}); err != nil {
		t.Errorf("override on locked list: %v", err)
	}
}

func TestRegister_CancelFreesSlot(t *testing.T) {
	f := newFixture()
	lists := f.instance("2026-10-18", map[string]int{"Greeters": 1})
	ctx := context.Background()

	a, _ := f.reg.Register(ctx, lists["Greeters"].ID, Volunteer{Name: "Ana"})
	cancelled, err := f.reg.Cancel(ctx, a.ID, "  sick ")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled.Cancelled() || cancelled.CancelReason == nil || *cancelled.CancelReason != "sick" {
		t.Errorf("cancelled = %+v", cancelled)
	}
	if _, err := f.reg.Cancel(ctx, a.ID, ""); !errors.Is(err, model.ErrAlreadyCancelled) {
		t.Errorf("second cancel err = %v", err)
	}
	if _, err := f.reg.Register(ctx, lists["Greeters"].ID, Volunteer{Name: "Ben"}); err != nil {
		t.Errorf("slot not freed: %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture()
	lists := f.instance("2026-10-18", map[string]int{"Greeters": 0})
	long := make([]rune, MaxNameLen+1)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name  string
		v     Volunteer
		field string
	}{
		{"blank name", Volunteer{Name: "   "}, "name"},
		{"long name", Volunteer{Name: string(long)}, "name"},
		{"short phone", Volunteer{Name: "Ana", Phone: "555-1234"}, "phone"},
		{"foreign phone", Volunteer{Name: "Ana", Phone: "+44 20 7946 0958"}, "phone"},
		{"bad email", Volunteer{Name: "Ana", Email: "ana@"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.Register(context.Background(), lists["Greeters"].ID, tt.v)
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
	if got, _ := f.store.Signups().ListByList(context.Background(), lists["Greeters"].ID); len(got) != 0 {
		t.Errorf("invalid input stored %d signups", len(got))
	}
}

func TestRegister_InheritsPhoneOptOut(t *testing.T) {
	f := newFixture()
	lists := f.instance("2026-10-18", map[string]int{"Greeters": 0})
	ctx := context.Background()
	if _, err := f.store.Signups().SetOptOutByPhone(ctx, "+16502530000", true, now); err != nil {
		t.Fatal(err)
	}

	s, err := f.reg.Register(ctx, lists["Greeters"].ID, Volunteer{Name: "Ana", Phone: "6502530000", SMSConsent: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !s.SMSOptedOut || s.OptedOutAt == nil {
		t.Errorf("signup should inherit the phone opt-out: %+v", s)
	}
}

func TestRegister_ConcurrentLastSlot(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture()
		lists := f.instance("2026-10-18", map[string]int{"Greeters": 1})

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.reg.Register(context.Background(), lists["Greeters"].ID, Volunteer{Name: "V"})
			}(i)
		}
		wg.Wait()

		ok, full := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrListFull):
				full++
			default:
				t.Fatalf("unexpected err: %v", err)
			}
		}
		if ok != 1 || full != 1 {
			t.Fatalf("round %d: ok=%d full=%d, want 1 and 1", round, ok, full)
		}
	}
}

func TestSiblings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.instance("2026-10-11", map[string]int{"Greeters": 1}) // before today
	w1 := f.instance("2026-10-18", map[string]int{"Greeters": 1, "Ushers": 1})
	w2 := f.instance("2026-10-25", map[string]int{"Greeters": 1, "Ushers": 1})
	w3 := f.instance("2026-11-01", map[string]int{"Greeters": 2})

	f.reg.Register(ctx, w1["Greeters"].ID, Volunteer{Name: "A"})
	f.reg.Register(ctx, w2["Greeters"].ID, Volunteer{Name: "B"})
	f.reg.Register(ctx, w2["Ushers"].ID, Volunteer{Name: "C"})

	sibs, err := f.reg.Siblings(ctx, w1["Greeters"].ID)
	if err != nil {
		t.Fatalf("Siblings: %v", err)
	}
	if len(sibs) != 3 {
		t.Fatalf("siblings = %d, want 3", len(sibs))
	}
	if !sibs[0].Current || sibs[0].Remaining != 0 || !sibs[0].OtherRolesOpen {
		t.Errorf("week 1 = %+v", sibs[0])
	}
	if sibs[1].Remaining != 0 || sibs[1].OtherRolesOpen {
		t.Errorf("week 2 = %+v", sibs[1])
	}
	if sibs[2].Remaining != 2 || sibs[2].OtherRolesOpen {
		t.Errorf("week 3 = %+v", sibs[2])
	}

	next, err := f.reg.NextOpen(ctx, w1["Greeters"].ID)
	if err != nil {
		t.Fatalf("NextOpen: %v", err)
	}
	if next == nil || next.ListID != w3["Greeters"].ID {
		t.Errorf("NextOpen = %+v, want week 3", next)
	}
}

func TestSiblings_ToleratesMissing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	w1 := f.instance("2026-10-18", map[string]int{"Greeters": 1})
	w2 := f.instance("2026-10-25", map[string]int{"Greeters": 1})

	f.store.DeleteEvent(w2["Greeters"].EventID)
	f.store.DeleteEvent(f.tpl.ID)

	sibs, err := f.reg.Siblings(ctx, w1["Greeters"].ID)
	if err != nil {
		t.Fatalf("Siblings: %v", err)
	}
	if len(sibs) != 1 || !sibs[0].Current {
		t.Errorf("siblings = %+v", sibs)
	}

	standalone := f.store.AddEvent(model.Event{OrganizationID: f.tpl.OrganizationID, Slug: "picnic", Title: "Picnic", IsActive: true, EventDate: day("2026-10-20")})
	l := f.store.AddList(model.List{EventID: standalone.ID, Title: "Grill"})
	if sibs, err := f.reg.Siblings(ctx, l.ID); err != nil || len(sibs) != 0 {
		t.Errorf("standalone siblings = %v, %v", sibs, err)
	}
	if _, err := f.reg.Siblings(ctx, 9999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing list err = %v", err)
	}
}
