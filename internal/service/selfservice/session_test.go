package selfservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository/memstore"
	"github.com/mathemusician/church-volunteers/internal/service/notify"
	"github.com/mathemusician/church-volunteers/internal/service/tokens"
)

const (
	anaPhone   = "+16502530000"
	coordPhone = "+16502539999"
)

type stubGateway struct {
	err  error
	sent []string
}

func (g *stubGateway) Send(_ context.Context, to, body string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.sent = append(g.sent, to+": "+body)
	return "tb-1", nil
}

type harness struct {
	store *memstore.Store
	gw    *stubGateway
	sess  *Session
	token string
	clock time.Time
	sigs  []model.Signup
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memstore.New(), gw: &stubGateway{}, clock: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.clock }

	sender := notify.NewSender(h.store.Messages(), h.gw, nil)
	sender.Now = clock
	h.sess = New(h.store.Tokens(), h.store.Signups(), h.store.Events(), h.store.Lists(), sender, nil)
	h.sess.Now = clock

	cp := coordPhone
	cn := "Pat"
	a := h.store.AddOrganization(model.Organization{Name: "Grace", APIKey: "a", CoordinatorPhone: &cp, CoordinatorName: &cn})
	b := h.store.AddOrganization(model.Organization{Name: "Hope", APIKey: "b"})
	d1 := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC)

	e1 := h.store.AddEvent(model.Event{OrganizationID: a.ID, Slug: "s1", Title: "Sunday Service", IsActive: true, EventDate: &d1})
	e2 := h.store.AddEvent(model.Event{OrganizationID: b.ID, Slug: "food", Title: "Food Drive", IsActive: true, EventDate: &d2})
	greeters := h.store.AddList(model.List{EventID: e1.ID, Title: "Greeters"})
	ushers := h.store.AddList(model.List{EventID: e1.ID, Title: "Ushers", Position: 1})
	packers := h.store.AddList(model.List{EventID: e2.ID, Title: "Packers"})

	p := anaPhone
	other := "+16502530001"
	for _, l := range []model.List{greeters, ushers, packers} {
		h.sigs = append(h.sigs, h.store.AddSignup(model.Signup{ListID: l.ID, Name: "Ana", Phone: &p, SMSConsent: true}))
	}
	h.sigs = append(h.sigs, h.store.AddSignup(model.Signup{ListID: greeters.ID, Name: "Ben", Phone: &other}))

	tok, err := tokens.NewIssuer(h.store.Tokens(), 0, "").WithClock(clock).Issue(context.Background(), anaPhone)
	if err != nil {
		t.Fatal(err)
	}
	h.token = tok.Token
	return h
}

func TestResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	phone, err := h.sess.Resolve(ctx, h.token)
	if err != nil || phone != anaPhone {
		t.Fatalf("Resolve = %q, %v", phone, err)
	}
	if _, err := h.sess.Resolve(ctx, "bogus"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown token err = %v", err)
	}

	h.clock = h.clock.Add(7*24*time.Hour - time.Second)
	if _, err := h.sess.Resolve(ctx, h.token); err != nil {
		t.Errorf("token should still resolve: %v", err)
	}
	h.clock = h.clock.Add(time.Second)
	if _, err := h.sess.Resolve(ctx, h.token); !errors.Is(err, model.ErrTokenExpired) {
		t.Errorf("expired err = %v", err)
	}
	ov, err := h.sess.Overview(ctx, h.token)
	if !errors.Is(err, model.ErrTokenExpired) || len(ov.Events) != 0 {
		t.Errorf("expired overview = %+v, %v", ov, err)
	}
}

func TestOverview_GroupsByEventAcrossOrganizations(t *testing.T) {
	h := newHarness(t)
	ov, err := h.sess.Overview(context.Background(), h.token)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(ov.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(ov.Events))
	}
	if ov.Events[0].Title != "Sunday Service" || len(ov.Events[0].Signups) != 2 {
		t.Errorf("first group = %+v", ov.Events[0])
	}
	if ov.Events[1].Title != "Food Drive" || len(ov.Events[1].Signups) != 1 {
		t.Errorf("second group = %+v", ov.Events[1])
	}
	if strings.Contains(ov.Phone, "6502530000") {
		t.Errorf("phone should be masked: %q", ov.Phone)
	}
}

func TestCancel_NotifiesCoordinator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sum, err := h.sess.Cancel(ctx, h.token, h.sigs[0].ID, "  out of town ")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if sum.Role != "Greeters" || sum.Event != "Sunday Service" || !sum.CoordinatorNotified {
		t.Errorf("summary = %+v", sum)
	}
	s := h.store.Signup(h.sigs[0].ID)
	if !s.Cancelled() || s.CancelReason == nil || *s.CancelReason != "out of town" {
		t.Errorf("signup = %+v", s)
	}
	want := coordPhone + ": Ana cancelled as Greeters for Sunday Service on Sun Oct 18. Reason: out of town"
	if len(h.gw.sent) != 1 || h.gw.sent[0] != want {
		t.Errorf("sent = %q, want %q", h.gw.sent, want)
	}
	for _, tok := range h.store.AllTokens() {
		if tok.LastUsedAt == nil {
			t.Error("token last-used time not updated")
		}
	}

	if _, err := h.sess.Cancel(ctx, h.token, h.sigs[0].ID, ""); !errors.Is(err, model.ErrAlreadyCancelled) {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestCancel_NoCoordinatorConfigured(t *testing.T) {
	h := newHarness(t)
	sum, err := h.sess.Cancel(context.Background(), h.token, h.sigs[2].ID, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if sum.CoordinatorNotified || len(h.gw.sent) != 0 {
		t.Errorf("no coordinator should be texted: %+v", sum)
	}
}

func TestCancel_NotifyFailureDoesNotFailCancel(t *testing.T) {
	h := newHarness(t)
	h.gw.err = errors.New("gateway down")

	sum, err := h.sess.Cancel(context.Background(), h.token, h.sigs[1].ID, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if sum.CoordinatorNotified {
		t.Error("notification reported despite gateway failure")
	}
	if !h.store.Signup(h.sigs[1].ID).Cancelled() {
		t.Error("signup must be cancelled")
	}
}

func TestCancel_OtherPhonesSignup(t *testing.T) {
	h := newHarness(t)
	if _, err := h.sess.Cancel(context.Background(), h.token, h.sigs[3].ID, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if h.store.Signup(h.sigs[3].ID).Cancelled() {
		t.Error("foreign signup was cancelled")
	}
	if _, err := h.sess.Cancel(context.Background(), h.token, 9999, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing signup err = %v", err)
	}
}
