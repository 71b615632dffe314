package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mathemusician/church-volunteers/internal/app"
	"github.com/mathemusician/church-volunteers/internal/config"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository/memstore"
	"github.com/mathemusician/church-volunteers/internal/service/replies"
)

var now = time.Date(2026, 10, 15, 17, 0, 0, 0, time.UTC)

const (
	apiKey     = "org-key"
	cronSecret = "cron-secret"
	hookSecret = "whsec_test"
)

type stubGateway struct {
	mu   sync.Mutex
	sent []string
}

func (g *stubGateway) Send(_ context.Context, to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, to+": "+body)
	return "tb-" + strconv.Itoa(len(g.sent)), nil
}

func (g *stubGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type testServer struct {
	srv   *Server
	store *memstore.Store
	gw    *stubGateway
	org   model.Organization
}

func memRepos(s *memstore.Store) app.Repos {
	return app.Repos{
		Organizations: s.Organizations(),
		Events:        s.Events(),
		Lists:         s.Lists(),
		Signups:       s.Signups(),
		Messages:      s.Messages(),
		Replies:       s.Replies(),
		Tokens:        s.Tokens(),
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.App.LogLevel = "error"
	cfg.Notify.SendDelay = 0
	cfg.Cron.Secret = cronSecret
	cfg.Webhook.Secret = hookSecret

	store := memstore.New()
	gw := &stubGateway{}
	svc := app.Build(cfg, memRepos(store), gw, nil)

	clock := func() time.Time { return now }
	svc.Generator.Now = clock
	svc.Registry.Now = clock
	svc.Sender.Now = clock
	svc.Dispatcher.Now = clock
	svc.Issuer.WithClock(clock)
	svc.SelfService.Now = clock

	org := store.AddOrganization(model.Organization{Name: "Grace Chapel", APIKey: apiKey, Status: "active"})
	return &testServer{srv: NewServer(cfg, svc, nil), store: store, gw: gw, org: org}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	return ts.do(t, method, path, body, map[string]string{"X-API-Key": apiKey})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func date(s string) *time.Time {
	d, _ := time.Parse(model.DateLayout, s)
	return &d
}

// series seeds a template with one dated instance per date, each with a
// single list of the given capacity.
func (ts *testServer) series(role string, max int, dates ...string) (model.Event, []model.List) {
	tpl := ts.store.AddEvent(model.Event{OrganizationID: ts.org.ID, Slug: "sunday-service", Title: "Sunday Service", IsRecurring: true, IsActive: true, AnchorDate: date(dates[0])})
	ts.store.AddList(model.List{EventID: tpl.ID, Title: role, MaxSlots: &max})
	var lists []model.List
	for _, d := range dates {
		e := ts.store.AddEvent(model.Event{OrganizationID: ts.org.ID, TemplateID: &tpl.ID, Slug: "sunday-service-" + d, Title: "Sunday Service", IsActive: true, EventDate: date(d)})
		lists = append(lists, ts.store.AddList(model.List{EventID: e.ID, Title: role, MaxSlots: &max}))
	}
	return tpl, lists
}

func listPath(id int64, suffix string) string {
	return "/v1/lists/" + strconv.FormatInt(id, 10) + suffix
}

func TestAdmin_RequiresActiveKey(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddOrganization(model.Organization{Name: "Closed", APIKey: "suspended-key", Status: "suspended"})

	cases := []struct {
		name string
		hdr  map[string]string
	}{
		{"missing", nil},
		{"unknown", map[string]string{"X-API-Key": "nope"}},
		{"suspended", map[string]string{"X-API-Key": "suspended-key"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/v1/admin/conversations", nil, tc.hdr)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAdmin_Generate(t *testing.T) {
	ts := newTestServer(t)
	max := 2
	tpl := ts.store.AddEvent(model.Event{OrganizationID: ts.org.ID, Slug: "sunday-service", Title: "Sunday Service", IsRecurring: true, IsActive: true, AnchorDate: date("2026-10-18")})
	ts.store.AddList(model.List{EventID: tpl.ID, Title: "Greeters", MaxSlots: &max})
	path := "/v1/admin/templates/" + strconv.FormatInt(tpl.ID, 10) + "/generate"

	rec := ts.admin(t, http.MethodPost, path, map[string]any{"weeks": 3, "from": "2026-10-18"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decode[struct {
		Created []model.Event `json:"created"`
	}](t, rec)
	if len(res.Created) != 3 {
		t.Fatalf("created %d, want 3", len(res.Created))
	}
	if got := res.Created[2].EventDate.Format(model.DateLayout); got != "2026-11-01" {
		t.Errorf("third date = %s, want 2026-11-01", got)
	}

	if rec := ts.admin(t, http.MethodPost, path, map[string]any{"weeks": 3, "from": "18/10/2026"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad from: status = %d, want 400", rec.Code)
	}
	if rec := ts.admin(t, http.MethodPost, path, map[string]any{"weeks": 60}); rec.Code != http.StatusBadRequest {
		t.Errorf("too many weeks: status = %d, want 400", rec.Code)
	}

	other := ts.store.AddOrganization(model.Organization{Name: "Other", APIKey: "other-key", Status: "active"})
	rec = ts.do(t, http.MethodPost, path, map[string]any{"weeks": 1}, map[string]string{"X-API-Key": other.APIKey})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign template: status = %d, want 404", rec.Code)
	}
}

func TestPublic_RegisterFullOffersNextOpen(t *testing.T) {
	ts := newTestServer(t)
	_, lists := ts.series("Greeters", 1, "2026-10-18", "2026-10-25")

	rec := ts.do(t, http.MethodPost, listPath(lists[0].ID, "/signups"),
		map[string]any{"name": "ana lopez", "phone": "(650) 253-0000", "sms_consent": true}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	ok := decode[struct {
		Confirmation string `json:"confirmation"`
	}](t, rec)
	if ok.Confirmation != "sent" {
		t.Errorf("confirmation = %q, want sent", ok.Confirmation)
	}
	if ts.gw.count() != 1 {
		t.Errorf("gateway sends = %d, want 1", ts.gw.count())
	}

	rec = ts.do(t, http.MethodPost, listPath(lists[0].ID, "/signups"), map[string]any{"name": "Ben"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	full := decode[struct {
		Error    string `json:"error"`
		NextOpen *struct {
			ListID int64 `json:"list_id"`
		} `json:"next_open"`
	}](t, rec)
	if full.Error != "full" || full.NextOpen == nil || full.NextOpen.ListID != lists[1].ID {
		t.Errorf("409 body = %s", rec.Body)
	}

	rec = ts.do(t, http.MethodGet, listPath(lists[0].ID, "/siblings"), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("siblings status = %d", rec.Code)
	}
	sib := decode[struct {
		Siblings []struct {
			ListID    int64 `json:"list_id"`
			Remaining int   `json:"remaining"`
			Current   bool  `json:"current"`
		} `json:"siblings"`
	}](t, rec)
	if len(sib.Siblings) != 2 || !sib.Siblings[0].Current || sib.Siblings[0].Remaining != 0 || sib.Siblings[1].Remaining != 1 {
		t.Errorf("siblings = %+v", sib.Siblings)
	}
}

func TestPublic_RegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	_, lists := ts.series("Greeters", 2, "2026-10-18")

	rec := ts.do(t, http.MethodPost, listPath(lists[0].ID, "/signups"), map[string]any{"name": "Ana", "phone": "12"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad phone: status = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/v1/lists/abc/signups", map[string]any{"name": "Ana"}, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, listPath(9999, "/signups"), map[string]any{"name": "Ana"}, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing list: status = %d, want 404", rec.Code)
	}
}

func TestManage_OverviewAndCancel(t *testing.T) {
	ts := newTestServer(t)
	_, lists := ts.series("Greeters", 2, "2026-10-18")

	rec := ts.do(t, http.MethodPost, listPath(lists[0].ID, "/signups"),
		map[string]any{"name": "Ana", "phone": "6502530000", "sms_consent": true}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}
	toks := ts.store.AllTokens()
	if len(toks) != 1 {
		t.Fatalf("tokens = %d, want 1", len(toks))
	}
	path := "/v1/manage/" + toks[0].Token

	rec = ts.do(t, http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview status = %d", rec.Code)
	}
	ov := decode[struct {
		Phone  string `json:"phone"`
		Events []struct {
			Signups []struct {
				SignupID int64 `json:"signup_id"`
			} `json:"signups"`
		} `json:"events"`
	}](t, rec)
	if len(ov.Events) != 1 || len(ov.Events[0].Signups) != 1 {
		t.Fatalf("overview = %s", rec.Body)
	}
	if ov.Phone == "+16502530000" {
		t.Errorf("phone is not masked")
	}
	signupID := ov.Events[0].Signups[0].SignupID

	cancel := map[string]any{"signup_id": signupID, "reason": "travelling"}
	if rec := ts.do(t, http.MethodPost, path+"/cancel", cancel, nil); rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body)
	}
	if rec := ts.do(t, http.MethodPost, path+"/cancel", cancel, nil); rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/manage/unknown", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown token status = %d, want 404", rec.Code)
	}
}

func TestAdmin_Reminders(t *testing.T) {
	ts := newTestServer(t)
	_, lists := ts.series("Greeters", 5, "2026-10-18")
	phone := "+16502530000"
	ts.store.AddSignup(model.Signup{ListID: lists[0].ID, Name: "Ana", Phone: &phone, SMSConsent: true})
	ts.store.AddSignup(model.Signup{ListID: lists[0].ID, Name: "Ben"})

	if rec := ts.admin(t, http.MethodPost, "/v1/admin/reminders", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty scope status = %d, want 400", rec.Code)
	}

	rec := ts.admin(t, http.MethodPost, "/v1/admin/reminders", map[string]any{"list_id": lists[0].ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	rep := decode[struct {
		Sent    int               `json:"sent"`
		Total   int               `json:"total"`
		Results []json.RawMessage `json:"results"`
	}](t, rec)
	if rep.Sent != 1 || rep.Total != 1 || rep.Results != nil {
		t.Errorf("report = %s", rec.Body)
	}

	rec = ts.admin(t, http.MethodPost, "/v1/admin/reminders?detail=true", map[string]any{"list_id": lists[0].ID})
	detail := decode[struct {
		Skipped int `json:"skipped"`
		Results []struct {
			Reason string `json:"reason"`
		} `json:"results"`
	}](t, rec)
	if detail.Skipped != 1 || len(detail.Results) != 1 || detail.Results[0].Reason != "already_sent" {
		t.Errorf("detail report = %s", rec.Body)
	}

	rec = ts.admin(t, http.MethodGet, "/v1/admin/lists/"+strconv.FormatInt(lists[0].ID, 10)+"/reminders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("statuses = %d", rec.Code)
	}
	st := decode[struct {
		Signups []json.RawMessage `json:"signups"`
	}](t, rec)
	if len(st.Signups) != 2 {
		t.Errorf("statuses rows = %d, want 2", len(st.Signups))
	}
}

func TestAdmin_OverrideAndCancel(t *testing.T) {
	ts := newTestServer(t)
	_, lists := ts.series("Greeters", 1, "2026-10-18")
	ts.store.AddSignup(model.Signup{ListID: lists[0].ID, Name: "Ana"})

	path := "/v1/admin/lists/" + strconv.FormatInt(lists[0].ID, 10) + "/signups"
	rec := ts.admin(t, http.MethodPost, path, map[string]any{"name": "Ben"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("override status = %d, body %s", rec.Code, rec.Body)
	}
	s := decode[model.Signup](t, rec)

	del := "/v1/admin/signups/" + strconv.FormatInt(s.ID, 10) + "?reason=duplicate"
	if rec := ts.admin(t, http.MethodDelete, del, nil); rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d", rec.Code)
	}
	if got := ts.store.Signup(s.ID); !got.Cancelled() {
		t.Errorf("signup %d not cancelled", s.ID)
	}
}

func TestWebhook(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/v1/sms/webhook", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("probe status = %d", rec.Code)
	}

	body := []byte(`{"textId":"tb-9","fromNumber":"+16502530000","text":"STOP"}`)

	post := func(hdr map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/sms/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range hdr {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		ts.srv.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned status = %d, want 401", rec.Code)
	}

	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	rec := post(map[string]string{
		replies.HeaderSignature: replies.Sign(hookSecret, stamp, body),
		replies.HeaderTimestamp: stamp,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signed status = %d, body %s", rec.Code, rec.Body)
	}
	out := decode[replies.Outcome](t, rec)
	if out.Intent != model.IntentStop {
		t.Errorf("intent = %q, want stop", out.Intent)
	}
	if !ts.store.PhoneOptedOut("+16502530000") {
		t.Errorf("phone not opted out")
	}
}

func TestCron_MaintainInstances(t *testing.T) {
	ts := newTestServer(t)
	max := 2
	tpl := ts.store.AddEvent(model.Event{OrganizationID: ts.org.ID, Slug: "sunday-service", Title: "Sunday Service", IsRecurring: true, IsActive: true})
	ts.store.AddList(model.List{EventID: tpl.ID, Title: "Greeters", MaxSlots: &max})

	if rec := ts.do(t, http.MethodPost, "/v1/cron/maintain-instances", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no secret: status = %d, want 401", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/v1/cron/maintain-instances", nil, map[string]string{"Authorization": "Bearer " + cronSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decode[struct {
		Templates int `json:"templates"`
		Created   int `json:"created"`
	}](t, rec)
	if res.Templates != 1 || res.Created != 5 {
		t.Errorf("maintain = %s", rec.Body)
	}
}

func TestReports_Unconfigured(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.admin(t, http.MethodGet, "/v1/admin/reports/messages", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}


func TestAdmin_InboxScopedToOrganization(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	other := ts.store.AddOrganization(model.Organization{Name: "Other", APIKey: "other-key", Status: "active"})
	if err := ts.store.Replies().Insert(ctx, model.Reply{ID: "r1", OrganizationID: &ts.org.ID, FromPhone: "+16502530000", Text: "running late", ReceivedAt: now}); err != nil {
		t.Fatal(err)
	}
	otherKey := map[string]string{"X-API-Key": other.APIKey}

	rec := ts.do(t, http.MethodGet, "/v1/admin/conversations/6502530000", nil, otherKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if res := decode[struct {
		Count int `json:"count"`
	}](t, rec); res.Count != 0 {
		t.Errorf("foreign thread count = %d, want 0", res.Count)
	}

	rec = ts.do(t, http.MethodPost, "/v1/admin/conversations/6502530000/read", nil, otherKey)
	if res := decode[struct {
		Marked int `json:"marked"`
	}](t, rec); res.Marked != 0 {
		t.Errorf("foreign marked = %d, want 0", res.Marked)
	}

	rec = ts.admin(t, http.MethodGet, "/v1/admin/conversations/6502530000", nil)
	if res := decode[struct {
		Results []model.Reply `json:"results"`
	}](t, rec); len(res.Results) != 1 || res.Results[0].IsRead {
		t.Errorf("own thread = %+v, want one unread reply", res.Results)
	}
}
