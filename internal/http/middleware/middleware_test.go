package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository/memstore"
	"github.com/redis/go-redis/v9"
)

func serve(t *testing.T, mw echo.MiddlewareFunc, hdr map[string]string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec, c
}

func TestAPIKeyMiddleware(t *testing.T) {
	store := memstore.New()
	org := store.AddOrganization(model.Organization{Name: "Grace", APIKey: "good", Status: "active"})
	store.AddOrganization(model.Organization{Name: "Closed", APIKey: "closed", Status: "suspended"})
	mw := APIKeyMiddleware(store.Organizations())

	rec, c := serve(t, mw, map[string]string{"X-API-Key": " good "})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if id, ok := OrganizationIDFromCtx(c); !ok || id != org.ID {
		t.Errorf("organization = %d,%v, want %d", id, ok, org.ID)
	}

	for _, key := range []string{"", "bad", "closed"} {
		rec, c := serve(t, mw, map[string]string{"X-API-Key": key})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want 401", key, rec.Code)
		}
		if _, ok := OrganizationIDFromCtx(c); ok {
			t.Errorf("key %q: organization set", key)
		}
	}
}

func TestCronSecretMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		auth   string
		want   int
	}{
		{"ok", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"no bearer", "s3cret", "s3cret", http.StatusUnauthorized},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"unset secret", "", "Bearer ", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := serve(t, CronSecretMiddleware(tc.secret), map[string]string{echo.HeaderAuthorization: tc.auth})
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRateLimit_PassThrough(t *testing.T) {
	t.Run("no redis", func(t *testing.T) {
		mw := RateLimitMiddleware(RateLimitConfig{RPS: 1})
		for i := 0; i < 3; i++ {
			if rec, _ := serve(t, mw, nil); rec.Code != http.StatusOK {
				t.Fatalf("request %d: status = %d", i, rec.Code)
			}
		}
	})

	t.Run("redis down fails open", func(t *testing.T) {
		rds := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
		defer rds.Close()
		mw := RateLimitMiddleware(RateLimitConfig{Redis: rds, RPS: 1})
		for i := 0; i < 3; i++ {
			if rec, _ := serve(t, mw, nil); rec.Code != http.StatusOK {
				t.Fatalf("request %d: status = %d", i, rec.Code)
			}
		}
	})
}
