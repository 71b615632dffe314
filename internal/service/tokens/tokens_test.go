package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mathemusician/church-volunteers/internal/repository/memstore"
)

func TestIssue_ReusesFreshToken(t *testing.T) {
	store := memstore.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer(store.Tokens(), 0, "https://example.org/").WithClock(func() time.Time { return now })

	a, err := iss.Issue(context.Background(), "+16502530000")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(a.Token) < 40 {
		t.Errorf("token too short: %d chars", len(a.Token))
	}
	if !a.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want now+7d", a.ExpiresAt)
	}

	now = now.Add(30 * time.Minute)
	b, err := iss.Issue(context.Background(), "+16502530000")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if b.Token != a.Token {
		t.Error("expected the fresh token to be reused")
	}

	now = now.Add(24 * time.Hour)
	c, err := iss.Issue(context.Background(), "+16502530000")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if c.Token == a.Token {
		t.Error("a day-old token was reused")
	}
	if !c.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want full TTL from now", c.ExpiresAt)
	}

	if got := iss.URL(a); !strings.HasPrefix(got, "https://example.org/manage/") {
		t.Errorf("URL = %q", got)
	}
}

func TestIssue_NewTokenAfterExpiry(t *testing.T) {
	store := memstore.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer(store.Tokens(), time.Hour, "").WithClock(func() time.Time { return now })

	a, _ := iss.Issue(context.Background(), "+16502530000")
	now = now.Add(time.Hour)
	b, _ := iss.Issue(context.Background(), "+16502530000")
	if a.Token == b.Token {
		t.Error("expired token must not be reused")
	}
	if n := len(store.AllTokens()); n != 2 {
		t.Errorf("tokens stored = %d, want 2", n)
	}
}

func TestCache_IssuesOncePerPhone(t *testing.T) {
	store := memstore.New()
	iss := NewIssuer(store.Tokens(), 0, "")
	c := iss.NewCache()

	for i := 0; i < 3; i++ {
		if _, err := c.Issue(context.Background(), "+16502530000"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Issue(context.Background(), "+16502530001"); err != nil {
		t.Fatal(err)
	}
	if n := len(store.AllTokens()); n != 2 {
		t.Errorf("tokens stored = %d, want 2", n)
	}
}
