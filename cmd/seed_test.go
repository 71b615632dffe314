package cmd

import (
	"testing"
	"time"
)

func TestNextWeekday(t *testing.T) {
	cases := []struct {
		from string
		want string
	}{
		{"2026-10-15", "2026-10-18"}, // Thursday
		{"2026-10-18", "2026-10-18"}, // already Sunday
		{"2026-10-19", "2026-10-25"},
	}
	for _, tc := range cases {
		from, _ := time.Parse("2006-01-02", tc.from)
		if got := nextWeekday(from, time.Sunday).Format("2006-01-02"); got != tc.want {
			t.Errorf("nextWeekday(%s) = %s, want %s", tc.from, got, tc.want)
		}
	}
}
