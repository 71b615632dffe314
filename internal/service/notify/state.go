package notify

import (
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
)

type State string

const (
	StateNoPhone   State = "no_phone"
	StateOptedOut  State = "opted_out"
	StateNoConsent State = "no_consent"
	StatePending   State = "pending"
	StateSent      State = "sent"
	StateFailed    State = "failed"
)

// DeriveState computes a signup's reminder state from its consent flags and
// its newest reminder message (nil when none exists).
func DeriveState(s model.Signup, latest *model.Message, now time.Time, window time.Duration) State {
	switch {
	case s.Phone == nil:
		return StateNoPhone
	case s.SMSOptedOut:
		return StateOptedOut
	case !s.SMSConsent:
		return StateNoConsent
	case latest == nil:
		return StatePending
	case latest.Status == model.StatusFailed:
		return StateFailed
	case latest.Status == model.StatusSent && latest.CreatedAt.After(now.Add(-window)):
		return StateSent
	}
	return StatePending
}
