// Package notify renders and delivers outbound texts and keeps the message
// ledger consistent with what was actually sent.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mathemusician/church-volunteers/internal/gateway"
	"github.com/mathemusician/church-volunteers/internal/metrics"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
)

const (
	DefaultDedupWindow = 24 * time.Hour
	ledgerRetries      = 3
)

type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// Outbound is one text to deliver. SignupID enables the per-signup dedup.
type Outbound struct {
	OrganizationID *int64
	SignupID       *int64
	EventID        *int64
	Phone          string
	Body           string
	Type           model.MessageType
}

type SendResult struct {
	MessageID  string
	ProviderID string
	Outcome    Outcome
	Error      string
}

// Sender is the single send primitive. Every text goes through it.
type Sender struct {
	messages repository.MessagesRepository
	gw       gateway.Gateway
	log      *zap.Logger

	DedupWindow time.Duration
	Now         func() time.Time
	// Backoff builds the retry policy for recording a delivered text.
	Backoff func() backoff.BackOff
}

func NewSender(messages repository.MessagesRepository, gw gateway.Gateway, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		messages:    messages,
		gw:          gw,
		log:         log,
		DedupWindow: DefaultDedupWindow,
		Now:         time.Now,
		Backoff:     func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Send claims a pending ledger row, calls the gateway and records the
// outcome. A signup that already has a non-failed message of the same type
// inside the dedup window yields OutcomeDuplicate without a gateway call.
// Gateway failures are reported through the result; the error return is for
// ledger failures before the gateway call only.
func (s *Sender) Send(ctx context.Context, o Outbound) (SendResult, error) {
	now := s.Now().UTC()
	m := model.Message{
		ID:             util.NewID(),
		OrganizationID: o.OrganizationID,
		SignupID:       o.SignupID,
		EventID:        o.EventID,
		Phone:          o.Phone,
		Body:           o.Body,
		Type:           o.Type,
		Status:         model.StatusPending,
		CreatedAt:      now,
	}

	claimed, err := s.messages.Claim(ctx, m, s.DedupWindow)
	if err != nil {
		return SendResult{}, fmt.Errorf("claim message: %w", err)
	}
	if !claimed {
		metrics.MessagesTotal.WithLabelValues("skipped", o.Type.String()).Inc()
		return SendResult{Outcome: OutcomeDuplicate}, nil
	}

	log := s.log.With(
		zap.String("message_id", m.ID),
		zap.String("type", o.Type.String()),
		zap.String("phone", util.MaskPhone(o.Phone)),
	)

	providerID, sendErr := s.gw.Send(ctx, o.Phone, o.Body)
	done := s.Now().UTC()
	if sendErr != nil {
		metrics.MessagesTotal.WithLabelValues("failed", o.Type.String()).Inc()
		log.Warn("sms send failed", zap.Error(sendErr))
		if err := s.messages.MarkFailed(ctx, m.ID, sendErr.Error(), done); err != nil {
			return SendResult{}, fmt.Errorf("mark failed: %w", err)
		}
		return SendResult{MessageID: m.ID, Outcome: OutcomeFailed, Error: sendErr.Error()}, nil
	}

	metrics.MessagesTotal.WithLabelValues("sent", o.Type.String()).Inc()
	log.Info("sms sent", zap.String("provider_id", providerID))
	// The text is out; a ledger that cannot be updated is logged, not
	// reported as a failed send.
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.messages.MarkSent(ctx, m.ID, providerID, done)
	}, backoff.WithBackOff(s.Backoff()), backoff.WithMaxTries(ledgerRetries))
	if err != nil {
		log.Error("mark sent", zap.String("provider_id", providerID), zap.Error(err))
	}
	return SendResult{MessageID: m.ID, ProviderID: providerID, Outcome: OutcomeSent}, nil
}
