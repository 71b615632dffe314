// Package replies ingests inbound texts from the SMS provider webhook and
// applies their opt-out, opt-in and help semantics.
package replies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mathemusician/church-volunteers/internal/metrics"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/service/notify"
	"github.com/mathemusician/church-volunteers/internal/service/tokens"
	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
)

const (
	maxTextLen   = 1600
	storeRetries = 3

	stopReply  = "You have been unsubscribed and will receive no more texts. Reply START to resubscribe."
	startReply = "You are resubscribed to volunteer reminders. Reply STOP at any time to opt out."
)

// Payload is the provider's inbound webhook body.
type Payload struct {
	TextID     string          `json:"textId"`
	FromNumber string          `json:"fromNumber"`
	Text       string          `json:"text"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type Outcome struct {
	ReplyID    string       `json:"reply_id"`
	Intent     model.Intent `json:"intent"`
	Correlated bool         `json:"correlated"`
	Answered   bool         `json:"answered"`
}

type Ingestor struct {
	messages repository.MessagesRepository
	replies  repository.RepliesRepository
	signups  repository.SignupsRepository
	sender   *notify.Sender
	issuer   *tokens.Issuer
	verifier Verifier
	log      *zap.Logger

	Now func() time.Time
	// Backoff builds the retry policy for storage writes.
	Backoff func() backoff.BackOff
}

func NewIngestor(
	messages repository.MessagesRepository,
	replies repository.RepliesRepository,
	signups repository.SignupsRepository,
	sender *notify.Sender,
	issuer *tokens.Issuer,
	verifier Verifier,
	log *zap.Logger,
) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{
		messages: messages,
		replies:  replies,
		signups:  signups,
		sender:   sender,
		issuer:   issuer,
		verifier: verifier,
		log:      log,
		Now:      time.Now,
		Backoff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Ingest authenticates, stores and acts on one inbound text. Authentication
// failures return an *AuthError and write nothing. Consent changes are
// committed before any confirmation is attempted, so a gateway outage never
// leaves an opt-out unrecorded.
func (in *Ingestor) Ingest(ctx context.Context, body []byte, h SignatureHeaders) (Outcome, error) {
	if err := in.verifier.Verify(body, h); err != nil {
		reason := "unknown"
		var ae *AuthError
		if errors.As(err, &ae) {
			reason = ae.Reason
		}
		metrics.WebhookRejected.WithLabelValues(reason).Inc()
		in.log.Warn("webhook rejected", zap.Bool("security", true), zap.String("reason", reason))
		return Outcome{}, err
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Outcome{}, model.Invalid("body", "malformed JSON")
	}
	phone, err := util.NormalizePhone(p.FromNumber)
	if err != nil {
		return Outcome{}, model.Invalid("fromNumber", "not a deliverable number")
	}
	text := strings.TrimSpace(p.Text)
	if r := []rune(text); len(r) > maxTextLen {
		text = string(r[:maxTextLen])
	}

	now := in.Now().UTC()
	rp := model.Reply{
		ID:         util.NewID(),
		FromPhone:  phone,
		Text:       text,
		Intent:     Classify(text),
		ReceivedAt: now,
	}

	// best effort: an unknown or reused textId leaves the reply unlinked
	var orig *model.Message
	if p.TextID != "" {
		orig, err = in.messages.GetByProviderID(ctx, p.TextID)
		if err != nil {
			in.log.Warn("reply correlation failed", zap.String("text_id", p.TextID), zap.Error(err))
			orig = nil
		}
	}
	if orig != nil {
		rp.MessageID = &orig.ID
		rp.OrganizationID = orig.OrganizationID
	}

	if err := in.retry(ctx, func() error { return in.replies.Insert(ctx, rp) }); err != nil {
		return Outcome{}, fmt.Errorf("store reply: %w", err)
	}
	metrics.RepliesTotal.WithLabelValues(rp.Intent.String()).Inc()

	out := Outcome{ReplyID: rp.ID, Intent: rp.Intent, Correlated: orig != nil}
	log := in.log.With(
		zap.String("reply_id", rp.ID),
		zap.String("intent", rp.Intent.String()),
		zap.String("phone", util.MaskPhone(phone)),
	)

	var answer string
	switch rp.Intent {
	case model.IntentStop, model.IntentStart:
		optedOut := rp.Intent == model.IntentStop
		var n int64
		err := in.retry(ctx, func() error {
			var err error
			n, err = in.signups.SetOptOutByPhone(ctx, phone, optedOut, now)
			return err
		})
		if err != nil {
			return out, fmt.Errorf("update consent: %w", err)
		}
		log.Info("consent updated", zap.Bool("opted_out", optedOut), zap.Int64("signups", n))
		answer = startReply
		if optedOut {
			answer = stopReply
		}
	case model.IntentHelp:
		answer = in.helpText(ctx, log, phone)
	case model.IntentStatus:
		answer = in.statusText(ctx, log, phone)
	default:
		log.Info("reply stored")
		return out, nil
	}

	if answer == "" {
		return out, nil
	}
	res, err := in.sender.Send(ctx, notify.Outbound{
		OrganizationID: rp.OrganizationID,
		Phone:          phone,
		Body:           answer,
		Type:           model.TypeSystem,
	})
	if err != nil {
		log.Error("auto-reply ledger", zap.Error(err))
		return out, nil
	}
	out.Answered = res.Outcome == notify.OutcomeSent
	if !out.Answered {
		log.Warn("auto-reply not delivered", zap.String("error", res.Error))
	}
	return out, nil
}

func (in *Ingestor) helpText(ctx context.Context, log *zap.Logger, phone string) string {
	var b strings.Builder
	b.WriteString("Volunteer reminders.")
	if link := in.link(ctx, log, phone); link != "" {
		b.WriteString(" Manage your signups: " + link)
	}

	c, err := in.signups.CoordinatorForPhone(ctx, phone)
	if err != nil {
		log.Warn("coordinator lookup", zap.Error(err))
	}
	if c != nil && c.Phone != "" {
		b.WriteString(" Questions? Contact ")
		if c.Name != "" {
			b.WriteString(c.Name + " at ")
		}
		b.WriteString(c.Phone + ".")
	}
	b.WriteString(" Reply STOP to opt out.")
	return b.String()
}

func (in *Ingestor) statusText(ctx context.Context, log *zap.Logger, phone string) string {
	link := in.link(ctx, log, phone)
	if link == "" {
		return ""
	}
	return "Your signups: " + link
}

func (in *Ingestor) link(ctx context.Context, log *zap.Logger, phone string) string {
	t, err := in.issuer.Issue(ctx, phone)
	if err != nil {
		log.Error("issue token", zap.Error(err))
		return ""
	}
	return in.issuer.URL(t)
}

func (in *Ingestor) retry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(in.Backoff()), backoff.WithMaxTries(storeRetries))
	return err
}
