package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/service/tokens"
	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultSendDelay = 250 * time.Millisecond

// Per-signup result statuses as reported to callers.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Result struct {
	SignupID  int64  `json:"signup_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Report tallies one dispatch call. Sent+Failed+Skipped == Total.
type Report struct {
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

func (r *Report) add(res Result) {
	switch res.Status {
	case StatusSent:
		r.Sent++
	case StatusFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Total++
	r.Results = append(r.Results, res)
}

type Templates struct {
	Reminder     string
	Confirmation string
}

type Dispatcher struct {
	signups  repository.SignupsRepository
	events   repository.EventsRepository
	messages repository.MessagesRepository
	sender   *Sender
	issuer   *tokens.Issuer
	log      *zap.Logger

	Templates   Templates
	SendDelay   time.Duration
	DedupWindow time.Duration
	Now         func() time.Time
}

func NewDispatcher(
	signups repository.SignupsRepository,
	events repository.EventsRepository,
	messages repository.MessagesRepository,
	sender *Sender,
	issuer *tokens.Issuer,
	tpl Templates,
	log *zap.Logger,
) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		signups:     signups,
		events:      events,
		messages:    messages,
		sender:      sender,
		issuer:      issuer,
		log:         log,
		Templates:   tpl,
		SendDelay:   DefaultSendDelay,
		DedupWindow: DefaultDedupWindow,
		Now:         time.Now,
	}
}

// batch holds the per-call caches.
type batch struct {
	tokens   *tokens.Cache
	contexts map[int64]*model.EventContext
}

func (d *Dispatcher) newBatch() *batch {
	return &batch{tokens: d.issuer.NewCache(), contexts: map[int64]*model.EventContext{}}
}

// SendReminders texts every eligible signup in scope, one at a time with
// SendDelay between sends. Per-signup failures are tallied, never returned.
// If ctx ends mid-batch the report covers what was processed so far.
func (d *Dispatcher) SendReminders(ctx context.Context, scope model.Scope) (Report, error) {
	rep := Report{Results: []Result{}}
	if !scope.Valid() {
		return rep, model.Invalid("scope", "exactly one of signup_id, list_id, event_id is required")
	}

	recipients, err := d.signups.ListEligible(ctx, scope)
	if err != nil {
		return rep, fmt.Errorf("eligible signups: %w", err)
	}

	b := d.newBatch()
	limiter := d.limiter()
	for i, rcpt := range recipients {
		if i > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return rep, err
			}
		}

		res := d.deliver(ctx, b, rcpt, model.TypeReminder)
		if res.Status == StatusSent {
			if err := d.signups.MarkReminded(ctx, rcpt.SignupID, d.Now().UTC()); err != nil {
				d.log.Error("reminder bookkeeping failed", zap.Int64("signup_id", rcpt.SignupID), zap.Error(err))
			}
		}
		rep.add(res)
	}

	d.log.Info("reminder dispatch",
		zap.Int("sent", rep.Sent),
		zap.Int("failed", rep.Failed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("total", rep.Total),
	)
	return rep, nil
}

// SendConfirmation texts a freshly registered volunteer. Signups without a
// phone, consent or with an opt-out are skipped.
func (d *Dispatcher) SendConfirmation(ctx context.Context, signupID int64) (Result, error) {
	recipients, err := d.signups.ListEligible(ctx, model.Scope{SignupID: &signupID})
	if err != nil {
		return Result{}, fmt.Errorf("eligible signups: %w", err)
	}
	if len(recipients) == 0 {
		return Result{SignupID: signupID, Status: StatusSkipped, Reason: "not_eligible"}, nil
	}
	return d.deliver(ctx, d.newBatch(), recipients[0], model.TypeConfirmation), nil
}

func (d *Dispatcher) limiter() *rate.Limiter {
	if d.SendDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	l := rate.NewLimiter(rate.Every(d.SendDelay), 1)
	l.Allow() // spend the initial token so the second send waits
	return l
}

func (d *Dispatcher) deliver(ctx context.Context, b *batch, rcpt model.Recipient, typ model.MessageType) Result {
	res := Result{SignupID: rcpt.SignupID, Name: rcpt.Name}
	log := d.log.With(zap.Int64("signup_id", rcpt.SignupID), zap.String("type", typ.String()))

	ec, err := d.eventContext(ctx, b, rcpt.EventID)
	if err != nil {
		log.Error("event context", zap.Error(err))
		return fail(res, "storage")
	}

	tok, err := b.tokens.Issue(ctx, rcpt.Phone)
	if err != nil {
		log.Error("issue token", zap.Error(err))
		return fail(res, "storage")
	}

	body, err := Render(d.template(ec, typ), Vars{
		Name:             rcpt.Name,
		Role:             rcpt.ListTitle,
		Event:            rcpt.EventTitle,
		Date:             rcpt.EventDate,
		Link:             d.issuer.URL(tok),
		Coordinator:      ec.CoordinatorName,
		CoordinatorPhone: ec.CoordinatorPhone,
		Org:              ec.OrganizationName,
	})
	if err != nil {
		log.Warn("render message", zap.Error(err))
		return fail(res, "template")
	}

	orgID, eventID, signupID := rcpt.OrganizationID, rcpt.EventID, rcpt.SignupID
	sr, err := d.sender.Send(ctx, Outbound{
		OrganizationID: &orgID,
		SignupID:       &signupID,
		EventID:        &eventID,
		Phone:          rcpt.Phone,
		Body:           body,
		Type:           typ,
	})
	if err != nil {
		log.Error("send", zap.String("phone", util.MaskPhone(rcpt.Phone)), zap.Error(err))
		return fail(res, "storage")
	}

	res.MessageID = sr.MessageID
	switch sr.Outcome {
	case OutcomeSent:
		res.Status = StatusSent
	case OutcomeDuplicate:
		res.Status = StatusSkipped
		res.Reason = "already_sent"
	default:
		res.Status = StatusFailed
		res.Reason = sr.Error
	}
	return res
}

func fail(res Result, reason string) Result {
	res.Status = StatusFailed
	res.Reason = reason
	return res
}

func (d *Dispatcher) eventContext(ctx context.Context, b *batch, eventID int64) (*model.EventContext, error) {
	if ec, ok := b.contexts[eventID]; ok {
		return ec, nil
	}
	ec, err := d.events.Context(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ec == nil {
		return nil, fmt.Errorf("event %d: %w", eventID, model.ErrNotFound)
	}
	b.contexts[eventID] = ec
	return ec, nil
}

// template prefers the event or organization reminder text over the
// configured default. Confirmations always use the configured text.
func (d *Dispatcher) template(ec *model.EventContext, typ model.MessageType) string {
	if typ == model.TypeConfirmation {
		return d.Templates.Confirmation
	}
	if ec.ReminderTemplate != "" {
		return ec.ReminderTemplate
	}
	return d.Templates.Reminder
}

// ReminderStatus is the derived reminder state of one signup.
type ReminderStatus struct {
	SignupID       int64      `json:"signup_id"`
	Name           string     `json:"name"`
	State          State      `json:"state"`
	ReminderCount  int        `json:"reminder_count"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// ReminderStatuses derives the state of every active signup on a list from
// its consent flags and newest reminder message.
func (d *Dispatcher) ReminderStatuses(ctx context.Context, listID int64) ([]ReminderStatus, error) {
	signups, err := d.signups.ListByList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	ids := make([]int64, len(signups))
	for i, s := range signups {
		ids[i] = s.ID
	}
	latest, err := d.messages.LatestBySignups(ctx, ids, model.TypeReminder)
	if err != nil {
		return nil, fmt.Errorf("latest reminders: %w", err)
	}

	window := d.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	now := d.Now().UTC()
	out := make([]ReminderStatus, 0, len(signups))
	for _, s := range signups {
		var last *model.Message
		if m, ok := latest[s.ID]; ok {
			last = &m
		}
		st := ReminderStatus{
			SignupID:       s.ID,
			Name:           s.Name,
			State:          DeriveState(s, last, now, window),
			ReminderCount:  s.ReminderCount,
			LastReminderAt: s.LastReminderSentAt,
		}
		if st.State == StateFailed && last.Error != nil {
			st.LastError = *last.Error
		}
		out = append(out, st)
	}
	return out, nil
}
