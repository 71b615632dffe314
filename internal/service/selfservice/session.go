// Package selfservice lets a volunteer holding a token see and cancel every
// signup made with their phone.
package selfservice

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/service/notify"
	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
)

const maxReasonLen = 500

type Session struct {
	tokens  repository.TokensRepository
	signups repository.SignupsRepository
	events  repository.EventsRepository
	lists   repository.ListsRepository
	sender  *notify.Sender
	log     *zap.Logger

	Now func() time.Time
}

func New(
	tokens repository.TokensRepository,
	signups repository.SignupsRepository,
	events repository.EventsRepository,
	lists repository.ListsRepository,
	sender *notify.Sender,
	log *zap.Logger,
) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		tokens:  tokens,
		signups: signups,
		events:  events,
		lists:   lists,
		sender:  sender,
		log:     log,
		Now:     time.Now,
	}
}

// Resolve maps a token to its phone. Expiry is fixed at issuance; use does
// not extend it.
func (s *Session) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", model.ErrNotFound
	}
	t, err := s.tokens.Get(ctx, token)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	if t == nil {
		return "", model.ErrNotFound
	}
	if t.Expired(s.Now().UTC()) {
		return "", model.ErrTokenExpired
	}
	return t.Phone, nil
}

type EventGroup struct {
	EventID        int64               `json:"event_id"`
	OrganizationID int64               `json:"organization_id"`
	Title          string              `json:"title"`
	Date           *time.Time          `json:"date,omitempty"`
	Signups        []model.PhoneSignup `json:"signups"`
}

type Overview struct {
	Phone  string       `json:"phone"`
	Events []EventGroup `json:"events"`
}

// Overview lists the phone's active signups across all organizations,
// grouped by event in date order.
func (s *Session) Overview(ctx context.Context, token string) (Overview, error) {
	phone, err := s.Resolve(ctx, token)
	if err != nil {
		return Overview{}, err
	}
	rows, err := s.signups.ListActiveByPhone(ctx, phone)
	if err != nil {
		return Overview{}, fmt.Errorf("list signups: %w", err)
	}

	out := Overview{Phone: util.MaskPhone(phone), Events: []EventGroup{}}
	idx := map[int64]int{}
	for _, r := range rows {
		i, ok := idx[r.EventID]
		if !ok {
			i = len(out.Events)
			idx[r.EventID] = i
			out.Events = append(out.Events, EventGroup{
				EventID:        r.EventID,
				OrganizationID: r.OrganizationID,
				Title:          r.EventTitle,
				Date:           r.EventDate,
			})
		}
		out.Events[i].Signups = append(out.Events[i].Signups, r)
	}
	return out, nil
}

type CancelSummary struct {
	SignupID            int64      `json:"signup_id"`
	Name                string     `json:"name"`
	Role                string     `json:"role"`
	Event               string     `json:"event"`
	Date                *time.Time `json:"date,omitempty"`
	CancelledAt         time.Time  `json:"cancelled_at"`
	CoordinatorNotified bool       `json:"coordinator_notified"`
}

// Cancel cancels one of the token phone's signups. A signup belonging to a
// different phone is reported as not found.
func (s *Session) Cancel(ctx context.Context, token string, signupID int64, reason string) (CancelSummary, error) {
	phone, err := s.Resolve(ctx, token)
	if err != nil {
		return CancelSummary{}, err
	}

	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLen {
		return CancelSummary{}, model.Invalid("reason", fmt.Sprintf("at most %d characters", maxReasonLen))
	}

	su, err := s.signups.GetByID(ctx, signupID)
	if err != nil {
		return CancelSummary{}, fmt.Errorf("get signup: %w", err)
	}
	if su == nil || su.Phone == nil || *su.Phone != phone {
		return CancelSummary{}, model.ErrNotFound
	}
	if su.Cancelled() {
		return CancelSummary{}, model.ErrAlreadyCancelled
	}

	now := s.Now().UTC()
	var rp *string
	if reason != "" {
		rp = &reason
	}
	if err := s.signups.Cancel(ctx, signupID, rp, now); err != nil {
		return CancelSummary{}, err
	}
	if err := s.tokens.Touch(ctx, strings.TrimSpace(token), now); err != nil {
		s.log.Warn("token touch", zap.Error(err))
	}

	sum := CancelSummary{SignupID: su.ID, Name: su.Name, CancelledAt: now}
	list, err := s.lists.GetByID(ctx, su.ListID)
	if err != nil || list == nil {
		s.log.Warn("cancel summary: list lookup", zap.Int64("list_id", su.ListID), zap.Error(err))
		return sum, nil
	}
	sum.Role = list.Title

	ec, err := s.events.Context(ctx, list.EventID)
	if err != nil || ec == nil {
		s.log.Warn("cancel summary: event lookup", zap.Int64("event_id", list.EventID), zap.Error(err))
		return sum, nil
	}
	sum.Event, sum.Date = ec.EventTitle, ec.EventDate

	sum.CoordinatorNotified = s.notifyCoordinator(ctx, *su, sum, ec, reason)
	s.log.Info("self-service cancel",
		zap.Int64("signup_id", su.ID),
		zap.Bool("coordinator_notified", sum.CoordinatorNotified),
	)
	return sum, nil
}

func (s *Session) notifyCoordinator(ctx context.Context, su model.Signup, sum CancelSummary, ec *model.EventContext, reason string) bool {
	if ec.CoordinatorPhone == "" {
		return false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s cancelled as %s for %s", sum.Name, sum.Role, sum.Event)
	if sum.Date != nil {
		b.WriteString(" on " + sum.Date.Format("Mon Jan 2"))
	}
	b.WriteString(".")
	if reason != "" {
		b.WriteString(" Reason: " + reason)
	}

	orgID, eventID, signupID := ec.OrganizationID, ec.EventID, su.ID
	res, err := s.sender.Send(ctx, notify.Outbound{
		OrganizationID: &orgID,
		SignupID:       &signupID,
		EventID:        &eventID,
		Phone:          ec.CoordinatorPhone,
		Body:           b.String(),
		Type:           model.TypeCancellation,
	})
	if err != nil {
		s.log.Warn("coordinator notify", zap.Int64("signup_id", su.ID), zap.Error(err))
		return false
	}
	return res.Outcome == notify.OutcomeSent
}
