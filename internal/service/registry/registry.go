// Package registry owns signup registration against capacity-bound lists.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mathemusician/church-volunteers/internal/metrics"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
)

const (
	MaxNameLen          = 120
	MaxReasonLen        = 500
	DefaultSiblingLimit = 52
)

// Volunteer is the registration form as submitted.
type Volunteer struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	SMSConsent bool   `json:"sms_consent"`
}

type Registry struct {
	events  repository.EventsRepository
	lists   repository.ListsRepository
	signups repository.SignupsRepository
	log     *zap.Logger

	SiblingWindow int
	Now           func() time.Time
}

func New(events repository.EventsRepository, lists repository.ListsRepository, signups repository.SignupsRepository, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		events:        events,
		lists:         lists,
		signups:       signups,
		log:           log,
		SiblingWindow: DefaultSiblingLimit,
		Now:           time.Now,
	}
}

// Register adds a volunteer to a list, rejecting with model.ErrListLocked or
// model.ErrListFull. The capacity check and insert are one atomic step.
func (r *Registry) Register(ctx context.Context, listID int64, v Volunteer) (model.Signup, error) {
	return r.register(ctx, listID, v, true)
}

// RegisterOverride is the administrator path; lock and capacity are ignored.
func (r *Registry) RegisterOverride(ctx context.Context, listID int64, v Volunteer) (model.Signup, error) {
	return r.register(ctx, listID, v, false)
}

func (r *Registry) register(ctx context.Context, listID int64, v Volunteer, enforce bool) (model.Signup, error) {
	s, err := r.validate(listID, v)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return model.Signup{}, err
	}

	if s.Phone != nil {
		optedOut, err := r.signups.IsPhoneOptedOut(ctx, *s.Phone)
		if err != nil {
			return model.Signup{}, fmt.Errorf("opt-out lookup: %w", err)
		}
		if optedOut {
			now := s.CreatedAt
			s.SMSOptedOut = true
			s.OptedOutAt = &now
		}
	}

	created, err := r.signups.InsertWithCapacity(ctx, s, enforce)
	switch {
	case err == nil:
		metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
		r.log.Info("signup registered",
			zap.Int64("list_id", listID),
			zap.Int64("signup_id", created.ID),
			zap.Bool("override", !enforce),
		)
		return created, nil
	case errors.Is(err, model.ErrListFull):
		metrics.RegistrationsTotal.WithLabelValues("full").Inc()
	case errors.Is(err, model.ErrListLocked):
		metrics.RegistrationsTotal.WithLabelValues("locked").Inc()
	case errors.Is(err, model.ErrNotFound):
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return model.Signup{}, fmt.Errorf("insert signup: %w", err)
	}
	return model.Signup{}, err
}

func (r *Registry) validate(listID int64, v Volunteer) (model.Signup, error) {
	if listID <= 0 {
		return model.Signup{}, model.Invalid("list_id", "required")
	}

	name := strings.TrimSpace(v.Name)
	if name == "" {
		return model.Signup{}, model.Invalid("name", "required")
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return model.Signup{}, model.Invalid("name", fmt.Sprintf("at most %d characters", MaxNameLen))
	}

	phone, err := util.NormalizeOptionalPhone(v.Phone)
	if err != nil {
		return model.Signup{}, model.Invalid("phone", "must be a 10-digit US number")
	}

	var email *string
	if e := strings.TrimSpace(v.Email); e != "" {
		addr, err := mail.ParseAddress(e)
		if err != nil {
			return model.Signup{}, model.Invalid("email", "malformed address")
		}
		email = &addr.Address
	}

	return model.Signup{
		ListID:     listID,
		Name:       name,
		Phone:      phone,
		Email:      email,
		SMSConsent: v.SMSConsent && phone != nil,
		CreatedAt:  r.Now().UTC(),
	}, nil
}

// Cancel soft-cancels a signup. A blank reason is stored as NULL.
func (r *Registry) Cancel(ctx context.Context, signupID int64, reason string) (model.Signup, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		return model.Signup{}, model.Invalid("reason", fmt.Sprintf("at most %d characters", MaxReasonLen))
	}
	var rp *string
	if reason != "" {
		rp = &reason
	}

	if err := r.signups.Cancel(ctx, signupID, rp, r.Now().UTC()); err != nil {
		return model.Signup{}, err
	}
	s, err := r.signups.GetByID(ctx, signupID)
	if err != nil {
		return model.Signup{}, fmt.Errorf("reload signup: %w", err)
	}
	if s == nil {
		return model.Signup{}, model.ErrNotFound
	}
	r.log.Info("signup cancelled", zap.Int64("signup_id", signupID))
	return *s, nil
}
