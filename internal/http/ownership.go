package http

import (
	"context"
	"fmt"

	"github.com/mathemusician/church-volunteers/internal/app"
	"github.com/mathemusician/church-volunteers/internal/model"
)

// owner checks that an admin target belongs to the calling organization.
// Foreign rows are reported as model.ErrNotFound.
type owner struct {
	repos app.Repos
}

func (o owner) event(ctx context.Context, orgID, eventID int64) error {
	e, err := o.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if e == nil || e.OrganizationID != orgID {
		return model.ErrNotFound
	}
	return nil
}

func (o owner) list(ctx context.Context, orgID, listID int64) error {
	l, err := o.repos.Lists.GetByID(ctx, listID)
	if err != nil {
		return fmt.Errorf("get list: %w", err)
	}
	if l == nil {
		return model.ErrNotFound
	}
	return o.event(ctx, orgID, l.EventID)
}

func (o owner) signup(ctx context.Context, orgID, signupID int64) error {
	s, err := o.repos.Signups.GetByID(ctx, signupID)
	if err != nil {
		return fmt.Errorf("get signup: %w", err)
	}
	if s == nil {
		return model.ErrNotFound
	}
	return o.list(ctx, orgID, s.ListID)
}

func (o owner) scope(ctx context.Context, orgID int64, s model.Scope) error {
	switch {
	case !s.Valid():
		return nil // the dispatcher reports the validation error
	case s.SignupID != nil:
		return o.signup(ctx, orgID, *s.SignupID)
	case s.ListID != nil:
		return o.list(ctx, orgID, *s.ListID)
	default:
		return o.event(ctx, orgID, *s.EventID)
	}
}
