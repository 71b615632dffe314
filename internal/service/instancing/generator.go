// Package instancing expands recurring templates into dated instances.
package instancing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mathemusician/church-volunteers/internal/metrics"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
)

const (
	DefaultHorizon      = 5
	DefaultSlugAttempts = 10
	MaxWeeks            = 52
)

var (
	ErrNotTemplate  = errors.New("event is not a recurring template")
	ErrSlugConflict = errors.New("no free slug")
)

// Options selects explicit-count generation. From pins the first date
// (moved forward onto the template weekday); when nil generation continues
// after the latest existing instance.
type Options struct {
	Weeks int
	From  *time.Time
}

type Skipped struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

type Result struct {
	TemplateID int64         `json:"template_id"`
	Created    []model.Event `json:"created"`
	Skipped    []Skipped     `json:"skipped"`
}

type Generator struct {
	events repository.EventsRepository
	lists  repository.ListsRepository
	log    *zap.Logger

	Horizon      int
	SlugAttempts int
	Now          func() time.Time
}

func NewGenerator(events repository.EventsRepository, lists repository.ListsRepository, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		events:       events,
		lists:        lists,
		log:          log,
		Horizon:      DefaultHorizon,
		SlugAttempts: DefaultSlugAttempts,
		Now:          time.Now,
	}
}

func (g *Generator) today() time.Time { return model.DateOf(g.Now()) }

// Generate creates up to opts.Weeks weekly instances. Dates that already
// have an instance are skipped, so repeating a call over the same range is
// a no-op.
func (g *Generator) Generate(ctx context.Context, templateID int64, opts Options) (Result, error) {
	if opts.Weeks < 1 || opts.Weeks > MaxWeeks {
		return Result{TemplateID: templateID}, model.Invalid("weeks", fmt.Sprintf("must be between 1 and %d", MaxWeeks))
	}

	tpl, instances, err := g.load(ctx, templateID)
	if err != nil {
		return Result{TemplateID: templateID}, err
	}

	today := g.today()
	var start time.Time
	if opts.From != nil {
		start = alignForward(model.DateOf(*opts.From), CanonicalWeekday(tpl, instances, today))
	} else {
		start = NextDate(tpl, instances, today)
	}

	return g.create(ctx, tpl, Series(start, opts.Weeks))
}

// Maintain tops the template up to Horizon instances dated today or later.
func (g *Generator) Maintain(ctx context.Context, templateID int64, today time.Time) (Result, error) {
	tpl, instances, err := g.load(ctx, templateID)
	if err != nil {
		return Result{TemplateID: templateID}, err
	}
	return g.create(ctx, tpl, Plan(tpl, instances, today, g.Horizon))
}

// MaintainAll runs Maintain for every active template. A failing template
// does not stop the others; their errors are joined.
func (g *Generator) MaintainAll(ctx context.Context, today time.Time) ([]Result, error) {
	templates, err := g.events.ListActiveTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	var (
		results []Result
		errs    []error
	)
	for _, tpl := range templates {
		res, err := g.Maintain(ctx, tpl.ID, today)
		results = append(results, res)
		if err != nil {
			g.log.Error("horizon maintenance failed", zap.Int64("template_id", tpl.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("template %d: %w", tpl.ID, err))
			continue
		}
		if len(res.Created) > 0 {
			g.log.Info("horizon maintenance",
				zap.Int64("template_id", tpl.ID),
				zap.Int("created", len(res.Created)),
				zap.Int("skipped", len(res.Skipped)),
			)
		}
	}
	return results, errors.Join(errs...)
}

func (g *Generator) load(ctx context.Context, templateID int64) (model.Event, []model.Event, error) {
	tpl, err := g.events.GetByID(ctx, templateID)
	if err != nil {
		return model.Event{}, nil, fmt.Errorf("get template: %w", err)
	}
	if tpl == nil {
		return model.Event{}, nil, model.ErrNotFound
	}
	if !tpl.IsTemplate() {
		return model.Event{}, nil, ErrNotTemplate
	}

	instances, err := g.events.ListInstances(ctx, templateID)
	if err != nil {
		return model.Event{}, nil, fmt.Errorf("list instances: %w", err)
	}
	return *tpl, instances, nil
}

// create inserts one instance per date. Each instance commits with its lists
// on its own, so a failure leaves the earlier ones standing and stops the run.
func (g *Generator) create(ctx context.Context, tpl model.Event, dates []time.Time) (Result, error) {
	res := Result{TemplateID: tpl.ID, Created: []model.Event{}, Skipped: []Skipped{}}
	if len(dates) == 0 {
		return res, nil
	}

	stencils, err := g.lists.ListByEvent(ctx, tpl.ID)
	if err != nil {
		return res, fmt.Errorf("list stencils: %w", err)
	}

	for _, date := range dates {
		exists, err := g.events.InstanceExists(ctx, tpl.ID, date)
		if err != nil {
			return res, fmt.Errorf("check %s: %w", date.Format(model.DateLayout), err)
		}
		if exists {
			res.Skipped = append(res.Skipped, Skipped{Date: date, Reason: "exists"})
			continue
		}

		inst, err := g.insert(ctx, tpl, date, stencils)
		if errors.Is(err, model.ErrDuplicate) {
			// a concurrent run got there first
			res.Skipped = append(res.Skipped, Skipped{Date: date, Reason: "exists"})
			continue
		}
		if err != nil {
			return res, fmt.Errorf("create instance %s: %w", date.Format(model.DateLayout), err)
		}

		metrics.InstancesGenerated.Inc()
		res.Created = append(res.Created, inst)
	}
	return res, nil
}

// insert creates the instance under the first free slug. A slug claimed by
// a concurrent writer between the check and the insert moves on to the next
// suffix.
func (g *Generator) insert(ctx context.Context, tpl model.Event, date time.Time, stencils []model.List) (model.Event, error) {
	next := 0
	for {
		slug, n, err := g.uniqueSlug(ctx, tpl, date, next)
		if err != nil {
			return model.Event{}, err
		}
		inst, err := g.events.CreateInstance(ctx, instanceOf(tpl, date, slug), cloneLists(stencils))
		if errors.Is(err, model.ErrSlugTaken) {
			next = n + 1
			continue
		}
		return inst, err
	}
}

// uniqueSlug returns the first free slug starting at suffix index from, and
// that index.
func (g *Generator) uniqueSlug(ctx context.Context, tpl model.Event, date time.Time, from int) (string, int, error) {
	base := tpl.Slug
	if base == "" {
		base = util.Slugify(tpl.Title)
	}
	base += "-" + date.Format(model.DateLayout)

	attempts := g.SlugAttempts
	if attempts <= 0 {
		attempts = DefaultSlugAttempts
	}
	for i := from; i < attempts; i++ {
		slug := base
		if i > 0 {
			slug = base + "-" + strconv.Itoa(i+1)
		}
		taken, err := g.events.SlugExists(ctx, tpl.OrganizationID, slug)
		if err != nil {
			return "", 0, fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return slug, i, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %s after %d attempts", ErrSlugConflict, base, attempts)
}

func instanceOf(tpl model.Event, date time.Time, slug string) model.Event {
	tid := tpl.ID
	d := date
	return model.Event{
		OrganizationID:   tpl.OrganizationID,
		TemplateID:       &tid,
		Slug:             slug,
		Title:            tpl.Title,
		Description:      tpl.Description,
		IsActive:         true,
		EventDate:        &d,
		ReminderTemplate: tpl.ReminderTemplate,
		CoordinatorName:  tpl.CoordinatorName,
		CoordinatorPhone: tpl.CoordinatorPhone,
	}
}

func cloneLists(stencils []model.List) []model.List {
	out := make([]model.List, len(stencils))
	for i, s := range stencils {
		var max *int
		if s.MaxSlots != nil {
			m := *s.MaxSlots
			max = &m
		}
		out[i] = model.List{
			Title:       s.Title,
			Description: s.Description,
			MaxSlots:    max,
			IsLocked:    s.IsLocked,
			Position:    i,
		}
	}
	return out
}
