// Package worker runs jobs requested by an external scheduler over Kafka.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mathemusician/church-volunteers/internal/kafka"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/service/instancing"
	"github.com/mathemusician/church-volunteers/internal/service/notify"
	"go.uber.org/zap"
)

// Source is the subset of the Kafka consumer the worker needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Triggers executes trigger envelopes one at a time. Each message is
// committed after it runs, whatever the outcome; malformed envelopes are
// committed and skipped.
type Triggers struct {
	source     Source
	generator  *instancing.Generator
	dispatcher *notify.Dispatcher
	log        *zap.Logger

	Now        func() time.Time
	RetryDelay time.Duration // pause after a fetch error
}

func NewTriggers(source Source, gen *instancing.Generator, disp *notify.Dispatcher, log *zap.Logger) *Triggers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Triggers{
		source:     source,
		generator:  gen,
		dispatcher: disp,
		log:        log,
		Now:        time.Now,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled.
func (w *Triggers) Run(ctx context.Context) error {
	for {
		m, err := w.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.RetryDelay):
			}
			continue
		}

		if err := w.Handle(ctx, m.Value); err != nil {
			w.log.Error("trigger failed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
		if err := w.source.Commit(ctx, m); err != nil && ctx.Err() == nil {
			w.log.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

// ErrPoison marks an envelope that can never succeed.
type ErrPoison struct{ Reason string }

func (e *ErrPoison) Error() string { return "poison trigger: " + e.Reason }

// Handle runs a single envelope.
func (w *Triggers) Handle(ctx context.Context, raw []byte) error {
	var t model.Trigger
	if err := json.Unmarshal(raw, &t); err != nil {
		return &ErrPoison{Reason: "bad json"}
	}
	log := w.log.With(zap.String("kind", string(t.Kind)))

	switch t.Kind {
	case model.TriggerMaintainInstances:
		results, err := w.generator.MaintainAll(ctx, w.Now())
		created := 0
		for _, r := range results {
			created += len(r.Created)
		}
		log.Info("horizon maintained", zap.Int("templates", len(results)), zap.Int("created", created))
		return err

	case model.TriggerGenerateInstances:
		if t.TemplateID <= 0 {
			return &ErrPoison{Reason: "template_id required"}
		}
		res, err := w.generator.Generate(ctx, t.TemplateID, instancing.Options{Weeks: t.Weeks})
		log.Info("instances generated",
			zap.Int64("template_id", t.TemplateID),
			zap.Int("created", len(res.Created)),
			zap.Int("skipped", len(res.Skipped)),
		)
		return err

	case model.TriggerSendReminders:
		if t.Scope == nil || !t.Scope.Valid() {
			return &ErrPoison{Reason: "scope required"}
		}
		rep, err := w.dispatcher.SendReminders(ctx, *t.Scope)
		if err != nil {
			return fmt.Errorf("send reminders: %w", err)
		}
		log.Info("reminders dispatched",
			zap.Int("sent", rep.Sent),
			zap.Int("failed", rep.Failed),
			zap.Int("skipped", rep.Skipped),
		)
		return nil
	}
	return &ErrPoison{Reason: fmt.Sprintf("unknown kind %q", t.Kind)}
}
