package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/metrics"
	"github.com/mamadbah2/rabbitry/internal/notify"
	"github.com/mamadbah2/rabbitry/internal/repository"
)

// DefaultLease bounds how long a dispatcher may hold a reminder before another
// worker can claim it again.
const DefaultLease = 2 * time.Minute

// Outcome is the result of one dispatch attempt.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeAlreadyHandled   Outcome = "already_handled"
	OutcomeTransientFailure Outcome = "transient_failure"
)

// Notifier delivers a rendered reminder for a farm. day is the farm-local
// date the delivery counts against.
type Notifier interface {
	Notify(ctx context.Context, farm models.Farm, day calendar.Date, r models.Reminder) error
}

// Evaluator selects due reminders and moves them from pending to sent. It does
// not know why a reminder exists.
type Evaluator struct {
	store     repository.Store
	projector *calendar.Projector
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newToken  func() string
	lease     time.Duration
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLease sets the claim lease held while a notification is in flight.
func WithLease(lease time.Duration) Option {
	return func(e *Evaluator) {
		if lease > 0 {
			e.lease = lease
		}
	}
}

// WithMetrics records dispatch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator wires a new evaluator instance.
func NewEvaluator(store repository.Store, projector *calendar.Projector, notifier Notifier, logger *zap.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		store:     store,
		projector: projector,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		newToken:  uuid.NewString,
		lease:     DefaultLease,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) today(farm models.Farm) (calendar.Date, error) {
	return e.projector.Today(e.now(), farm.Timezone)
}

// DueToday lists the farm's pending reminders whose notify-on set contains
// the farm-local current date. It has no side effects.
func (e *Evaluator) DueToday(ctx context.Context, farmID string) ([]models.Reminder, error) {
	farm, err := e.store.GetFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}
	day, err := e.today(farm)
	if err != nil {
		return nil, fmt.Errorf("resolve today for farm %s: %w", farmID, err)
	}
	return e.store.ListDueReminders(ctx, farmID, day)
}

// DispatchReminder notifies a pending reminder and marks it sent. A reminder
// that is no longer pending, or is being dispatched by another worker, is
// reported as already handled without notifying.
func (e *Evaluator) DispatchReminder(ctx context.Context, reminderID string) (Outcome, error) {
	outcome, err := e.dispatch(ctx, reminderID)
	if outcome != "" {
		e.metrics.Dispatched(string(outcome))
	}
	return outcome, err
}

func (e *Evaluator) dispatch(ctx context.Context, reminderID string) (Outcome, error) {
	r, err := e.store.GetReminder(ctx, reminderID)
	if err != nil {
		return "", err
	}
	if r.Status != models.StatusPending {
		return OutcomeAlreadyHandled, nil
	}

	farm, err := e.store.GetFarm(ctx, r.FarmID)
	if err != nil {
		return "", err
	}
	day, err := e.today(farm)
	if err != nil {
		return "", fmt.Errorf("resolve today for farm %s: %w", farm.ID, err)
	}

	now := e.now().UTC()
	token := e.newToken()
	if err := e.store.ClaimReminder(ctx, r.ID, token, now, now.Add(e.lease)); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return OutcomeAlreadyHandled, nil
		}
		return OutcomeTransientFailure, fmt.Errorf("claim reminder %s: %w", r.ID, err)
	}

	if err := e.notifier.Notify(ctx, farm, day, r); err != nil {
		if releaseErr := e.store.ReleaseReminderClaim(ctx, r.ID, token); releaseErr != nil {
			e.logger.Warn("failed to release reminder claim", zap.String("reminder_id", r.ID), zap.Error(releaseErr))
		}
		if !errors.Is(err, notify.ErrTransient) && !errors.Is(err, notify.ErrLimitReached) {
			e.logger.Error("reminder rejected by notification provider", zap.String("reminder_id", r.ID), zap.Error(err))
		}
		return OutcomeTransientFailure, fmt.Errorf("notify reminder %s: %w", r.ID, err)
	}

	if err := e.store.MarkReminderSent(ctx, r.ID, token, e.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// The lease ran out mid-send and the reminder moved on without us.
			e.logger.Warn("reminder claim lost after notification", zap.String("reminder_id", r.ID))
			return OutcomeAlreadyHandled, nil
		}
		return OutcomeTransientFailure, fmt.Errorf("mark reminder %s sent: %w", r.ID, err)
	}

	e.logger.Info("reminder dispatched",
		zap.String("reminder_id", r.ID),
		zap.String("farm_id", farm.ID),
		zap.String("kind", string(r.Kind)),
		zap.Stringer("day", day))
	return OutcomeSent, nil
}

// GetReminder returns one reminder.
func (e *Evaluator) GetReminder(ctx context.Context, reminderID string) (models.Reminder, error) {
	return e.store.GetReminder(ctx, reminderID)
}

// CompleteReminder resolves a pending reminder by hand.
func (e *Evaluator) CompleteReminder(ctx context.Context, reminderID string) (models.Reminder, error) {
	if err := e.store.CompleteReminder(ctx, reminderID, e.now().UTC()); err != nil {
		return models.Reminder{}, err
	}
	e.logger.Info("reminder completed", zap.String("reminder_id", reminderID))
	return e.store.GetReminder(ctx, reminderID)
}

// PassSummary counts the outcomes of one due pass.
type PassSummary struct {
	Farms          int `json:"farms"`
	Due            int `json:"due"`
	Sent           int `json:"sent"`
	AlreadyHandled int `json:"already_handled"`
	Failed         int `json:"failed"`
}

// RunDuePass dispatches every farm's due reminders. Overlapping passes are safe:
// each reminder is notified at most once. A farm whose daily budget runs out is
// skipped until the next pass.
func (e *Evaluator) RunDuePass(ctx context.Context) (PassSummary, error) {
	var summary PassSummary

	farms, err := e.store.ListFarms(ctx)
	if err != nil {
		return summary, fmt.Errorf("list farms: %w", err)
	}

	var errs []error
	for _, farm := range farms {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Farms++

		due, err := e.DueToday(ctx, farm.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("farm %s: %w", farm.ID, err))
			continue
		}
		summary.Due += len(due)

		for _, r := range due {
			outcome, err := e.DispatchReminder(ctx, r.ID)
			switch outcome {
			case OutcomeSent:
				summary.Sent++
			case OutcomeAlreadyHandled:
				summary.AlreadyHandled++
			default:
				summary.Failed++
			}
			if err == nil {
				continue
			}
			e.logger.Warn("reminder dispatch failed", zap.String("reminder_id", r.ID), zap.Error(err))
			if errors.Is(err, notify.ErrLimitReached) {
				e.logger.Info("daily notification limit reached", zap.String("farm_id", farm.ID))
				break
			}
		}
	}

	e.logger.Info("due pass finished",
		zap.Int("farms", summary.Farms),
		zap.Int("due", summary.Due),
		zap.Int("sent", summary.Sent),
		zap.Int("already_handled", summary.AlreadyHandled),
		zap.Int("failed", summary.Failed))
	return summary, errors.Join(errs...)
}
