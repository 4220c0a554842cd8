package breeding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/metrics"
	"github.com/mamadbah2/rabbitry/internal/repository"
)

// Ledger mirrors committed breeding transitions to an external register.
// Failures are logged and never roll back the transition.
type Ledger interface {
	AppendMating(ctx context.Context, ev models.BreedingEvent, doe, buck models.Animal) error
	AppendBirth(ctx context.Context, ev models.BreedingEvent, doe models.Animal) error
	AppendCulling(ctx context.Context, ev models.BreedingEvent, doe models.Animal, reasons []models.CullingReason) error
}

// ProposeMatingInput is the request to record a mating.
type ProposeMatingInput struct {
	FarmID     string
	DoeID      string
	BuckID     string
	MatingDate calendar.Date
	Notes      string
}

// BirthResult is the outcome of recording a birth.
type BirthResult struct {
	Event   models.BreedingEvent  `json:"event"`
	Culling CullingRecommendation `json:"culling"`
}

// KitInput describes one kit recorded individually after a birth.
type KitInput struct {
	Name    string
	Sex     models.Sex
	HutchID string
}

// AnimalInput registers a livestock record.
type AnimalInput struct {
	Name      string
	Sex       models.Sex
	HutchID   string
	BirthDate calendar.Date
}

// Service owns breeding events and the pregnancy fields of does. Every
// transition and its reminder cascade commit as one transaction.
type Service struct {
	store     repository.Store
	projector *calendar.Projector
	ledger    Ledger
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	cascade   Cascade
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithLedger mirrors transitions to ledger.
func WithLedger(ledger Ledger) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithMetrics records counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a new breeding service instance.
func NewService(store repository.Store, projector *calendar.Projector, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		projector: projector,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cascade = NewCascade(s.newID, s.now)
	return s
}

func (s *Service) farmZone(ctx context.Context, farmID string) (models.Farm, *time.Location, error) {
	farm, err := s.store.GetFarm(ctx, farmID)
	if err != nil {
		return models.Farm{}, nil, err
	}
	loc, err := s.projector.Location(farm.Timezone)
	if err != nil {
		return models.Farm{}, nil, fmt.Errorf("farm %s: %w", farmID, err)
	}
	return farm, loc, nil
}

// optionalAnimal maps a missing record to nil so validation can reject it.
func (s *Service) optionalAnimal(ctx context.Context, id string) (*models.Animal, error) {
	if id == "" {
		return nil, nil
	}
	a, err := s.store.GetAnimal(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) recordRejection(err error) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		s.metrics.Rejected(string(rej.Reason))
	}
}

// ProposeMating validates a mating, opens a breeding event, marks the doe
// pregnant and schedules the mating cascade.
func (s *Service) ProposeMating(ctx context.Context, in ProposeMatingInput) (models.BreedingEvent, error) {
	_, loc, err := s.farmZone(ctx, in.FarmID)
	if err != nil {
		return models.BreedingEvent{}, err
	}

	now := s.now().UTC()
	today := calendar.ToLocalDate(now, loc)

	var (
		event     models.BreedingEvent
		doe, buck models.Animal
		reminders []models.Reminder
	)

	err = s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		doePtr, err := s.optionalAnimal(ctx, in.DoeID)
		if err != nil {
			return err
		}
		buckPtr, err := s.optionalAnimal(ctx, in.BuckID)
		if err != nil {
			return err
		}

		history := MatingHistory{}
		if buckPtr != nil && !in.MatingDate.IsZero() {
			from, to := BuckRestWindow(in.MatingDate)
			if history.BuckMatings, err = s.store.ListMatingsByBuck(ctx, buckPtr.ID, from, to); err != nil {
				return err
			}
		}
		if doePtr != nil {
			completed, err := s.store.ListCompletedByDoe(ctx, doePtr.ID, 1)
			if err != nil {
				return err
			}
			if len(completed) > 0 {
				history.LastCompleted = &completed[0]
			}
		}

		if err := ValidateMating(in.FarmID, doePtr, buckPtr, in.MatingDate, history); err != nil {
			return err
		}
		doe, buck = *doePtr, *buckPtr

		event = models.BreedingEvent{
			ID:                s.newID(),
			FarmID:            in.FarmID,
			DoeID:             doe.ID,
			BuckID:            buck.ID,
			HutchID:           doe.HutchID,
			MatingDate:        in.MatingDate,
			ExpectedBirthDate: in.MatingDate.AddDays(GestationDays),
			Notes:             strings.TrimSpace(in.Notes),
			Created:           now,
			Updated:           now,
		}
		if err := s.store.InsertBreedingEvent(ctx, event); err != nil {
			return err
		}

		doe.IsPregnant = true
		doe.PregnancyStart = event.MatingDate
		doe.ExpectedBirthDate = event.ExpectedBirthDate
		doe.Updated = now
		if err := s.store.UpdateAnimal(ctx, doe); err != nil {
			return err
		}

		reminders = s.cascade.ForMating(event, doe, buck, today, loc)
		return s.store.InsertReminders(ctx, reminders...)
	})
	if err != nil {
		s.recordRejection(err)
		return models.BreedingEvent{}, err
	}

	s.metrics.MatingRecorded()
	s.countReminders(reminders)
	s.logger.Info("mating recorded",
		zap.String("breeding_event_id", event.ID),
		zap.String("doe_id", event.DoeID),
		zap.String("buck_id", event.BuckID),
		zap.Stringer("mating_date", event.MatingDate),
		zap.Int("reminders", len(reminders)))

	if s.ledger != nil {
		if err := s.ledger.AppendMating(ctx, event, doe, buck); err != nil {
			s.logger.Warn("failed to append mating to ledger", zap.String("breeding_event_id", event.ID), zap.Error(err))
		}
	}
	return event, nil
}

// RecordBirth closes an open breeding event, updates the doe, completes the
// now moot mating cascade, schedules the birth cascade and evaluates culling.
func (s *Service) RecordBirth(ctx context.Context, eventID string, birth calendar.Date, litterSize int, notes string) (BirthResult, error) {
	if birth.IsZero() {
		return BirthResult{}, reject(ReasonInvalidDate, "birth date is required")
	}
	if litterSize < 0 {
		return BirthResult{}, reject(ReasonInvalidLitterSize, "litter size %d", litterSize)
	}

	now := s.now().UTC()

	var (
		result    BirthResult
		doe       models.Animal
		reminders []models.Reminder
		completed int
	)

	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		ev, err := s.store.GetBreedingEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Deleted {
			return fmt.Errorf("breeding event %s: %w", eventID, repository.ErrNotFound)
		}
		if !ev.Open() {
			return fmt.Errorf("breeding event %s already has a birth on %s: %w", eventID, ev.ActualBirthDate, repository.ErrConflict)
		}
		if birth.Before(ev.MatingDate) {
			return reject(ReasonBirthBeforeMating, "birth %s precedes mating %s", birth, ev.MatingDate)
		}

		_, loc, err := s.farmZone(ctx, ev.FarmID)
		if err != nil {
			return err
		}
		today := calendar.ToLocalDate(now, loc)

		if ev, err = s.store.RecordBirth(ctx, eventID, birth, litterSize, strings.TrimSpace(notes), now); err != nil {
			return err
		}

		if doe, err = s.store.GetAnimal(ctx, ev.DoeID); err != nil {
			return err
		}
		doe.IsPregnant = false
		doe.PregnancyStart = calendar.Date{}
		doe.ExpectedBirthDate = calendar.Date{}
		doe.LastBirthDate = birth
		doe.LitterCount++
		doe.KitCount += litterSize
		doe.Updated = now
		if err := s.store.UpdateAnimal(ctx, doe); err != nil {
			return err
		}

		completed, err = s.store.TransitionPending(ctx, repository.ReminderFilter{
			BreedingEventID: ev.ID,
			Kinds:           matingCascadeKinds,
		}, models.StatusCompleted, now)
		if err != nil {
			return err
		}

		reminders = s.cascade.ForBirth(ev, doe, loc)

		history, err := s.store.ListCompletedByDoe(ctx, doe.ID, cullingHistoryDepth)
		if err != nil {
			return err
		}
		size := litterSize
		result.Culling = EvaluateCulling(history, &size)
		if result.Culling.Recommend {
			reminders = append(reminders, s.cascade.ForCulling(ev, doe, result.Culling, today, loc))
		}

		result.Event = ev
		return s.store.InsertReminders(ctx, reminders...)
	})
	if err != nil {
		s.recordRejection(err)
		return BirthResult{}, err
	}

	s.metrics.BirthRecorded()
	s.countReminders(reminders)
	for _, reason := range result.Culling.Reasons {
		s.metrics.CullingRecommended(string(reason))
	}
	s.logger.Info("birth recorded",
		zap.String("breeding_event_id", result.Event.ID),
		zap.String("doe_id", result.Event.DoeID),
		zap.Stringer("birth_date", birth),
		zap.Int("litter_size", litterSize),
		zap.Int("completed_reminders", completed),
		zap.Bool("culling_recommended", result.Culling.Recommend))

	if s.ledger != nil {
		if err := s.ledger.AppendBirth(ctx, result.Event, doe); err != nil {
			s.logger.Warn("failed to append birth to ledger", zap.String("breeding_event_id", result.Event.ID), zap.Error(err))
		}
		if result.Culling.Recommend {
			if err := s.ledger.AppendCulling(ctx, result.Event, doe, result.Culling.Reasons); err != nil {
				s.logger.Warn("failed to append culling to ledger", zap.String("breeding_event_id", result.Event.ID), zap.Error(err))
			}
		}
	}
	return result, nil
}

// RetractMating soft-deletes an open breeding event, clears the doe's
// pregnancy and rejects her pending breeding and birth reminders.
func (s *Service) RetractMating(ctx context.Context, eventID string) error {
	now := s.now().UTC()
	var rejected int

	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		ev, err := s.store.GetBreedingEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Deleted {
			return fmt.Errorf("breeding event %s: %w", eventID, repository.ErrNotFound)
		}
		if ev, err = s.store.RetractBreedingEvent(ctx, eventID, now); err != nil {
			return err
		}

		doe, err := s.store.GetAnimal(ctx, ev.DoeID)
		if err != nil {
			return err
		}
		doe.IsPregnant = false
		doe.PregnancyStart = calendar.Date{}
		doe.ExpectedBirthDate = calendar.Date{}
		doe.Updated = now
		if err := s.store.UpdateAnimal(ctx, doe); err != nil {
			return err
		}

		rejected, err = s.store.TransitionPending(ctx, repository.ReminderFilter{
			AnimalID:   doe.ID,
			Categories: []models.ReminderCategory{models.CategoryBreeding, models.CategoryBirth},
		}, models.StatusRejected, now)
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.MatingRetracted()
	s.logger.Info("mating retracted", zap.String("breeding_event_id", eventID), zap.Int("rejected_reminders", rejected))
	return nil
}

// RecordKits registers the kits of a completed litter individually and
// schedules their relocation.
func (s *Service) RecordKits(ctx context.Context, eventID string, kits []KitInput) ([]models.Animal, error) {
	if len(kits) == 0 {
		return nil, reject(ReasonInvalidKits, "at least one kit is required")
	}
	for i, k := range kits {
		if k.Sex != "" && !k.Sex.Valid() {
			return nil, reject(ReasonInvalidKits, "kit %d has unknown sex %q", i, k.Sex)
		}
	}

	now := s.now().UTC()
	var (
		created  []models.Animal
		reminder models.Reminder
	)

	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		ev, err := s.store.GetBreedingEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Deleted {
			return fmt.Errorf("breeding event %s: %w", eventID, repository.ErrNotFound)
		}
		if !ev.Completed() {
			return fmt.Errorf("breeding event %s has no recorded birth: %w", eventID, repository.ErrConflict)
		}
		if ev.LitterSize != nil && len(kits) > *ev.LitterSize {
			return reject(ReasonInvalidKits, "%d kits recorded for a litter of %d", len(kits), *ev.LitterSize)
		}

		_, loc, err := s.farmZone(ctx, ev.FarmID)
		if err != nil {
			return err
		}
		doe, err := s.store.GetAnimal(ctx, ev.DoeID)
		if err != nil {
			return err
		}

		if err := s.store.MarkKitsRecorded(ctx, ev.ID, now); err != nil {
			return err
		}

		created = make([]models.Animal, 0, len(kits))
		for _, k := range kits {
			hutch := k.HutchID
			if hutch == "" {
				hutch = doe.HutchID
			}
			sex := k.Sex
			if sex == "" {
				sex = models.SexUnknown
			}
			created = append(created, models.Animal{
				ID:        s.newID(),
				FarmID:    ev.FarmID,
				Name:      k.Name,
				Sex:       sex,
				HutchID:   hutch,
				MotherID:  ev.DoeID,
				FatherID:  ev.BuckID,
				BirthDate: ev.ActualBirthDate,
				Created:   now,
				Updated:   now,
			})
		}
		if err := s.store.InsertAnimals(ctx, created...); err != nil {
			return err
		}

		reminder = s.cascade.ForKits(ev, doe, created, loc)
		return s.store.InsertReminders(ctx, reminder)
	})
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.countReminders([]models.Reminder{reminder})
	s.logger.Info("kits recorded", zap.String("breeding_event_id", eventID), zap.Int("kits", len(created)))
	return created, nil
}

// RegisterFarm creates or replaces a farm after checking its time zone.
func (s *Service) RegisterFarm(ctx context.Context, farm models.Farm) (models.Farm, error) {
	if strings.TrimSpace(farm.Name) == "" {
		return models.Farm{}, reject(ReasonInvalidFarm, "farm name is required")
	}
	if _, err := s.projector.Location(farm.Timezone); err != nil {
		return models.Farm{}, reject(ReasonInvalidFarm, "%v", err)
	}
	if farm.ID == "" {
		farm.ID = s.newID()
	}
	if farm.Created.IsZero() {
		farm.Created = s.now().UTC()
	}
	if err := s.store.SaveFarm(ctx, farm); err != nil {
		return models.Farm{}, err
	}
	return farm, nil
}

// RegisterAnimal adds a breeding animal to a farm.
func (s *Service) RegisterAnimal(ctx context.Context, farmID string, in AnimalInput) (models.Animal, error) {
	if !in.Sex.Valid() {
		return models.Animal{}, reject(ReasonInvalidAnimal, "unknown sex %q", in.Sex)
	}
	if _, err := s.store.GetFarm(ctx, farmID); err != nil {
		return models.Animal{}, err
	}

	now := s.now().UTC()
	animal := models.Animal{
		ID:        s.newID(),
		FarmID:    farmID,
		Name:      strings.TrimSpace(in.Name),
		Sex:       in.Sex,
		HutchID:   in.HutchID,
		BirthDate: in.BirthDate,
		Created:   now,
		Updated:   now,
	}
	if err := s.store.InsertAnimals(ctx, animal); err != nil {
		return models.Animal{}, err
	}
	return animal, nil
}

// GetAnimal returns one livestock record.
func (s *Service) GetAnimal(ctx context.Context, id string) (models.Animal, error) {
	return s.store.GetAnimal(ctx, id)
}

// ListBreedingEvents returns the doe's non-retracted events, newest first.
func (s *Service) ListBreedingEvents(ctx context.Context, doeID string) ([]models.BreedingEvent, error) {
	if _, err := s.store.GetAnimal(ctx, doeID); err != nil {
		return nil, err
	}
	return s.store.ListBreedingEventsByDoe(ctx, doeID)
}

func (s *Service) countReminders(reminders []models.Reminder) {
	counts := map[models.ReminderCategory]int{}
	for _, r := range reminders {
		counts[r.Category]++
	}
	for category, n := range counts {
		s.metrics.RemindersCreated(string(category), n)
	}
}
