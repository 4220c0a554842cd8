package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost against concurrent state.
	ErrConflict = errors.New("conflict")
)

// ReminderFilter selects pending reminders for bulk transitions. Empty fields
// match everything; at least one of AnimalID or BreedingEventID must be set.
type ReminderFilter struct {
	AnimalID        string
	BreedingEventID string
	Categories      []models.ReminderCategory
	Kinds           []models.ReminderKind
}

// Store is the record store the breeding engine runs against.
//
// Every method called with the context handed to a RunInTransaction callback
// participates in that transaction.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	SaveFarm(ctx context.Context, farm models.Farm) error
	GetFarm(ctx context.Context, id string) (models.Farm, error)
	ListFarms(ctx context.Context) ([]models.Farm, error)

	InsertAnimals(ctx context.Context, animals ...models.Animal) error
	GetAnimal(ctx context.Context, id string) (models.Animal, error)
	UpdateAnimal(ctx context.Context, animal models.Animal) error

	// InsertBreedingEvent fails with ErrConflict when the doe already has an open event.
	InsertBreedingEvent(ctx context.Context, event models.BreedingEvent) error
	GetBreedingEvent(ctx context.Context, id string) (models.BreedingEvent, error)
	// RecordBirth closes an open event; ErrConflict when it is no longer open.
	RecordBirth(ctx context.Context, id string, birth calendar.Date, litterSize int, notes string, at time.Time) (models.BreedingEvent, error)
	// RetractBreedingEvent soft-deletes an open event; ErrConflict when it is no longer open.
	RetractBreedingEvent(ctx context.Context, id string, at time.Time) (models.BreedingEvent, error)
	// MarkKitsRecorded flags a completed event; ErrConflict when already flagged.
	MarkKitsRecorded(ctx context.Context, id string, at time.Time) error
	// ListBreedingEventsByDoe returns non-deleted events, most recent mating first.
	ListBreedingEventsByDoe(ctx context.Context, doeID string) ([]models.BreedingEvent, error)
	// ListMatingsByBuck returns non-deleted events with from <= mating date <= to.
	ListMatingsByBuck(ctx context.Context, buckID string, from, to calendar.Date) ([]models.BreedingEvent, error)
	// ListCompletedByDoe returns up to limit completed events, most recent birth first.
	ListCompletedByDoe(ctx context.Context, doeID string, limit int) ([]models.BreedingEvent, error)

	InsertReminders(ctx context.Context, reminders ...models.Reminder) error
	GetReminder(ctx context.Context, id string) (models.Reminder, error)
	// ListDueReminders returns pending reminders of the farm whose notify-on set contains day.
	ListDueReminders(ctx context.Context, farmID string, day calendar.Date) ([]models.Reminder, error)
	ListRemindersByAnimal(ctx context.Context, animalID string) ([]models.Reminder, error)
	// TransitionPending moves every pending reminder matching filter to status.
	TransitionPending(ctx context.Context, filter ReminderFilter, status models.ReminderStatus, at time.Time) (int, error)
	// ClaimReminder leases a pending reminder to token until the given instant.
	// ErrConflict when it is no longer pending or another live claim holds it.
	ClaimReminder(ctx context.Context, id, token string, now, until time.Time) error
	ReleaseReminderClaim(ctx context.Context, id, token string) error
	// MarkReminderSent is the only writer of pending -> sent and requires the claim token.
	MarkReminderSent(ctx context.Context, id, token string, at time.Time) error
	// CompleteReminder resolves a pending reminder manually.
	CompleteReminder(ctx context.Context, id string, at time.Time) error
}
