package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/repository"
)

type txKey struct{}

type reminderRecord struct {
	reminder   models.Reminder
	claimToken string
	claimUntil time.Time
}

type state struct {
	farms     map[string]models.Farm
	animals   map[string]models.Animal
	events    map[string]models.BreedingEvent
	reminders map[string]reminderRecord
}

// Store is an in-process repository.Store. Transactions hold the store lock for
// their whole duration and roll back to a snapshot on error.
type Store struct {
	mu sync.Mutex
	st state
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: state{
		farms:     map[string]models.Farm{},
		animals:   map[string]models.Animal{},
		events:    map[string]models.BreedingEvent{},
		reminders: map[string]reminderRecord{},
	}}
}

func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTransaction runs fn atomically; any error restores the prior state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (st state) clone() state {
	out := state{
		farms:     make(map[string]models.Farm, len(st.farms)),
		animals:   make(map[string]models.Animal, len(st.animals)),
		events:    make(map[string]models.BreedingEvent, len(st.events)),
		reminders: make(map[string]reminderRecord, len(st.reminders)),
	}
	for k, v := range st.farms {
		out.farms[k] = v
	}
	for k, v := range st.animals {
		out.animals[k] = v
	}
	for k, v := range st.events {
		out.events[k] = cloneEvent(v)
	}
	for k, v := range st.reminders {
		v.reminder = cloneReminder(v.reminder)
		out.reminders[k] = v
	}
	return out
}

func cloneEvent(ev models.BreedingEvent) models.BreedingEvent {
	if ev.LitterSize != nil {
		size := *ev.LitterSize
		ev.LitterSize = &size
	}
	return ev
}

func cloneReminder(r models.Reminder) models.Reminder {
	r.NotifyOn = slices.Clone(r.NotifyOn)
	if r.SentAt != nil {
		at := *r.SentAt
		r.SentAt = &at
	}
	return r
}

func (s *Store) SaveFarm(ctx context.Context, farm models.Farm) error {
	defer s.lock(ctx)()
	if farm.ID == "" {
		return fmt.Errorf("save farm: empty id")
	}
	s.st.farms[farm.ID] = farm
	return nil
}

func (s *Store) GetFarm(ctx context.Context, id string) (models.Farm, error) {
	defer s.lock(ctx)()
	farm, ok := s.st.farms[id]
	if !ok {
		return models.Farm{}, fmt.Errorf("farm %s: %w", id, repository.ErrNotFound)
	}
	return farm, nil
}

func (s *Store) ListFarms(ctx context.Context) ([]models.Farm, error) {
	defer s.lock(ctx)()
	out := make([]models.Farm, 0, len(s.st.farms))
	for _, farm := range s.st.farms {
		out = append(out, farm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertAnimals(ctx context.Context, animals ...models.Animal) error {
	defer s.lock(ctx)()
	for _, a := range animals {
		if _, exists := s.st.animals[a.ID]; exists {
			return fmt.Errorf("animal %s: %w", a.ID, repository.ErrConflict)
		}
	}
	for _, a := range animals {
		s.st.animals[a.ID] = a
	}
	return nil
}

func (s *Store) GetAnimal(ctx context.Context, id string) (models.Animal, error) {
	defer s.lock(ctx)()
	a, ok := s.st.animals[id]
	if !ok {
		return models.Animal{}, fmt.Errorf("animal %s: %w", id, repository.ErrNotFound)
	}
	return a, nil
}

func (s *Store) UpdateAnimal(ctx context.Context, animal models.Animal) error {
	defer s.lock(ctx)()
	if _, ok := s.st.animals[animal.ID]; !ok {
		return fmt.Errorf("animal %s: %w", animal.ID, repository.ErrNotFound)
	}
	s.st.animals[animal.ID] = animal
	return nil
}

func (s *Store) InsertBreedingEvent(ctx context.Context, event models.BreedingEvent) error {
	defer s.lock(ctx)()
	if _, exists := s.st.events[event.ID]; exists {
		return fmt.Errorf("breeding event %s: %w", event.ID, repository.ErrConflict)
	}
	for _, ev := range s.st.events {
		if ev.DoeID == event.DoeID && ev.Open() {
			return fmt.Errorf("doe %s already has open breeding event %s: %w", event.DoeID, ev.ID, repository.ErrConflict)
		}
	}
	s.st.events[event.ID] = cloneEvent(event)
	return nil
}

func (s *Store) GetBreedingEvent(ctx context.Context, id string) (models.BreedingEvent, error) {
	defer s.lock(ctx)()
	ev, ok := s.st.events[id]
	if !ok {
		return models.BreedingEvent{}, fmt.Errorf("breeding event %s: %w", id, repository.ErrNotFound)
	}
	return cloneEvent(ev), nil
}

func (s *Store) openEvent(id string) (models.BreedingEvent, error) {
	ev, ok := s.st.events[id]
	if !ok {
		return models.BreedingEvent{}, fmt.Errorf("breeding event %s: %w", id, repository.ErrNotFound)
	}
	if !ev.Open() {
		return models.BreedingEvent{}, fmt.Errorf("breeding event %s is closed: %w", id, repository.ErrConflict)
	}
	return ev, nil
}

func (s *Store) RecordBirth(ctx context.Context, id string, birth calendar.Date, litterSize int, notes string, at time.Time) (models.BreedingEvent, error) {
	defer s.lock(ctx)()
	ev, err := s.openEvent(id)
	if err != nil {
		return models.BreedingEvent{}, err
	}
	size := litterSize
	ev.ActualBirthDate = birth
	ev.LitterSize = &size
	if notes != "" {
		ev.Notes = notes
	}
	ev.Updated = at
	s.st.events[id] = ev
	return cloneEvent(ev), nil
}

func (s *Store) RetractBreedingEvent(ctx context.Context, id string, at time.Time) (models.BreedingEvent, error) {
	defer s.lock(ctx)()
	ev, err := s.openEvent(id)
	if err != nil {
		return models.BreedingEvent{}, err
	}
	ev.Deleted = true
	ev.Updated = at
	s.st.events[id] = ev
	return cloneEvent(ev), nil
}

func (s *Store) MarkKitsRecorded(ctx context.Context, id string, at time.Time) error {
	defer s.lock(ctx)()
	ev, ok := s.st.events[id]
	if !ok {
		return fmt.Errorf("breeding event %s: %w", id, repository.ErrNotFound)
	}
	if !ev.Completed() || ev.KitsRecorded {
		return fmt.Errorf("breeding event %s kits: %w", id, repository.ErrConflict)
	}
	ev.KitsRecorded = true
	ev.Updated = at
	s.st.events[id] = ev
	return nil
}

func (s *Store) ListBreedingEventsByDoe(ctx context.Context, doeID string) ([]models.BreedingEvent, error) {
	defer s.lock(ctx)()
	var out []models.BreedingEvent
	for _, ev := range s.st.events {
		if ev.DoeID == doeID && !ev.Deleted {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatingDate.After(out[j].MatingDate) })
	return out, nil
}

func (s *Store) ListMatingsByBuck(ctx context.Context, buckID string, from, to calendar.Date) ([]models.BreedingEvent, error) {
	defer s.lock(ctx)()
	var out []models.BreedingEvent
	for _, ev := range s.st.events {
		if ev.BuckID != buckID || ev.Deleted {
			continue
		}
		if ev.MatingDate.Before(from) || ev.MatingDate.After(to) {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatingDate.After(out[j].MatingDate) })
	return out, nil
}

func (s *Store) ListCompletedByDoe(ctx context.Context, doeID string, limit int) ([]models.BreedingEvent, error) {
	defer s.lock(ctx)()
	var out []models.BreedingEvent
	for _, ev := range s.st.events {
		if ev.DoeID == doeID && ev.Completed() {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActualBirthDate.After(out[j].ActualBirthDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertReminders(ctx context.Context, reminders ...models.Reminder) error {
	defer s.lock(ctx)()
	for _, r := range reminders {
		if _, exists := s.st.reminders[r.ID]; exists {
			return fmt.Errorf("reminder %s: %w", r.ID, repository.ErrConflict)
		}
	}
	for _, r := range reminders {
		s.st.reminders[r.ID] = reminderRecord{reminder: cloneReminder(r)}
	}
	return nil
}

func (s *Store) GetReminder(ctx context.Context, id string) (models.Reminder, error) {
	defer s.lock(ctx)()
	rec, ok := s.st.reminders[id]
	if !ok {
		return models.Reminder{}, fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	return cloneReminder(rec.reminder), nil
}

func (s *Store) ListDueReminders(ctx context.Context, farmID string, day calendar.Date) ([]models.Reminder, error) {
	defer s.lock(ctx)()
	var out []models.Reminder
	for _, rec := range s.st.reminders {
		if rec.reminder.FarmID == farmID && rec.reminder.DueOn(day) {
			out = append(out, cloneReminder(rec.reminder))
		}
	}
	sortReminders(out)
	return out, nil
}

func (s *Store) ListRemindersByAnimal(ctx context.Context, animalID string) ([]models.Reminder, error) {
	defer s.lock(ctx)()
	var out []models.Reminder
	for _, rec := range s.st.reminders {
		if rec.reminder.AnimalID == animalID {
			out = append(out, cloneReminder(rec.reminder))
		}
	}
	sortReminders(out)
	return out, nil
}

func sortReminders(rs []models.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].TriggerAt.Equal(rs[j].TriggerAt) {
			return rs[i].TriggerAt.Before(rs[j].TriggerAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (s *Store) TransitionPending(ctx context.Context, filter repository.ReminderFilter, status models.ReminderStatus, at time.Time) (int, error) {
	defer s.lock(ctx)()
	if filter.AnimalID == "" && filter.BreedingEventID == "" {
		return 0, fmt.Errorf("transition reminders: filter needs an animal or breeding event")
	}
	if !models.StatusPending.CanTransitionTo(status) {
		return 0, fmt.Errorf("transition reminders to %s: illegal transition", status)
	}

	n := 0
	for id, rec := range s.st.reminders {
		r := rec.reminder
		if r.Status != models.StatusPending || !matches(filter, r) {
			continue
		}
		rec.reminder.Status = status
		rec.reminder.Updated = at
		rec.claimToken = ""
		rec.claimUntil = time.Time{}
		s.st.reminders[id] = rec
		n++
	}
	return n, nil
}

func matches(f repository.ReminderFilter, r models.Reminder) bool {
	if f.AnimalID != "" && r.AnimalID != f.AnimalID {
		return false
	}
	if f.BreedingEventID != "" && r.BreedingEventID != f.BreedingEventID {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, r.Category) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, r.Kind) {
		return false
	}
	return true
}

func (s *Store) ClaimReminder(ctx context.Context, id, token string, now, until time.Time) error {
	defer s.lock(ctx)()
	rec, ok := s.st.reminders[id]
	if !ok {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	if rec.reminder.Status != models.StatusPending {
		return fmt.Errorf("reminder %s is %s: %w", id, rec.reminder.Status, repository.ErrConflict)
	}
	if rec.claimToken != "" && rec.claimUntil.After(now) {
		return fmt.Errorf("reminder %s is claimed: %w", id, repository.ErrConflict)
	}
	rec.claimToken = token
	rec.claimUntil = until
	s.st.reminders[id] = rec
	return nil
}

func (s *Store) ReleaseReminderClaim(ctx context.Context, id, token string) error {
	defer s.lock(ctx)()
	rec, ok := s.st.reminders[id]
	if !ok {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	if rec.claimToken == token {
		rec.claimToken = ""
		rec.claimUntil = time.Time{}
		s.st.reminders[id] = rec
	}
	return nil
}

func (s *Store) MarkReminderSent(ctx context.Context, id, token string, at time.Time) error {
	defer s.lock(ctx)()
	rec, ok := s.st.reminders[id]
	if !ok {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	if rec.reminder.Status != models.StatusPending || rec.claimToken != token {
		return fmt.Errorf("reminder %s lost claim: %w", id, repository.ErrConflict)
	}
	sentAt := at
	rec.reminder.Status = models.StatusSent
	rec.reminder.SentAt = &sentAt
	rec.reminder.Updated = at
	rec.claimToken = ""
	rec.claimUntil = time.Time{}
	s.st.reminders[id] = rec
	return nil
}

func (s *Store) CompleteReminder(ctx context.Context, id string, at time.Time) error {
	defer s.lock(ctx)()
	rec, ok := s.st.reminders[id]
	if !ok {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	if rec.reminder.Status != models.StatusPending {
		return fmt.Errorf("reminder %s is %s: %w", id, rec.reminder.Status, repository.ErrConflict)
	}
	rec.reminder.Status = models.StatusCompleted
	rec.reminder.Updated = at
	rec.claimToken = ""
	rec.claimUntil = time.Time{}
	s.st.reminders[id] = rec
	return nil
}
