package breeding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/repository"
	"github.com/mamadbah2/rabbitry/internal/repository/memory"
)

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu       sync.Mutex
	matings  []string
	births   []string
	cullings [][]models.CullingReason
	err      error
}

func (f *fakeLedger) AppendMating(_ context.Context, ev models.BreedingEvent, _, _ models.Animal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matings = append(f.matings, ev.ID)
	return f.err
}

func (f *fakeLedger) AppendBirth(_ context.Context, ev models.BreedingEvent, _ models.Animal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.births = append(f.births, ev.ID)
	return f.err
}

func (f *fakeLedger) AppendCulling(_ context.Context, _ models.BreedingEvent, _ models.Animal, reasons []models.CullingReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cullings = append(f.cullings, reasons)
	return f.err
}

type fixture struct {
	store  *memory.Store
	svc    *Service
	ledger *fakeLedger
	farm   models.Farm
	doe    models.Animal
	buck   models.Animal
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	projector, err := calendar.NewProjector("UTC")
	require.NoError(t, err)

	f := &fixture{store: memory.New(), ledger: &fakeLedger{}}
	opts = append([]Option{WithClock(fixedClock(testNow)), WithLedger(f.ledger)}, opts...)
	f.svc = NewService(f.store, projector, nil, opts...)

	f.farm, err = f.svc.RegisterFarm(ctx, models.Farm{ID: "farm-1", Name: "Kindia", Timezone: "Africa/Conakry"})
	require.NoError(t, err)
	f.doe, err = f.svc.RegisterAnimal(ctx, f.farm.ID, AnimalInput{Name: "Bella", Sex: models.SexFemale, HutchID: "H1"})
	require.NoError(t, err)
	f.buck, err = f.svc.RegisterAnimal(ctx, f.farm.ID, AnimalInput{Name: "Rex", Sex: models.SexMale, HutchID: "H9"})
	require.NoError(t, err)
	return f
}

func (f *fixture) mate(t *testing.T, doeID, date string) models.BreedingEvent {
	t.Helper()
	ev, err := f.svc.ProposeMating(context.Background(), ProposeMatingInput{
		FarmID:     f.farm.ID,
		DoeID:      doeID,
		BuckID:     f.buck.ID,
		MatingDate: calendar.MustParseDate(date),
	})
	require.NoError(t, err)
	return ev
}

func statusesByKind(t *testing.T, store *memory.Store, animalID string) map[models.ReminderKind][]models.ReminderStatus {
	t.Helper()
	rs, err := store.ListRemindersByAnimal(context.Background(), animalID)
	require.NoError(t, err)
	out := map[models.ReminderKind][]models.ReminderStatus{}
	for _, r := range rs {
		out[r.Kind] = append(out[r.Kind], r.Status)
	}
	return out
}

func TestProposeMating_RecordsEventAndCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev := f.mate(t, f.doe.ID, "2025-06-01")
	assert.Equal(t, "2025-07-02", ev.ExpectedBirthDate.String())
	assert.Equal(t, "H1", ev.HutchID)
	assert.True(t, ev.Open())

	doe, err := f.svc.GetAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.True(t, doe.IsPregnant)
	assert.Equal(t, ev.MatingDate, doe.PregnancyStart)
	assert.Equal(t, ev.ExpectedBirthDate, doe.ExpectedBirthDate)

	kinds := statusesByKind(t, f.store, f.doe.ID)
	assert.Len(t, kinds[models.KindMatingAck], 1)
	assert.Len(t, kinds[models.KindNestingBox], 1)
	assert.Len(t, kinds[models.KindBirthCheck], 4)
	assert.Equal(t, []string{ev.ID}, f.ledger.matings)
}

func TestProposeMating_SecondOpenEventConflicts(t *testing.T) {
	f := newFixture(t)
	f.mate(t, f.doe.ID, "2025-06-01")

	_, err := f.svc.ProposeMating(context.Background(), ProposeMatingInput{
		FarmID:     f.farm.ID,
		DoeID:      f.doe.ID,
		BuckID:     f.buck.ID,
		MatingDate: calendar.MustParseDate("2025-06-10"),
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestProposeMating_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProposeMating(ctx, ProposeMatingInput{
				FarmID:     f.farm.ID,
				DoeID:      f.doe.ID,
				BuckID:     f.buck.ID,
				MatingDate: calendar.MustParseDate("2025-06-01"),
			})
			mu.Lock()
			defer mu.Unlock()
			var rej *RejectionError
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repository.ErrConflict), errors.As(err, &rej):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 11, conflicts)

	events, err := f.svc.ListBreedingEvents(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	rs, err := f.store.ListRemindersByAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.Len(t, rs, 6, "losers leave no reminders behind")
}

func TestProposeMating_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.svc.RegisterAnimal(ctx, f.farm.ID, AnimalInput{Name: "Luna", Sex: models.SexFemale})
	require.NoError(t, err)
	f.mate(t, f.doe.ID, "2025-06-01")

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: other.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-03"),
	})
	requireReason(t, err, ReasonBuckResting)

	ev, err := f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: other.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-04"),
	})
	require.NoError(t, err)
	assert.Equal(t, other.ID, ev.DoeID)

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: "ghost", BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-10"),
	})
	requireReason(t, err, ReasonDoeNotFound)

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: f.buck.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-10"),
	})
	requireReason(t, err, ReasonDoeNotFemale)

	_, err = f.svc.RegisterFarm(ctx, models.Farm{ID: "farm-2", Name: "Mamou"})
	require.NoError(t, err)
	strayBuck, err := f.svc.RegisterAnimal(ctx, "farm-2", AnimalInput{Name: "Max", Sex: models.SexMale})
	require.NoError(t, err)
	strayDoe, err := f.svc.RegisterAnimal(ctx, "farm-2", AnimalInput{Name: "Nala", Sex: models.SexFemale})
	require.NoError(t, err)

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: strayBuck.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-10"),
	})
	requireReason(t, err, ReasonDoeNotFemale)

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: strayDoe.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-10"),
	})
	requireReason(t, err, ReasonFarmMismatch)

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: "farm-x", DoeID: f.doe.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-06-10"),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRecordBirth_ClosesEventAndSwapsCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")

	res, err := f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-01"), 8, "early")
	require.NoError(t, err)
	assert.True(t, res.Event.Completed())
	assert.Equal(t, 8, *res.Event.LitterSize)
	assert.False(t, res.Culling.Recommend)

	doe, err := f.svc.GetAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.False(t, doe.IsPregnant)
	assert.True(t, doe.PregnancyStart.IsZero())
	assert.Equal(t, "2025-07-01", doe.LastBirthDate.String())
	assert.Equal(t, 1, doe.LitterCount)
	assert.Equal(t, 8, doe.KitCount)

	kinds := statusesByKind(t, f.store, f.doe.ID)
	assert.Equal(t, []models.ReminderStatus{models.StatusCompleted}, kinds[models.KindMatingAck])
	assert.Equal(t, []models.ReminderStatus{models.StatusCompleted}, kinds[models.KindNestingBox])
	assert.ElementsMatch(t, []models.ReminderStatus{
		models.StatusCompleted, models.StatusCompleted, models.StatusCompleted, models.StatusCompleted,
	}, kinds[models.KindBirthCheck])
	assert.Equal(t, []models.ReminderStatus{models.StatusPending}, kinds[models.KindFosteringCheck])
	assert.Equal(t, []models.ReminderStatus{models.StatusPending}, kinds[models.KindRemoveNestingBox])
	assert.Equal(t, []models.ReminderStatus{models.StatusPending}, kinds[models.KindWeanKits])
	assert.Empty(t, kinds[models.KindCulling])

	assert.Equal(t, []string{ev.ID}, f.ledger.births)
}

func TestRecordBirth_SecondBirthConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")

	_, err := f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-01"), 7, "")
	require.NoError(t, err)

	_, err = f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-02"), 9, "")
	assert.ErrorIs(t, err, repository.ErrConflict)

	doe, err := f.svc.GetAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, doe.LitterCount)
	assert.Equal(t, 7, doe.KitCount)
}

func TestRecordBirth_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")

	_, err := f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-05-30"), 7, "")
	requireReason(t, err, ReasonBirthBeforeMating)

	_, err = f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-01"), -1, "")
	requireReason(t, err, ReasonInvalidLitterSize)

	_, err = f.svc.RecordBirth(ctx, "missing", calendar.MustParseDate("2025-07-01"), 7, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := f.store.GetBreedingEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, got.Open(), "failed attempts leave the event open")
}

func TestRecordBirth_RecommendsCulling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")

	res, err := f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-02"), 12, "")
	require.NoError(t, err)
	assert.True(t, res.Culling.Recommend)
	assert.Equal(t, []models.CullingReason{models.CullingOutOfRangeLitter}, res.Culling.Reasons)

	rs, err := f.store.ListRemindersByAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	var culling []models.Reminder
	for _, r := range rs {
		if r.Category == models.CategoryCulling {
			culling = append(culling, r)
		}
	}
	require.Len(t, culling, 1)
	assert.Equal(t, models.SeverityHigh, culling[0].Severity)
	assert.Equal(t, []calendar.Date{calendar.MustParseDate("2025-06-01")}, culling[0].NotifyOn)
	assert.Len(t, f.ledger.cullings, 1)
}

func TestRecordBirth_ChronicSmallLitters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mating := calendar.MustParseDate("2024-01-01")
	var last BirthResult
	for _, size := range []int{4, 3, 4} {
		ev := f.mate(t, f.doe.ID, mating.String())
		birth := mating.AddDays(GestationDays)
		var err error
		last, err = f.svc.RecordBirth(ctx, ev.ID, birth, size, "")
		require.NoError(t, err)
		mating = EarliestRemating(birth)
	}

	assert.True(t, last.Culling.Recommend)
	assert.Equal(t, []models.CullingReason{models.CullingChronicSmallLitters, models.CullingOutOfRangeLitter}, last.Culling.Reasons)
}

func TestRecordBirth_DoeRestBlocksNextMating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")
	_, err := f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-02"), 7, "")
	require.NoError(t, err)

	_, err = f.svc.ProposeMating(ctx, ProposeMatingInput{
		FarmID: f.farm.ID, DoeID: f.doe.ID, BuckID: f.buck.ID, MatingDate: calendar.MustParseDate("2025-08-19"),
	})
	requireReason(t, err, ReasonDoeResting)

	f.mate(t, f.doe.ID, "2025-08-20")
}

func TestRetractMating_RejectsPendingKeepsSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")

	rs, err := f.store.ListRemindersByAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	var ack models.Reminder
	for _, r := range rs {
		if r.Kind == models.KindMatingAck {
			ack = r
		}
	}
	require.NoError(t, f.store.ClaimReminder(ctx, ack.ID, "tok", testNow, testNow.Add(time.Minute)))
	require.NoError(t, f.store.MarkReminderSent(ctx, ack.ID, "tok", testNow))

	require.NoError(t, f.svc.RetractMating(ctx, ev.ID))

	kinds := statusesByKind(t, f.store, f.doe.ID)
	assert.Equal(t, []models.ReminderStatus{models.StatusSent}, kinds[models.KindMatingAck])
	assert.Equal(t, []models.ReminderStatus{models.StatusRejected}, kinds[models.KindNestingBox])
	for _, st := range kinds[models.KindBirthCheck] {
		assert.Equal(t, models.StatusRejected, st)
	}

	doe, err := f.svc.GetAnimal(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.False(t, doe.IsPregnant)

	events, err := f.svc.ListBreedingEvents(ctx, f.doe.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, f.svc.RetractMating(ctx, ev.ID), repository.ErrNotFound)

	// The doe can be mated again right away.
	f.mate(t, f.doe.ID, "2025-06-05")
}

func TestRetractMating_AfterBirthConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")
	_, err := f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-02"), 7, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.RetractMating(ctx, ev.ID), repository.ErrConflict)
}

func TestRecordKits(t *testing.T) {
	f := newFixture(t, WithIDGenerator(sequentialIDs("id")))
	ctx := context.Background()
	ev := f.mate(t, f.doe.ID, "2025-06-01")

	_, err := f.svc.RecordKits(ctx, ev.ID, []KitInput{{Name: "k1"}})
	assert.ErrorIs(t, err, repository.ErrConflict, "kits need a recorded birth")

	_, err = f.svc.RecordBirth(ctx, ev.ID, calendar.MustParseDate("2025-07-02"), 2, "")
	require.NoError(t, err)

	_, err = f.svc.RecordKits(ctx, ev.ID, []KitInput{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	requireReason(t, err, ReasonInvalidKits)

	kits, err := f.svc.RecordKits(ctx, ev.ID, []KitInput{
		{Name: "a", Sex: models.SexFemale},
		{Name: "b", HutchID: "H7"},
	})
	require.NoError(t, err)
	require.Len(t, kits, 2)
	assert.Equal(t, f.doe.ID, kits[0].MotherID)
	assert.Equal(t, f.buck.ID, kits[0].FatherID)
	assert.Equal(t, "H1", kits[0].HutchID)
	assert.Equal(t, models.SexUnknown, kits[1].Sex)
	assert.Equal(t, "H7", kits[1].HutchID)
	assert.Equal(t, "2025-07-02", kits[1].BirthDate.String())

	kinds := statusesByKind(t, f.store, f.doe.ID)
	assert.Equal(t, []models.ReminderStatus{models.StatusPending}, kinds[models.KindRelocateKits])

	_, err = f.svc.RecordKits(ctx, ev.ID, []KitInput{{Name: "d"}})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestLedgerFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.ledger.err = errors.New("sheets down")

	ev := f.mate(t, f.doe.ID, "2025-06-01")
	_, err := f.svc.RecordBirth(context.Background(), ev.ID, calendar.MustParseDate("2025-07-02"), 6, "")
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterFarm(ctx, models.Farm{Name: "x", Timezone: "Mars/Olympus"})
	requireReason(t, err, ReasonInvalidFarm)

	_, err = f.svc.RegisterFarm(ctx, models.Farm{Timezone: "UTC"})
	requireReason(t, err, ReasonInvalidFarm)

	_, err = f.svc.RegisterAnimal(ctx, f.farm.ID, AnimalInput{Name: "x", Sex: "hermaphrodite"})
	requireReason(t, err, ReasonInvalidAnimal)

	_, err = f.svc.RegisterAnimal(ctx, "nope", AnimalInput{Name: "x", Sex: models.SexMale})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
