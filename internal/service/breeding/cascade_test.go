package breeding

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func dates(values ...string) []calendar.Date {
	out := make([]calendar.Date, 0, len(values))
	for _, v := range values {
		out = append(out, calendar.MustParseDate(v))
	}
	return out
}

func TestCascade_ForMating(t *testing.T) {
	c := NewCascade(sequentialIDs("rem"), fixedClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)))
	ev := models.BreedingEvent{
		ID:                "ev-1",
		FarmID:            "farm-1",
		DoeID:             "doe-1",
		BuckID:            "buck-1",
		MatingDate:        calendar.MustParseDate("2025-06-01"),
		ExpectedBirthDate: calendar.MustParseDate("2025-07-02"),
	}
	doe := models.Animal{ID: "doe-1", Name: "Bella", HutchID: "H3"}
	buck := models.Animal{ID: "buck-1", Name: "Rex"}

	rs := c.ForMating(ev, doe, buck, calendar.MustParseDate("2025-06-01"), time.UTC)
	require.Len(t, rs, 6)

	ack := rs[0]
	assert.Equal(t, models.KindMatingAck, ack.Kind)
	assert.Equal(t, models.CategoryBreeding, ack.Category)
	assert.Equal(t, models.SeverityMedium, ack.Severity)
	assert.Equal(t, dates("2025-06-01"), ack.NotifyOn)
	assert.Contains(t, ack.Message, "Bella (hutch H3)")
	assert.Contains(t, ack.Message, "Rex")

	nesting := rs[1]
	assert.Equal(t, models.KindNestingBox, nesting.Kind)
	assert.Equal(t, models.SeverityHigh, nesting.Severity)
	assert.Equal(t, dates("2025-06-26", "2025-06-27"), nesting.NotifyOn)
	assert.Equal(t, time.Date(2025, 6, 27, 0, 0, 0, 0, time.UTC), nesting.TriggerAt)

	checks := []string{"2025-06-29", "2025-06-30", "2025-07-01", "2025-07-02"}
	for i, day := range checks {
		r := rs[2+i]
		assert.Equal(t, models.KindBirthCheck, r.Kind)
		assert.Equal(t, models.CategoryBirth, r.Category)
		assert.Equal(t, models.SeverityHigh, r.Severity)
		d := calendar.MustParseDate(day)
		assert.Equal(t, []calendar.Date{d.AddDays(-1), d}, r.NotifyOn)
	}

	for i, r := range rs {
		assert.Equal(t, fmt.Sprintf("rem-%d", i+1), r.ID)
		assert.Equal(t, models.StatusPending, r.Status)
		assert.Equal(t, "ev-1", r.BreedingEventID)
		assert.Equal(t, "doe-1", r.AnimalID)
		assert.Equal(t, "H3", r.HutchID)
	}
}

func TestCascade_ForBirth(t *testing.T) {
	c := NewCascade(sequentialIDs("rem"), fixedClock(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)))
	size := 8
	ev := models.BreedingEvent{
		ID:              "ev-1",
		FarmID:          "farm-1",
		DoeID:           "doe-1",
		ActualBirthDate: calendar.MustParseDate("2025-07-01"),
		LitterSize:      &size,
	}

	rs := c.ForBirth(ev, models.Animal{ID: "doe-1"}, time.UTC)
	require.Len(t, rs, 3)

	assert.Equal(t, models.KindFosteringCheck, rs[0].Kind)
	assert.Equal(t, dates("2025-07-04", "2025-07-05"), rs[0].NotifyOn)
	assert.Contains(t, rs[0].Message, "8 kits")

	assert.Equal(t, models.KindRemoveNestingBox, rs[1].Kind)
	assert.Equal(t, dates("2025-07-20", "2025-07-21"), rs[1].NotifyOn)

	assert.Equal(t, models.KindWeanKits, rs[2].Kind)
	assert.Equal(t, models.SeverityHigh, rs[2].Severity)
	assert.Equal(t, dates("2025-08-11", "2025-08-12"), rs[2].NotifyOn)
}

func TestCascade_TriggerAtUsesFarmZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	c := NewCascade(sequentialIDs("rem"), fixedClock(time.Now()))
	ev := models.BreedingEvent{ID: "ev-1", MatingDate: calendar.MustParseDate("2025-06-01")}
	rs := c.ForMating(ev, models.Animal{ID: "doe-1"}, models.Animal{ID: "buck-1"}, calendar.MustParseDate("2025-06-01"), loc)

	// Local midnight on 2025-06-27 in UTC+05:30.
	assert.Equal(t, time.Date(2025, 6, 26, 18, 30, 0, 0, time.UTC), rs[1].TriggerAt)
}

func TestCascade_ForCullingAndKits(t *testing.T) {
	c := NewCascade(sequentialIDs("rem"), fixedClock(time.Now()))
	ev := models.BreedingEvent{ID: "ev-1", DoeID: "doe-1", ActualBirthDate: calendar.MustParseDate("2025-07-01")}
	doe := models.Animal{ID: "doe-1", Name: "Bella"}
	today := calendar.MustParseDate("2025-07-01")

	cull := c.ForCulling(ev, doe, CullingRecommendation{
		Recommend: true,
		Reasons:   []models.CullingReason{models.CullingChronicSmallLitters, models.CullingOutOfRangeLitter},
	}, today, time.UTC)
	assert.Equal(t, models.CategoryCulling, cull.Category)
	assert.Equal(t, models.SeverityHigh, cull.Severity)
	assert.Equal(t, []calendar.Date{today}, cull.NotifyOn)
	assert.Equal(t, "Consider culling doe Bella: chronic small litters, out of range litter size.", cull.Message)

	relocate := c.ForKits(ev, doe, make([]models.Animal, 3), time.UTC)
	assert.Equal(t, models.KindRelocateKits, relocate.Kind)
	assert.Equal(t, dates("2025-08-11", "2025-08-12"), relocate.NotifyOn)
	assert.Contains(t, relocate.Message, "3 kits")
}
