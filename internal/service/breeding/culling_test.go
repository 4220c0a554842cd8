package breeding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

// litters builds completed events from sizes given most recent first.
func litters(sizes ...int) []models.BreedingEvent {
	out := make([]models.BreedingEvent, 0, len(sizes))
	birth := calendar.MustParseDate("2025-01-01")
	for i, size := range sizes {
		size := size
		out = append(out, models.BreedingEvent{
			ID:              "ev-" + string(rune('a'+i)),
			ActualBirthDate: birth.AddDays(-90 * i),
			LitterSize:      &size,
		})
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestEvaluateCulling(t *testing.T) {
	cases := []struct {
		name    string
		history []models.BreedingEvent
		current *int
		want    []models.CullingReason
	}{
		{"chronic small litters", litters(4, 3, 4), nil, []models.CullingReason{models.CullingChronicSmallLitters}},
		{"one healthy litter breaks the streak", litters(4, 6, 4), nil, nil},
		{"fewer than three litters", litters(2, 2), nil, nil},
		{"only the newest three count", litters(4, 3, 4, 9), nil, []models.CullingReason{models.CullingChronicSmallLitters}},
		{"oversized litter without history", nil, intPtr(12), []models.CullingReason{models.CullingOutOfRangeLitter}},
		{"undersized litter", litters(6), intPtr(2), []models.CullingReason{models.CullingOutOfRangeLitter}},
		{"healthy bounds", litters(7), intPtr(5), nil},
		{"upper bound inclusive", nil, intPtr(10), nil},
		{"both reasons", litters(4, 3, 4), intPtr(3), []models.CullingReason{models.CullingChronicSmallLitters, models.CullingOutOfRangeLitter}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := EvaluateCulling(tc.history, tc.current)
			assert.Equal(t, len(tc.want) > 0, rec.Recommend)
			assert.Equal(t, tc.want, rec.Reasons)
		})
	}
}

func TestEvaluateCulling_SkipsOpenEvents(t *testing.T) {
	history := append([]models.BreedingEvent{{ID: "open"}}, litters(4, 3, 4)...)
	rec := EvaluateCulling(history, nil)
	assert.True(t, rec.Recommend)
}
