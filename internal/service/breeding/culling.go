package breeding

import "github.com/mamadbah2/rabbitry/internal/domain/models"

const (
	cullingHistoryDepth = 3
	minHealthyLitter    = 5
	maxHealthyLitter    = 10
)

// CullingRecommendation is the advisor's decision. Reasons lists every rule
// that fired.
type CullingRecommendation struct {
	Recommend bool                   `json:"recommend"`
	Reasons   []models.CullingReason `json:"reasons,omitempty"`
}

// EvaluateCulling looks at the doe's completed events, most recent first, and
// at the litter just recorded (nil when none). Only the newest three completed
// events count; fewer than three never yields the small-litter reason.
func EvaluateCulling(completed []models.BreedingEvent, current *int) CullingRecommendation {
	var rec CullingRecommendation

	var recent []int
	for _, ev := range completed {
		if !ev.Completed() || ev.LitterSize == nil {
			continue
		}
		recent = append(recent, *ev.LitterSize)
		if len(recent) == cullingHistoryDepth {
			break
		}
	}

	if len(recent) == cullingHistoryDepth {
		small := true
		for _, size := range recent {
			if size >= minHealthyLitter {
				small = false
				break
			}
		}
		if small {
			rec.Reasons = append(rec.Reasons, models.CullingChronicSmallLitters)
		}
	}

	if current != nil && (*current < minHealthyLitter || *current > maxHealthyLitter) {
		rec.Reasons = append(rec.Reasons, models.CullingOutOfRangeLitter)
	}

	rec.Recommend = len(rec.Reasons) > 0
	return rec
}
