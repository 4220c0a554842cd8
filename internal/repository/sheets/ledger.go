package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

// Ledger tab ranges. Each tab starts with a header row written by hand.
const (
	matingsRange = "Matings!A:H"
	birthsRange  = "Births!A:H"
	cullingRange = "Culling!A:E"
)

// BreedingLedger appends one row per committed breeding transition so farm
// staff can follow the herd in a spreadsheet.
type BreedingLedger struct {
	repo Repository
	now  func() time.Time
}

// NewBreedingLedger writes through repo.
func NewBreedingLedger(repo Repository) *BreedingLedger {
	return &BreedingLedger{repo: repo, now: time.Now}
}

func name(a models.Animal) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

func (l *BreedingLedger) stamp() string {
	return l.now().UTC().Format(time.RFC3339)
}

// AppendMating records a new breeding event.
func (l *BreedingLedger) AppendMating(ctx context.Context, ev models.BreedingEvent, doe, buck models.Animal) error {
	row := []interface{}{
		ev.ID,
		ev.FarmID,
		name(doe),
		name(buck),
		ev.HutchID,
		ev.MatingDate.String(),
		ev.ExpectedBirthDate.String(),
		l.stamp(),
	}
	if err := l.repo.WriteRow(ctx, matingsRange, row); err != nil {
		return fmt.Errorf("append mating %s: %w", ev.ID, err)
	}
	return nil
}

// AppendBirth records the outcome of a breeding event.
func (l *BreedingLedger) AppendBirth(ctx context.Context, ev models.BreedingEvent, doe models.Animal) error {
	size := 0
	if ev.LitterSize != nil {
		size = *ev.LitterSize
	}
	row := []interface{}{
		ev.ID,
		ev.FarmID,
		name(doe),
		ev.MatingDate.String(),
		ev.ActualBirthDate.String(),
		size,
		ev.ActualBirthDate.DaysSince(ev.MatingDate),
		l.stamp(),
	}
	if err := l.repo.WriteRow(ctx, birthsRange, row); err != nil {
		return fmt.Errorf("append birth %s: %w", ev.ID, err)
	}
	return nil
}

// AppendCulling records a culling recommendation.
func (l *BreedingLedger) AppendCulling(ctx context.Context, ev models.BreedingEvent, doe models.Animal, reasons []models.CullingReason) error {
	labels := make([]string, 0, len(reasons))
	for _, r := range reasons {
		labels = append(labels, string(r))
	}
	row := []interface{}{
		ev.ID,
		ev.FarmID,
		name(doe),
		strings.Join(labels, ", "),
		l.stamp(),
	}
	if err := l.repo.WriteRow(ctx, cullingRange, row); err != nil {
		return fmt.Errorf("append culling %s: %w", ev.ID, err)
	}
	return nil
}

// Check reads the header row of every ledger tab so a misconfigured
// spreadsheet fails at startup rather than on the first transition.
func (l *BreedingLedger) Check(ctx context.Context) error {
	for _, r := range []string{matingsRange, birthsRange, cullingRange} {
		tab := strings.SplitN(r, "!", 2)[0]
		if _, err := l.repo.ReadRange(ctx, tab+"!1:1"); err != nil {
			return fmt.Errorf("check ledger tab %s: %w", tab, err)
		}
	}
	return nil
}
