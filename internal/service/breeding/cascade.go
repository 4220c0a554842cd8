package breeding

import (
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

// Cascade offsets, in days from the mating (M) or birth (B) date.
const (
	nestingBoxOffset      = 26 // M+26
	firstBirthCheckOffset = 28 // M+28 .. M+31
	birthCheckCount       = 4
	fosteringCheckOffset  = 4  // B+4
	removeNestingOffset   = 20 // B+20
	notifyLeadDays        = 1  // surfaced the day before the trigger and on it
)

// matingCascadeKinds are the reminders made moot once the birth is recorded.
var matingCascadeKinds = []models.ReminderKind{
	models.KindMatingAck,
	models.KindNestingBox,
	models.KindBirthCheck,
}

// Cascade derives reminder sets from breeding transitions. It only builds
// values; persisting them is the caller's job.
type Cascade struct {
	newID func() string
	now   func() time.Time
}

// NewCascade returns a generator using newID for reminder identifiers.
func NewCascade(newID func() string, now func() time.Time) Cascade {
	return Cascade{newID: newID, now: now}
}

type reminderSpec struct {
	kind     models.ReminderKind
	category models.ReminderCategory
	severity models.Severity
	trigger  calendar.Date
	notifyOn []calendar.Date
	message  string
}

func (c Cascade) build(ev models.BreedingEvent, subject models.Animal, loc *time.Location, spec reminderSpec) models.Reminder {
	now := c.now().UTC()
	hutch := subject.HutchID
	if hutch == "" {
		hutch = ev.HutchID
	}
	return models.Reminder{
		ID:              c.newID(),
		FarmID:          ev.FarmID,
		AnimalID:        subject.ID,
		HutchID:         hutch,
		BreedingEventID: ev.ID,
		Category:        spec.category,
		Kind:            spec.kind,
		Severity:        spec.severity,
		TriggerAt:       calendar.LocalDateToUTCMidnight(spec.trigger, loc),
		Message:         spec.message,
		Status:          models.StatusPending,
		NotifyOn:        spec.notifyOn,
		Created:         now,
		Updated:         now,
	}
}

// window returns the notify-on set {trigger-1d, trigger}.
func window(trigger calendar.Date) []calendar.Date {
	return []calendar.Date{trigger.AddDays(-notifyLeadDays), trigger}
}

func label(a models.Animal) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

func where(a models.Animal) string {
	if a.HutchID == "" {
		return ""
	}
	return fmt.Sprintf(" (hutch %s)", a.HutchID)
}

// ForMating returns the acknowledgment, nesting-box and birth-check reminders
// for a newly recorded mating. today is the farm-local current day.
func (c Cascade) ForMating(ev models.BreedingEvent, doe, buck models.Animal, today calendar.Date, loc *time.Location) []models.Reminder {
	m := ev.MatingDate
	out := make([]models.Reminder, 0, 2+birthCheckCount)

	out = append(out, c.build(ev, doe, loc, reminderSpec{
		kind:     models.KindMatingAck,
		category: models.CategoryBreeding,
		severity: models.SeverityMedium,
		trigger:  today,
		notifyOn: []calendar.Date{today},
		message: fmt.Sprintf("Mating recorded: doe %s%s with buck %s on %s. Expected birth %s.",
			label(doe), where(doe), label(buck), m, ev.ExpectedBirthDate),
	}))

	nesting := m.AddDays(nestingBoxOffset)
	out = append(out, c.build(ev, doe, loc, reminderSpec{
		kind:     models.KindNestingBox,
		category: models.CategoryBreeding,
		severity: models.SeverityHigh,
		trigger:  nesting,
		notifyOn: window(nesting),
		message:  fmt.Sprintf("Add a nesting box for doe %s%s by %s.", label(doe), where(doe), nesting),
	}))

	for i := 0; i < birthCheckCount; i++ {
		check := m.AddDays(firstBirthCheckOffset + i)
		out = append(out, c.build(ev, doe, loc, reminderSpec{
			kind:     models.KindBirthCheck,
			category: models.CategoryBirth,
			severity: models.SeverityHigh,
			trigger:  check,
			notifyOn: window(check),
			message: fmt.Sprintf("Check doe %s%s for birth on %s (day %d after mating).",
				label(doe), where(doe), check, firstBirthCheckOffset+i),
		}))
	}
	return out
}

// ForBirth returns the post-birth reminders. ev must carry its actual birth date.
func (c Cascade) ForBirth(ev models.BreedingEvent, doe models.Animal, loc *time.Location) []models.Reminder {
	b := ev.ActualBirthDate
	size := 0
	if ev.LitterSize != nil {
		size = *ev.LitterSize
	}

	fostering := b.AddDays(fosteringCheckOffset)
	removeNest := b.AddDays(removeNestingOffset)
	wean := b.AddDays(WeaningDays)

	return []models.Reminder{
		c.build(ev, doe, loc, reminderSpec{
			kind:     models.KindFosteringCheck,
			category: models.CategoryBirth,
			severity: models.SeverityMedium,
			trigger:  fostering,
			notifyOn: window(fostering),
			message: fmt.Sprintf("Fostering check for the %d kits of doe %s%s born %s.",
				size, label(doe), where(doe), b),
		}),
		c.build(ev, doe, loc, reminderSpec{
			kind:     models.KindRemoveNestingBox,
			category: models.CategoryBirth,
			severity: models.SeverityMedium,
			trigger:  removeNest,
			notifyOn: window(removeNest),
			message:  fmt.Sprintf("Remove the nesting box of doe %s%s.", label(doe), where(doe)),
		}),
		c.build(ev, doe, loc, reminderSpec{
			kind:     models.KindWeanKits,
			category: models.CategoryBirth,
			severity: models.SeverityHigh,
			trigger:  wean,
			notifyOn: window(wean),
			message:  fmt.Sprintf("Wean the kits of doe %s%s born %s.", label(doe), where(doe), b),
		}),
	}
}

// ForKits returns the relocation reminder emitted once kits are recorded individually.
func (c Cascade) ForKits(ev models.BreedingEvent, doe models.Animal, kits []models.Animal, loc *time.Location) models.Reminder {
	relocate := ev.ActualBirthDate.AddDays(WeaningDays)
	return c.build(ev, doe, loc, reminderSpec{
		kind:     models.KindRelocateKits,
		category: models.CategoryBirth,
		severity: models.SeverityMedium,
		trigger:  relocate,
		notifyOn: window(relocate),
		message: fmt.Sprintf("Relocate the %d kits of doe %s%s to individual hutches.",
			len(kits), label(doe), where(doe)),
	})
}

// ForCulling returns an immediate culling reminder for rec.
func (c Cascade) ForCulling(ev models.BreedingEvent, doe models.Animal, rec CullingRecommendation, today calendar.Date, loc *time.Location) models.Reminder {
	reasons := make([]string, 0, len(rec.Reasons))
	for _, r := range rec.Reasons {
		reasons = append(reasons, strings.ReplaceAll(string(r), "_", " "))
	}
	return c.build(ev, doe, loc, reminderSpec{
		kind:     models.KindCulling,
		category: models.CategoryCulling,
		severity: models.SeverityHigh,
		trigger:  today,
		notifyOn: []calendar.Date{today},
		message: fmt.Sprintf("Consider culling doe %s%s: %s.",
			label(doe), where(doe), strings.Join(reasons, ", ")),
	})
}
