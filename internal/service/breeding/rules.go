package breeding

import (
	"fmt"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

const (
	// GestationDays is added to the mating date to get the expected birth date.
	GestationDays = 31
	// BuckRestDays is the minimum gap between two matings of the same buck.
	BuckRestDays = 3
	// WeaningDays separates a birth from the weaning of its litter.
	WeaningDays = 42
	// DoeRestDays is the rest a doe gets after weaning before the next mating.
	DoeRestDays = 7
)

// RejectionReason is a closed set of validation failure codes.
type RejectionReason string

const (
	ReasonDoeNotFound       RejectionReason = "doe_not_found"
	ReasonDoeNotFemale      RejectionReason = "doe_not_female"
	ReasonDoeDeleted        RejectionReason = "doe_deleted"
	ReasonBuckNotFound      RejectionReason = "buck_not_found"
	ReasonBuckNotMale       RejectionReason = "buck_not_male"
	ReasonBuckDeleted       RejectionReason = "buck_deleted"
	ReasonFarmMismatch      RejectionReason = "farm_mismatch"
	ReasonBuckResting       RejectionReason = "buck_resting"
	ReasonDoeResting        RejectionReason = "doe_resting"
	ReasonInvalidDate       RejectionReason = "invalid_date"
	ReasonBirthBeforeMating RejectionReason = "birth_before_mating"
	ReasonInvalidLitterSize RejectionReason = "invalid_litter_size"
	ReasonInvalidKits       RejectionReason = "invalid_kits"
	ReasonInvalidAnimal     RejectionReason = "invalid_animal"
	ReasonInvalidFarm       RejectionReason = "invalid_farm"
)

// RejectionError reports a violated breeding constraint. It is surfaced to the
// caller verbatim and never retried.
type RejectionError struct {
	Reason RejectionReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("rejected: %s: %s", e.Reason, e.Detail)
}

func reject(reason RejectionReason, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// MatingHistory is the breeding history a mating is validated against.
type MatingHistory struct {
	// BuckMatings holds the buck's non-deleted matings near the proposed date.
	BuckMatings []models.BreedingEvent
	// LastCompleted is the doe's most recent event with a recorded birth, if any.
	LastCompleted *models.BreedingEvent
}

// BuckRestWindow returns the inclusive date range in which an earlier mating of
// the buck blocks a mating on date.
func BuckRestWindow(date calendar.Date) (from, to calendar.Date) {
	return date.AddDays(-(BuckRestDays - 1)), date
}

// EarliestRemating returns the first date a doe may be mated again after a birth.
func EarliestRemating(birth calendar.Date) calendar.Date {
	return birth.AddDays(WeaningDays + DoeRestDays)
}

// ValidateMating checks a proposed mating on farmID; rules run in order and the
// first failure wins. A nil doe or buck means the record does not exist.
func ValidateMating(farmID string, doe, buck *models.Animal, date calendar.Date, history MatingHistory) error {
	if date.IsZero() {
		return reject(ReasonInvalidDate, "mating date is required")
	}

	switch {
	case doe == nil:
		return reject(ReasonDoeNotFound, "")
	case doe.Sex != models.SexFemale:
		return reject(ReasonDoeNotFemale, "animal %s is %s", doe.ID, doe.Sex)
	case doe.Deleted:
		return reject(ReasonDoeDeleted, "animal %s", doe.ID)
	case doe.FarmID != farmID:
		return reject(ReasonFarmMismatch, "doe %s is not on farm %s", doe.ID, farmID)
	}

	switch {
	case buck == nil:
		return reject(ReasonBuckNotFound, "")
	case buck.Sex != models.SexMale:
		return reject(ReasonBuckNotMale, "animal %s is %s", buck.ID, buck.Sex)
	case buck.Deleted:
		return reject(ReasonBuckDeleted, "animal %s", buck.ID)
	case buck.FarmID != doe.FarmID:
		return reject(ReasonFarmMismatch, "doe on %s, buck on %s", doe.FarmID, buck.FarmID)
	}

	from, to := BuckRestWindow(date)
	for _, ev := range history.BuckMatings {
		if ev.Deleted || ev.BuckID != buck.ID {
			continue
		}
		if !ev.MatingDate.Before(from) && !ev.MatingDate.After(to) {
			return reject(ReasonBuckResting, "buck %s mated on %s, available from %s",
				buck.ID, ev.MatingDate, ev.MatingDate.AddDays(BuckRestDays))
		}
	}

	if last := history.LastCompleted; last != nil && !last.ActualBirthDate.IsZero() {
		if earliest := EarliestRemating(last.ActualBirthDate); date.Before(earliest) {
			return reject(ReasonDoeResting, "doe %s gave birth on %s, available from %s",
				doe.ID, last.ActualBirthDate, earliest)
		}
	}

	return nil
}
