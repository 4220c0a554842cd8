package models

import (
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
)

// BreedingEvent is one mating and, once recorded, its birth outcome.
// An event is open until its birth is recorded or it is retracted.
type BreedingEvent struct {
	ID                string        `json:"id"`
	FarmID            string        `json:"farm_id"`
	DoeID             string        `json:"doe_id"`
	BuckID            string        `json:"buck_id"`
	HutchID           string        `json:"hutch_id,omitempty"`
	MatingDate        calendar.Date `json:"mating_date"`
	ExpectedBirthDate calendar.Date `json:"expected_birth_date"`
	ActualBirthDate   calendar.Date `json:"actual_birth_date,omitzero"`
	LitterSize        *int          `json:"litter_size,omitempty"`
	KitsRecorded      bool          `json:"kits_recorded"`
	Notes             string        `json:"notes,omitempty"`
	Deleted           bool          `json:"deleted"`
	Created           time.Time     `json:"created_at"`
	Updated           time.Time     `json:"updated_at"`
}

// Open reports whether the event still awaits a birth.
func (e BreedingEvent) Open() bool {
	return !e.Deleted && e.ActualBirthDate.IsZero()
}

// Completed reports whether a birth has been recorded.
func (e BreedingEvent) Completed() bool {
	return !e.Deleted && !e.ActualBirthDate.IsZero()
}

// CullingReason explains why a doe is recommended for culling.
type CullingReason string

const (
	CullingChronicSmallLitters CullingReason = "chronic_small_litters"
	CullingOutOfRangeLitter    CullingReason = "out_of_range_litter_size"
)
