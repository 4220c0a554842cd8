package models

import (
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
)

// Sex of a livestock record.
type Sex string

const (
	SexFemale  Sex = "female"
	SexMale    Sex = "male"
	SexUnknown Sex = "unknown"
)

// Valid reports whether s is one of the known sexes.
func (s Sex) Valid() bool {
	switch s {
	case SexFemale, SexMale, SexUnknown:
		return true
	}
	return false
}

// Animal is the livestock record subset the breeding engine reads and maintains.
// The pregnancy fields are owned by the breeding service; callers never set them.
type Animal struct {
	ID       string `json:"id"`
	FarmID   string `json:"farm_id"`
	Name     string `json:"name"`
	Sex      Sex    `json:"sex"`
	HutchID  string `json:"hutch_id,omitempty"`
	MotherID string `json:"mother_id,omitempty"`
	FatherID string `json:"father_id,omitempty"`
	Deleted  bool   `json:"deleted"`

	BirthDate calendar.Date `json:"birth_date,omitzero"`

	IsPregnant        bool          `json:"is_pregnant"`
	PregnancyStart    calendar.Date `json:"pregnancy_start,omitzero"`
	ExpectedBirthDate calendar.Date `json:"expected_birth_date,omitzero"`
	LastBirthDate     calendar.Date `json:"last_birth_date,omitzero"`
	LitterCount       int           `json:"litter_count"`
	KitCount          int           `json:"kit_count"`

	Created time.Time `json:"created_at"`
	Updated time.Time `json:"updated_at"`
}
