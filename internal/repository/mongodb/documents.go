package mongodb

import (
	"fmt"
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
)

// Calendar dates are stored as YYYY-MM-DD strings so range filters and
// array membership ($in / equality on notify_on) compare lexically.

type farmDoc struct {
	ID       string    `bson:"_id"`
	Name     string    `bson:"name"`
	Timezone string    `bson:"timezone,omitempty"`
	NotifyTo string    `bson:"notify_to,omitempty"`
	Created  time.Time `bson:"created_at"`
}

type animalDoc struct {
	ID                string    `bson:"_id"`
	FarmID            string    `bson:"farm_id"`
	Name              string    `bson:"name"`
	Sex               string    `bson:"sex"`
	HutchID           string    `bson:"hutch_id,omitempty"`
	MotherID          string    `bson:"mother_id,omitempty"`
	FatherID          string    `bson:"father_id,omitempty"`
	Deleted           bool      `bson:"deleted"`
	BirthDate         string    `bson:"birth_date,omitempty"`
	IsPregnant        bool      `bson:"is_pregnant"`
	PregnancyStart    string    `bson:"pregnancy_start,omitempty"`
	ExpectedBirthDate string    `bson:"expected_birth_date,omitempty"`
	LastBirthDate     string    `bson:"last_birth_date,omitempty"`
	LitterCount       int       `bson:"litter_count"`
	KitCount          int       `bson:"kit_count"`
	Created           time.Time `bson:"created_at"`
	Updated           time.Time `bson:"updated_at"`
}

type eventDoc struct {
	ID                string    `bson:"_id"`
	FarmID            string    `bson:"farm_id"`
	DoeID             string    `bson:"doe_id"`
	BuckID            string    `bson:"buck_id"`
	HutchID           string    `bson:"hutch_id,omitempty"`
	MatingDate        string    `bson:"mating_date"`
	ExpectedBirthDate string    `bson:"expected_birth_date"`
	ActualBirthDate   string    `bson:"actual_birth_date,omitempty"`
	LitterSize        *int      `bson:"litter_size,omitempty"`
	KitsRecorded      bool      `bson:"kits_recorded"`
	Notes             string    `bson:"notes,omitempty"`
	Deleted           bool      `bson:"deleted"`
	Open              bool      `bson:"open"` // backs the one-open-event-per-doe unique index
	Created           time.Time `bson:"created_at"`
	Updated           time.Time `bson:"updated_at"`
}

type reminderDoc struct {
	ID              string     `bson:"_id"`
	FarmID          string     `bson:"farm_id"`
	AnimalID        string     `bson:"animal_id,omitempty"`
	HutchID         string     `bson:"hutch_id,omitempty"`
	BreedingEventID string     `bson:"breeding_event_id,omitempty"`
	Category        string     `bson:"category"`
	Kind            string     `bson:"kind"`
	Severity        string     `bson:"severity"`
	TriggerAt       time.Time  `bson:"trigger_at"`
	Message         string     `bson:"message"`
	Status          string     `bson:"status"`
	NotifyOn        []string   `bson:"notify_on"`
	SentAt          *time.Time `bson:"sent_at,omitempty"`
	ClaimToken      string     `bson:"claim_token,omitempty"`
	ClaimExpiresAt  *time.Time `bson:"claim_expires_at,omitempty"`
	Created         time.Time  `bson:"created_at"`
	Updated         time.Time  `bson:"updated_at"`
}

func parseStoredDate(value string) (calendar.Date, error) {
	if value == "" {
		return calendar.Date{}, nil
	}
	return calendar.ParseDate(value)
}

func fromFarm(f models.Farm) farmDoc {
	return farmDoc{ID: f.ID, Name: f.Name, Timezone: f.Timezone, NotifyTo: f.NotifyTo, Created: f.Created}
}

func (d farmDoc) model() models.Farm {
	return models.Farm{ID: d.ID, Name: d.Name, Timezone: d.Timezone, NotifyTo: d.NotifyTo, Created: d.Created}
}

func fromAnimal(a models.Animal) animalDoc {
	return animalDoc{
		ID:                a.ID,
		FarmID:            a.FarmID,
		Name:              a.Name,
		Sex:               string(a.Sex),
		HutchID:           a.HutchID,
		MotherID:          a.MotherID,
		FatherID:          a.FatherID,
		Deleted:           a.Deleted,
		BirthDate:         a.BirthDate.String(),
		IsPregnant:        a.IsPregnant,
		PregnancyStart:    a.PregnancyStart.String(),
		ExpectedBirthDate: a.ExpectedBirthDate.String(),
		LastBirthDate:     a.LastBirthDate.String(),
		LitterCount:       a.LitterCount,
		KitCount:          a.KitCount,
		Created:           a.Created,
		Updated:           a.Updated,
	}
}

func (d animalDoc) model() (models.Animal, error) {
	a := models.Animal{
		ID:          d.ID,
		FarmID:      d.FarmID,
		Name:        d.Name,
		Sex:         models.Sex(d.Sex),
		HutchID:     d.HutchID,
		MotherID:    d.MotherID,
		FatherID:    d.FatherID,
		Deleted:     d.Deleted,
		IsPregnant:  d.IsPregnant,
		LitterCount: d.LitterCount,
		KitCount:    d.KitCount,
		Created:     d.Created,
		Updated:     d.Updated,
	}
	if !a.Sex.Valid() {
		return models.Animal{}, fmt.Errorf("animal %s: unknown sex %q", d.ID, d.Sex)
	}

	var err error
	if a.BirthDate, err = parseStoredDate(d.BirthDate); err != nil {
		return models.Animal{}, err
	}
	if a.PregnancyStart, err = parseStoredDate(d.PregnancyStart); err != nil {
		return models.Animal{}, err
	}
	if a.ExpectedBirthDate, err = parseStoredDate(d.ExpectedBirthDate); err != nil {
		return models.Animal{}, err
	}
	if a.LastBirthDate, err = parseStoredDate(d.LastBirthDate); err != nil {
		return models.Animal{}, err
	}
	return a, nil
}

func fromEvent(e models.BreedingEvent) eventDoc {
	return eventDoc{
		ID:                e.ID,
		FarmID:            e.FarmID,
		DoeID:             e.DoeID,
		BuckID:            e.BuckID,
		HutchID:           e.HutchID,
		MatingDate:        e.MatingDate.String(),
		ExpectedBirthDate: e.ExpectedBirthDate.String(),
		ActualBirthDate:   e.ActualBirthDate.String(),
		LitterSize:        e.LitterSize,
		KitsRecorded:      e.KitsRecorded,
		Notes:             e.Notes,
		Deleted:           e.Deleted,
		Open:              e.Open(),
		Created:           e.Created,
		Updated:           e.Updated,
	}
}

func (d eventDoc) model() (models.BreedingEvent, error) {
	e := models.BreedingEvent{
		ID:           d.ID,
		FarmID:       d.FarmID,
		DoeID:        d.DoeID,
		BuckID:       d.BuckID,
		HutchID:      d.HutchID,
		LitterSize:   d.LitterSize,
		KitsRecorded: d.KitsRecorded,
		Notes:        d.Notes,
		Deleted:      d.Deleted,
		Created:      d.Created,
		Updated:      d.Updated,
	}

	var err error
	if e.MatingDate, err = parseStoredDate(d.MatingDate); err != nil {
		return models.BreedingEvent{}, err
	}
	if e.ExpectedBirthDate, err = parseStoredDate(d.ExpectedBirthDate); err != nil {
		return models.BreedingEvent{}, err
	}
	if e.ActualBirthDate, err = parseStoredDate(d.ActualBirthDate); err != nil {
		return models.BreedingEvent{}, err
	}
	return e, nil
}

func fromReminder(r models.Reminder) reminderDoc {
	notifyOn := make([]string, 0, len(r.NotifyOn))
	for _, d := range r.NotifyOn {
		notifyOn = append(notifyOn, d.String())
	}
	return reminderDoc{
		ID:              r.ID,
		FarmID:          r.FarmID,
		AnimalID:        r.AnimalID,
		HutchID:         r.HutchID,
		BreedingEventID: r.BreedingEventID,
		Category:        string(r.Category),
		Kind:            string(r.Kind),
		Severity:        string(r.Severity),
		TriggerAt:       r.TriggerAt,
		Message:         r.Message,
		Status:          string(r.Status),
		NotifyOn:        notifyOn,
		SentAt:          r.SentAt,
		Created:         r.Created,
		Updated:         r.Updated,
	}
}

func (d reminderDoc) model() (models.Reminder, error) {
	category, err := models.ParseReminderCategory(d.Category)
	if err != nil {
		return models.Reminder{}, err
	}
	severity, err := models.ParseSeverity(d.Severity)
	if err != nil {
		return models.Reminder{}, err
	}
	status, err := models.ParseReminderStatus(d.Status)
	if err != nil {
		return models.Reminder{}, err
	}

	r := models.Reminder{
		ID:              d.ID,
		FarmID:          d.FarmID,
		AnimalID:        d.AnimalID,
		HutchID:         d.HutchID,
		BreedingEventID: d.BreedingEventID,
		Category:        category,
		Kind:            models.ReminderKind(d.Kind),
		Severity:        severity,
		TriggerAt:       d.TriggerAt,
		Message:         d.Message,
		Status:          status,
		SentAt:          d.SentAt,
		Created:         d.Created,
		Updated:         d.Updated,
	}
	for _, raw := range d.NotifyOn {
		day, err := calendar.ParseDate(raw)
		if err != nil {
			return models.Reminder{}, fmt.Errorf("reminder %s notify_on: %w", d.ID, err)
		}
		r.NotifyOn = append(r.NotifyOn, day)
	}
	return r, nil
}
