package models

import (
	"fmt"
	"time"

	"github.com/mamadbah2/rabbitry/internal/calendar"
)

// ReminderCategory groups reminders by the part of the breeding cycle that produced them.
type ReminderCategory string

const (
	CategoryBreeding ReminderCategory = "breeding"
	CategoryBirth    ReminderCategory = "birth"
	CategoryCulling  ReminderCategory = "culling"
	CategoryGeneric  ReminderCategory = "generic"
)

// ParseReminderCategory maps a stored string back to its category.
func ParseReminderCategory(value string) (ReminderCategory, error) {
	switch c := ReminderCategory(value); c {
	case CategoryBreeding, CategoryBirth, CategoryCulling, CategoryGeneric:
		return c, nil
	}
	return "", fmt.Errorf("unknown reminder category %q", value)
}

// Severity of a reminder.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity maps a stored string back to its severity.
func ParseSeverity(value string) (Severity, error) {
	switch s := Severity(value); s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return s, nil
	}
	return "", fmt.Errorf("unknown severity %q", value)
}

// ReminderKind identifies which step of the cascade produced a reminder.
type ReminderKind string

const (
	KindMatingAck        ReminderKind = "mating_ack"
	KindNestingBox       ReminderKind = "nesting_box"
	KindBirthCheck       ReminderKind = "birth_check"
	KindFosteringCheck   ReminderKind = "fostering_check"
	KindRemoveNestingBox ReminderKind = "remove_nesting_box"
	KindWeanKits         ReminderKind = "wean_kits"
	KindRelocateKits     ReminderKind = "relocate_kits"
	KindCulling          ReminderKind = "culling"
)

// ReminderStatus is the dispatch state of a reminder. Pending is the only
// non-terminal state.
type ReminderStatus string

const (
	StatusPending   ReminderStatus = "pending"
	StatusSent      ReminderStatus = "sent"
	StatusRejected  ReminderStatus = "rejected"
	StatusCompleted ReminderStatus = "completed"
)

// ParseReminderStatus maps a stored string back to its status.
func ParseReminderStatus(value string) (ReminderStatus, error) {
	switch s := ReminderStatus(value); s {
	case StatusPending, StatusSent, StatusRejected, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown reminder status %q", value)
}

// Terminal reports whether no further transition is possible from s.
func (s ReminderStatus) Terminal() bool {
	return s != StatusPending
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s ReminderStatus) CanTransitionTo(next ReminderStatus) bool {
	if s != StatusPending {
		return false
	}
	switch next {
	case StatusSent, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Reminder is one scheduled notification derived from a breeding transition.
type Reminder struct {
	ID              string           `json:"id"`
	FarmID          string           `json:"farm_id"`
	AnimalID        string           `json:"animal_id,omitempty"`
	HutchID         string           `json:"hutch_id,omitempty"`
	BreedingEventID string           `json:"breeding_event_id,omitempty"`
	Category        ReminderCategory `json:"category"`
	Kind            ReminderKind     `json:"kind"`
	Severity        Severity         `json:"severity"`
	TriggerAt       time.Time        `json:"trigger_at"`
	Message         string           `json:"message"`
	Status          ReminderStatus   `json:"status"`
	NotifyOn        []calendar.Date  `json:"notify_on"`
	SentAt          *time.Time       `json:"sent_at,omitempty"`
	Created         time.Time        `json:"created_at"`
	Updated         time.Time        `json:"updated_at"`
}

// DueOn reports whether the reminder should surface on the given local day.
func (r Reminder) DueOn(day calendar.Date) bool {
	if r.Status != StatusPending {
		return false
	}
	for _, d := range r.NotifyOn {
		if d == day {
			return true
		}
	}
	return false
}
