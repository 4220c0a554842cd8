package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/rabbitry/internal/calendar"
)

func TestReminderStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusSent))
	assert.True(t, StatusPending.CanTransitionTo(StatusRejected))
	assert.True(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))

	for _, terminal := range []ReminderStatus{StatusSent, StatusRejected, StatusCompleted} {
		assert.True(t, terminal.Terminal())
		for _, next := range []ReminderStatus{StatusPending, StatusSent, StatusRejected, StatusCompleted} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestParseEnums(t *testing.T) {
	status, err := ParseReminderStatus("sent")
	assert.NoError(t, err)
	assert.Equal(t, StatusSent, status)
	_, err = ParseReminderStatus("queued")
	assert.Error(t, err)

	category, err := ParseReminderCategory("culling")
	assert.NoError(t, err)
	assert.Equal(t, CategoryCulling, category)
	_, err = ParseReminderCategory("")
	assert.Error(t, err)

	_, err = ParseSeverity("urgent")
	assert.Error(t, err)
}

func TestReminder_DueOn(t *testing.T) {
	r := Reminder{
		Status:   StatusPending,
		NotifyOn: []calendar.Date{calendar.MustParseDate("2025-06-26"), calendar.MustParseDate("2025-06-27")},
	}
	assert.True(t, r.DueOn(calendar.MustParseDate("2025-06-27")))
	assert.False(t, r.DueOn(calendar.MustParseDate("2025-06-28")))

	r.Status = StatusSent
	assert.False(t, r.DueOn(calendar.MustParseDate("2025-06-27")))
}

func TestBreedingEvent_OpenCompleted(t *testing.T) {
	ev := BreedingEvent{MatingDate: calendar.MustParseDate("2025-06-01")}
	assert.True(t, ev.Open())
	assert.False(t, ev.Completed())

	ev.ActualBirthDate = calendar.MustParseDate("2025-07-02")
	assert.False(t, ev.Open())
	assert.True(t, ev.Completed())

	ev.Deleted = true
	assert.False(t, ev.Completed())
}

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("/done 6f1c-AB")
	assert.Equal(t, CommandDone, cmd.Type)
	assert.Equal(t, []string{"6f1c-AB"}, cmd.Args)

	assert.Equal(t, CommandDue, ParseCommand("  DUE ").Type)
	assert.Equal(t, CommandHelp, ParseCommand("?").Type)
	assert.Equal(t, CommandUnknown, ParseCommand("eggs 12").Type)
	assert.Equal(t, CommandUnknown, ParseCommand("   ").Type)
}
