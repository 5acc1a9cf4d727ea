package module

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhub/persona-gateway/internal/reminder"
)

type nopNotifier struct{}

func (nopNotifier) SendReminder(platform, userID, text string) error { return nil }

func newReminderFixture() (*ReminderModule, *reminder.Scheduler) {
	s := reminder.NewScheduler(nopNotifier{})
	return NewReminderModule(s), s
}

func TestNaturalLanguageReminder(t *testing.T) {
	m, s := newReminderFixture()

	resp, err := m.HandleText(context.Background(), userMsg("remind me to call mom in 2 hours"))
	require.NoError(t, err)
	assert.Contains(t, resp, "call mom")
	assert.Contains(t, resp, "2 hours")

	pending := s.List("1")
	require.Len(t, pending, 1)
	assert.Equal(t, "call mom", pending[0].Task)

	expected := time.Now().Add(2 * time.Hour)
	assert.WithinDuration(t, expected, pending[0].DueAt, 5*time.Second)
}

func TestSetReminderPhrasing(t *testing.T) {
	m, s := newReminderFixture()

	_, err := m.HandleText(context.Background(), userMsg("set a reminder for the standup in 15 minutes"))
	require.NoError(t, err)

	pending := s.List("1")
	require.Len(t, pending, 1)
	assert.Equal(t, "the standup", pending[0].Task)
}

func TestTriggersMatchBothPhrasings(t *testing.T) {
	m, _ := newReminderFixture()

	assert.True(t, m.Matches("Remind me to call mom in 2 hours"))
	assert.True(t, m.Matches("set a reminder for the standup in 15 minutes"))
	assert.False(t, m.Matches("tell me about black holes"))
}

func TestHandleTextIgnoresUnrelatedText(t *testing.T) {
	m, s := newReminderFixture()

	resp, err := m.HandleText(context.Background(), userMsg("tell me about black holes"))
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.Empty(t, s.List("1"))
}

func TestRemindCommand(t *testing.T) {
	m, s := newReminderFixture()
	ctx := context.Background()

	resp, err := m.remindCommand(ctx, userMsg("/remind 5 minutes check oven"), []string{"5", "minutes", "check", "oven"})
	require.NoError(t, err)
	assert.Contains(t, resp, "check oven")
	assert.Contains(t, resp, "5 minutes")
	require.Len(t, s.List("1"), 1)
}

func TestRemindCommandValidation(t *testing.T) {
	m, _ := newReminderFixture()
	ctx := context.Background()

	resp, err := m.remindCommand(ctx, userMsg("/remind"), nil)
	require.NoError(t, err)
	assert.Contains(t, resp, "Usage: /remind")

	resp, err = m.remindCommand(ctx, userMsg("/remind x y z"), []string{"soon", "minutes", "tea"})
	require.NoError(t, err)
	assert.Contains(t, resp, "valid number")

	resp, err = m.remindCommand(ctx, userMsg("/remind 5 fortnights tea"), []string{"5", "fortnights", "tea"})
	require.NoError(t, err)
	assert.Contains(t, resp, "don't understand the time unit")
}

func TestListAndClearCommands(t *testing.T) {
	m, _ := newReminderFixture()
	ctx := context.Background()
	msg := userMsg("/reminders")

	resp, err := m.listCommand(ctx, msg, nil)
	require.NoError(t, err)
	assert.Contains(t, resp, "don't have any active reminders")

	_, err = m.remindCommand(ctx, msg, []string{"1", "hour", "call", "mom"})
	require.NoError(t, err)

	resp, err = m.listCommand(ctx, msg, nil)
	require.NoError(t, err)
	assert.Contains(t, resp, "call mom")

	resp, err = m.clearCommand(ctx, msg, nil)
	require.NoError(t, err)
	assert.Contains(t, resp, "Cleared 1")

	resp, err = m.clearCommand(ctx, msg, nil)
	require.NoError(t, err)
	assert.Contains(t, resp, "don't have any active reminders to clear")
}

func TestParseUnitForms(t *testing.T) {
	tests := []struct {
		unit  string
		qty   int
		d     time.Duration
		label string
	}{
		{"minutes", 5, 5 * time.Minute, "minutes"},
		{"minute", 1, time.Minute, "minute"},
		{"min", 10, 10 * time.Minute, "minutes"},
		{"m", 2, 2 * time.Minute, "minutes"},
		{"hours", 2, 2 * time.Hour, "hours"},
		{"hr", 1, time.Hour, "hour"},
		{"h", 3, 3 * time.Hour, "hours"},
		{"days", 2, 48 * time.Hour, "days"},
		{"d", 1, 24 * time.Hour, "day"},
	}
	for _, tt := range tests {
		d, label, err := parseUnit(tt.qty, tt.unit)
		require.NoError(t, err, "unit %q", tt.unit)
		assert.Equal(t, tt.d, d, "unit %q", tt.unit)
		assert.Equal(t, tt.label, label, "unit %q", tt.unit)
	}

	_, _, err := parseUnit(1, "weeks")
	assert.Error(t, err)
}
