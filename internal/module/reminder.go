package module

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/reminder"
)

const (
	remindTrigger      = `remind\s+(?:me\s+)?(?:to\s+)?(.+?)\s+in\s+(\d+)\s+(\w+)`
	setReminderTrigger = `set\s+(?:a\s+)?reminder\s+(?:for\s+)?(.+?)\s+in\s+(\d+)\s+(\w+)`
)

var (
	remindPattern      = regexp.MustCompile(`(?i)` + remindTrigger)
	setReminderPattern = regexp.MustCompile(`(?i)` + setReminderTrigger)
)

// ReminderModule lets users schedule reminders, either through slash
// commands or natural-language phrasing.
type ReminderModule struct {
	Base
	scheduler *reminder.Scheduler
}

func NewReminderModule(scheduler *reminder.Scheduler) *ReminderModule {
	m := &ReminderModule{
		Base:      NewBase("reminder", "Reminder", "Set and manage reminders for future tasks."),
		scheduler: scheduler,
	}

	m.RegisterCommand(Command{
		Name:        "remind",
		Description: "Set a reminder for a future task",
		Usage:       "/remind <time> <unit> <message>",
		Examples: []string{
			"/remind 5 minutes check oven",
			"/remind 1 hour call mom",
			"/remind 2 days review document",
		},
		Handler: m.remindCommand,
	})
	m.RegisterCommand(Command{
		Name:        "reminders",
		Description: "List all your active reminders",
		Usage:       "/reminders",
		Handler:     m.listCommand,
	})
	m.RegisterCommand(Command{
		Name:        "clear_reminders",
		Description: "Clear all your active reminders",
		Usage:       "/clear_reminders",
		Handler:     m.clearCommand,
	})

	m.RegisterTrigger(remindTrigger)
	m.RegisterTrigger(setReminderTrigger)

	return m
}

// HandleText picks reminder requests out of free text.
func (m *ReminderModule) HandleText(_ context.Context, msg message.Message) (string, error) {
	if msg.Role != message.RoleUser {
		return "", nil
	}
	text := strings.TrimSpace(msg.Content)

	for _, p := range []*regexp.Regexp{remindPattern, setReminderPattern} {
		if match := p.FindStringSubmatch(text); match != nil {
			quantity, err := strconv.Atoi(match[2])
			if err != nil {
				continue
			}
			return m.schedule(msg, strings.TrimSpace(match[1]), quantity, match[3])
		}
	}
	return "", nil
}

func (m *ReminderModule) remindCommand(_ context.Context, msg message.Message, args []string) (string, error) {
	if len(args) < 3 {
		return "Please specify a time, unit, and message for your reminder.\n\n" +
			"Usage: /remind <time> <unit> <message>\n\n" +
			"Examples:\n" +
			"/remind 5 minutes check oven\n" +
			"/remind 1 hour call mom\n" +
			"/remind 2 days review document", nil
	}
	quantity, err := strconv.Atoi(args[0])
	if err != nil {
		return "Please specify a valid number for the time.", nil
	}
	task := strings.Join(args[2:], " ")
	return m.schedule(msg, task, quantity, args[1])
}

func (m *ReminderModule) schedule(msg message.Message, task string, quantity int, unit string) (string, error) {
	d, label, err := parseUnit(quantity, unit)
	if err != nil {
		return fmt.Sprintf("Sorry, I don't understand the time unit %q. Please use minutes, hours, or days.", unit), nil
	}

	dueAt := time.Now().Add(d)
	m.scheduler.Schedule(msg.UserID(), msg.ConversationID(), msg.Platform(), task, dueAt)

	return fmt.Sprintf("I'll remind you to %s in %d %s (at %s).",
		task, quantity, label, dueAt.Format("2006-01-02 15:04:05")), nil
}

func (m *ReminderModule) listCommand(_ context.Context, msg message.Message, _ []string) (string, error) {
	pending := m.scheduler.List(msg.UserID())
	if len(pending) == 0 {
		return "You don't have any active reminders.", nil
	}

	var sb strings.Builder
	sb.WriteString("Your active reminders:\n\n")
	for i, r := range pending {
		fmt.Fprintf(&sb, "%d. %s (at %s)\n", i+1, r.Task, r.DueAt.Format("2006-01-02 15:04:05"))
	}
	return sb.String(), nil
}

func (m *ReminderModule) clearCommand(_ context.Context, msg message.Message, _ []string) (string, error) {
	count := m.scheduler.ClearAll(msg.UserID())
	if count == 0 {
		return "You don't have any active reminders to clear.", nil
	}
	return fmt.Sprintf("Cleared %d active reminders.", count), nil
}

// parseUnit converts a quantity and unit word into a duration and a label
// for the confirmation text. Singular, plural and shorthand forms all work.
func parseUnit(quantity int, unit string) (time.Duration, string, error) {
	unit = strings.ToLower(unit)
	unit = strings.TrimSuffix(unit, "s")

	var d time.Duration
	var label string
	switch unit {
	case "minute", "min", "m":
		d = time.Duration(quantity) * time.Minute
		label = "minute"
	case "hour", "hr", "h":
		d = time.Duration(quantity) * time.Hour
		label = "hour"
	case "day", "d":
		d = time.Duration(quantity) * 24 * time.Hour
		label = "day"
	default:
		return 0, "", fmt.Errorf("unknown time unit %q", unit)
	}
	if quantity != 1 {
		label += "s"
	}
	return d, label, nil
}
