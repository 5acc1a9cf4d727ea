// Package reminder schedules time-delayed notifications back through the
// originating messaging platform. Reminders live in process memory only: a
// restart drops everything pending. That is a known limitation, not a bug.
package reminder

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/metrics"
)

// Reminder is one pending deferred notification.
type Reminder struct {
	ID             string
	UserID         string
	ConversationID string
	Platform       string
	Task           string
	DueAt          time.Time
	CreatedAt      time.Time
}

// Notifier delivers a fired reminder to its user.
type Notifier interface {
	SendReminder(platform, userID, text string) error
}

// Scheduler tracks per-user pending reminders and fires each one exactly
// once. Delivery is at-most-once: a failed send is logged, never retried.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string][]*Reminder // keyed by user ID
	notifier Notifier
	cron     *cron.Cron
	stopCh   chan struct{}
	logger   *slog.Logger
}

func NewScheduler(notifier Notifier) *Scheduler {
	s := &Scheduler{
		pending:  make(map[string][]*Reminder),
		notifier: notifier,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
		logger:   logging.WithComponent("reminder"),
	}
	s.cron.AddFunc("@every 1m", s.sweep)
	return s
}

// Start begins housekeeping. Reminder timers run regardless; Start only
// controls the periodic sweep.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts housekeeping and releases waiting timer goroutines without
// firing them.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	close(s.stopCh)
}

// AddHousekeeping registers an extra periodic job on the scheduler's cron,
// e.g. session pruning.
func (s *Scheduler) AddHousekeeping(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

// Schedule creates a reminder and starts its timer. Due times in the past
// fire immediately.
func (s *Scheduler) Schedule(userID, conversationID, platform, task string, dueAt time.Time) *Reminder {
	r := &Reminder{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Platform:       platform,
		Task:           task,
		DueAt:          dueAt,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.pending[userID] = append(s.pending[userID], r)
	count := s.countLocked()
	s.mu.Unlock()
	metrics.PendingReminders.Set(float64(count))

	delay := time.Until(dueAt)
	if delay < 0 {
		delay = 0
	}

	go s.wait(r, delay)

	s.logger.Info("scheduled reminder",
		"user_id", userID, "task", task, "due_at", dueAt.Format(time.RFC3339), "delay", delay.String())
	return r
}

func (s *Scheduler) wait(r *Reminder, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.fire(r)
	case <-s.stopCh:
	}
}

// fire removes the reminder and attempts one delivery. The still-pending
// check and the removal happen atomically, so ClearAll racing a due timer
// cannot double-deliver or leave a stuck entry.
func (s *Scheduler) fire(r *Reminder) {
	s.mu.Lock()
	if !s.removeLocked(r) {
		s.mu.Unlock()
		s.logger.Info("reminder no longer pending, skipping", "user_id", r.UserID, "task", r.Task)
		return
	}
	count := s.countLocked()
	s.mu.Unlock()
	metrics.PendingReminders.Set(float64(count))

	if err := s.notifier.SendReminder(r.Platform, r.UserID, r.Task); err != nil {
		metrics.RemindersDelivered.WithLabelValues("error").Inc()
		s.logger.Error("failed to deliver reminder",
			"user_id", r.UserID, "platform", r.Platform, "task", r.Task, "error", err)
		return
	}
	metrics.RemindersDelivered.WithLabelValues("ok").Inc()
	s.logger.Info("delivered reminder", "user_id", r.UserID, "task", r.Task)
}

func (s *Scheduler) removeLocked(r *Reminder) bool {
	list := s.pending[r.UserID]
	for i, p := range list {
		if p.ID == r.ID {
			s.pending[r.UserID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Scheduler) countLocked() int {
	n := 0
	for _, list := range s.pending {
		n += len(list)
	}
	return n
}

// PendingCount reports the number of undelivered reminders across all users.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

// List returns a user's pending reminders sorted by due time ascending.
func (s *Scheduler) List(userID string) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, 0, len(s.pending[userID]))
	for _, r := range s.pending[userID] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

// ClearAll drops every pending reminder for a user and returns how many were
// dropped. Timers already started will find their reminder gone and skip
// delivery.
func (s *Scheduler) ClearAll(userID string) int {
	s.mu.Lock()
	count := len(s.pending[userID])
	delete(s.pending, userID)
	total := s.countLocked()
	s.mu.Unlock()
	metrics.PendingReminders.Set(float64(total))
	if count > 0 {
		s.logger.Info("cleared reminders", "user_id", userID, "count", count)
	}
	return count
}

// sweep refreshes the pending gauge and drops empty user buckets.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	for user, list := range s.pending {
		if len(list) == 0 {
			delete(s.pending, user)
		}
	}
	count := s.countLocked()
	s.mu.Unlock()
	metrics.PendingReminders.Set(float64(count))
}
