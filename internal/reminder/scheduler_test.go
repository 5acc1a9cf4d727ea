package reminder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	delivered []string
	ch        chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan string, 16)}
}

func (n *recordingNotifier) SendReminder(platform, userID, text string) error {
	n.mu.Lock()
	n.delivered = append(n.delivered, text)
	n.mu.Unlock()
	n.ch <- text
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.delivered)
}

func TestScheduleAndList(t *testing.T) {
	s := NewScheduler(newRecordingNotifier())

	later := time.Now().Add(time.Hour)
	sooner := time.Now().Add(time.Minute)
	s.Schedule("u1", "telegram:u1", "telegram", "call mom", later)
	s.Schedule("u1", "telegram:u1", "telegram", "check oven", sooner)
	s.Schedule("u2", "telegram:u2", "telegram", "other user", sooner)

	list := s.List("u1")
	require.Len(t, list, 2)
	assert.Equal(t, "check oven", list[0].Task, "list is sorted by due time")
	assert.Equal(t, "call mom", list[1].Task)
}

func TestPastDueFiresImmediately(t *testing.T) {
	n := newRecordingNotifier()
	s := NewScheduler(n)

	s.Schedule("u1", "telegram:u1", "telegram", "overdue", time.Now().Add(-time.Minute))

	select {
	case task := <-n.ch:
		assert.Equal(t, "overdue", task)
	case <-time.After(2 * time.Second):
		t.Fatal("overdue reminder never fired")
	}
	assert.Empty(t, s.List("u1"), "fired reminder is removed from the pending list")
}

func TestClearAllPreventsDelivery(t *testing.T) {
	n := newRecordingNotifier()
	s := NewScheduler(n)

	s.Schedule("u1", "telegram:u1", "telegram", "soon", time.Now().Add(50*time.Millisecond))
	cleared := s.ClearAll("u1")
	assert.Equal(t, 1, cleared)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, n.count(), "cleared reminder must not deliver")
}

func TestClearAllEmpty(t *testing.T) {
	s := NewScheduler(newRecordingNotifier())
	assert.Equal(t, 0, s.ClearAll("nobody"))
}

func TestFireRemovesEvenOnDeliveryFailure(t *testing.T) {
	s := NewScheduler(failingNotifier{})

	s.Schedule("u1", "telegram:u1", "telegram", "doomed", time.Now().Add(-time.Second))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.List("u1")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reminder stuck in pending list after delivery failure")
}

type failingNotifier struct{}

func (failingNotifier) SendReminder(platform, userID, text string) error {
	return assert.AnError
}
