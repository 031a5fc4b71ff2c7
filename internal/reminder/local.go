package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/livecore/internal/models"
)

// LocalNotifier fires reminders in-process with timers.
type LocalNotifier struct {
	deliver func(models.ReminderJob)
	now     func() time.Time

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// NewLocalNotifier calls deliver on its own goroutine when a booked reminder is due.
func NewLocalNotifier(deliver func(models.ReminderJob)) *LocalNotifier {
	return &LocalNotifier{
		deliver: deliver,
		now:     time.Now,
		timers:  make(map[uuid.UUID]*time.Timer),
	}
}

func (n *LocalNotifier) Book(_ context.Context, job models.ReminderJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[job.ID]; ok {
		t.Stop()
	}
	n.timers[job.ID] = time.AfterFunc(job.FireAt.Sub(n.now()), func() { n.fire(job) })
	return nil
}

func (n *LocalNotifier) fire(job models.ReminderJob) {
	n.mu.Lock()
	_, active := n.timers[job.ID]
	delete(n.timers, job.ID)
	n.mu.Unlock()
	if active {
		n.deliver(job)
	}
}

func (n *LocalNotifier) Unbook(_ context.Context, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
	return nil
}

// Stop cancels every outstanding timer.
func (n *LocalNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}
