package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/QuickReach/QuickReach/internal/models"
	"github.com/QuickReach/QuickReach/internal/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyEscalation(ctx context.Context, inc models.Incident) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, inc.ID)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func pendingIncident(id string, createdAt time.Time) models.Incident {
	return models.Incident{
		ID:            id,
		Type:          models.IncidentTypeMedical,
		Status:        models.IncidentStatusPending,
		ReporterPhone: "+251911000000",
		Source:        models.SourceUSSD,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestEscalatesUnacknowledgedIncident(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-1", time.Now()))
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(20*time.Millisecond))
	defer s.Stop()

	s.Schedule("inc-1")
	time.Sleep(100 * time.Millisecond)

	if got := notifier.count(); got != 1 {
		t.Errorf("escalation count = %d, want exactly 1", got)
	}
}

func TestAcknowledgedIncidentIsNotEscalated(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-1", time.Now()))
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(50*time.Millisecond))
	defer s.Stop()

	s.Schedule("inc-1")
	if err := st.UpdateIncidentStatus("inc-1", models.IncidentStatusDispatched); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if got := notifier.count(); got != 0 {
		t.Errorf("escalation count = %d, want 0 for acknowledged incident", got)
	}
}

func TestCancelStopsTimer(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-1", time.Now()))
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(30*time.Millisecond))
	defer s.Stop()

	s.Schedule("inc-1")
	s.Cancel("inc-1")
	if got := s.Active(); got != 0 {
		t.Errorf("Active() after cancel = %d, want 0", got)
	}
	time.Sleep(80 * time.Millisecond)

	if got := notifier.count(); got != 0 {
		t.Errorf("escalation count = %d, want 0 after cancel", got)
	}
}

func TestStoreFailureAtFireTimeIsNonFatal(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(10*time.Millisecond))
	defer s.Stop()

	// Incident was never persisted, so the fire-time read fails.
	s.Schedule("inc-ghost")
	time.Sleep(60 * time.Millisecond)

	if got := notifier.count(); got != 0 {
		t.Errorf("escalation count = %d, want 0 on store failure", got)
	}
}

func TestRearmPendingRestoresTimers(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-recent", time.Now().Add(-10*time.Millisecond)))
	st.CreateIncident(pendingIncident("inc-overdue", time.Now().Add(-time.Minute)))
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(50*time.Millisecond))
	defer s.Stop()

	if err := s.RearmPending(); err != nil {
		t.Fatalf("RearmPending failed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	if got := notifier.count(); got != 2 {
		t.Errorf("escalation count = %d, want 2 (overdue fired immediately, recent after remainder)", got)
	}
}

// slowReadStore delays incident reads so overlapping fire paths stay in
// flight together, the way a real database round-trip would.
type slowReadStore struct {
	store.Store
	delay time.Duration
}

func (s *slowReadStore) GetIncident(id string) (*models.Incident, error) {
	time.Sleep(s.delay)
	return s.Store.GetIncident(id)
}

func TestConcurrentFirePathsNotifyOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-1", time.Now().Add(-time.Minute)))
	slow := &slowReadStore{Store: st, delay: 5 * time.Millisecond}
	notifier := &recordingNotifier{}
	s := NewScheduler(slow, notifier, WithWindow(20*time.Millisecond))
	defer s.Stop()

	// A timer firing and an overdue sweep can evaluate the same incident at
	// the same moment.
	var wg sync.WaitGroup
	for range [2]struct{}{} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fire("inc-1")
		}()
	}
	wg.Wait()

	if got := notifier.count(); got != 1 {
		t.Errorf("escalation count = %d, want exactly 1", got)
	}
}

func TestCancelDropsEscalationRecord(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-1", time.Now().Add(-time.Minute)))
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(20*time.Millisecond))
	defer s.Stop()

	s.fire("inc-1")
	if err := st.UpdateIncidentStatus("inc-1", models.IncidentStatusDispatched); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	s.Cancel("inc-1")

	s.mu.Lock()
	remaining := len(s.notified)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("escalation records after cancel = %d, want 0", remaining)
	}
}

func TestSweepOverdueFiresOnceOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	st.CreateIncident(pendingIncident("inc-old", time.Now().Add(-time.Minute)))
	notifier := &recordingNotifier{}
	s := NewScheduler(st, notifier, WithWindow(20*time.Millisecond))
	defer s.Stop()

	s.SweepOverdue()
	s.SweepOverdue()

	if got := notifier.count(); got != 1 {
		t.Errorf("escalation count after two sweeps = %d, want 1", got)
	}
}
