// Package escalation arms per-incident acknowledgment timers.
//
// Every persisted primary incident gets a one-shot timer; when it fires the
// incident status is re-read and an alert is raised only if the incident is
// still Pending. Timers are keyed by incident id so the dispatcher path can
// cancel them early, though the fire-time re-check alone is enough to keep a
// stale timer inert.
package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/QuickReach/QuickReach/internal/models"
	"github.com/QuickReach/QuickReach/internal/store"
)

// DefaultWindow is the grace period before an unacknowledged incident is
// escalated.
const DefaultWindow = 60 * time.Second

// Notifier delivers escalation alerts to the command channel.
type Notifier interface {
	NotifyEscalation(ctx context.Context, inc models.Incident) error
}

// Scheduler tracks one pending acknowledgment timer per incident.
type Scheduler struct {
	store    store.Store
	notifier Notifier
	window   time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	notified map[string]struct{}
}

// Option defines a configuration option for the Scheduler.
type Option func(*Scheduler)

// WithWindow overrides the default acknowledgment window.
func WithWindow(window time.Duration) Option {
	return func(s *Scheduler) { s.window = window }
}

// NewScheduler creates an escalation scheduler over the given store and notifier.
func NewScheduler(st store.Store, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		notifier: notifier,
		window:   DefaultWindow,
		timers:   make(map[string]*time.Timer),
		notified: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("escalation.NewScheduler created", "window", s.window)
	return s
}

// Schedule arms the acknowledgment timer for a newly created incident.
// Scheduling the same incident twice replaces the previous timer.
func (s *Scheduler) Schedule(incidentID string) {
	s.scheduleAfter(incidentID, s.window)
}

func (s *Scheduler) scheduleAfter(incidentID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[incidentID]; ok {
		prev.Stop()
	}
	s.timers[incidentID] = time.AfterFunc(delay, func() {
		s.fire(incidentID)
	})
	slog.Debug("escalation.Scheduler armed timer", "incidentID", incidentID, "delay", delay)
}

// Cancel stops the timer for an incident, if one is armed.
func (s *Scheduler) Cancel(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[incidentID]; ok {
		t.Stop()
		delete(s.timers, incidentID)
		slog.Debug("escalation.Scheduler cancelled timer", "incidentID", incidentID)
	}
	// The incident is leaving Pending, so its escalation record is no longer
	// needed to suppress sweep re-fires.
	delete(s.notified, incidentID)
}

// Stop cancels all armed timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	slog.Info("escalation.Scheduler stopped all timers")
}

// Active returns the number of armed timers. Used in tests.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fire re-reads the incident and raises an alert if it is still Pending.
// A store failure here is logged and not retried.
func (s *Scheduler) fire(incidentID string) {
	s.mu.Lock()
	delete(s.timers, incidentID)
	if _, done := s.notified[incidentID]; done {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	inc, err := s.store.GetIncident(incidentID)
	if err != nil {
		slog.Warn("escalation.Scheduler fire check failed, not retried", "incidentID", incidentID, "error", err)
		return
	}
	if inc.Status != models.IncidentStatusPending {
		slog.Debug("escalation.Scheduler timer inert, status moved on", "incidentID", incidentID, "status", inc.Status)
		return
	}

	// Check-and-set must be one critical section: a timer and a sweep can
	// both reach this point for the same incident, and only one may notify.
	s.mu.Lock()
	if _, done := s.notified[incidentID]; done {
		s.mu.Unlock()
		return
	}
	s.notified[incidentID] = struct{}{}
	s.mu.Unlock()

	slog.Warn("escalation: incident not acknowledged within window, alerting command center",
		"incidentID", incidentID, "type", inc.Type, "window", s.window)
	if err := s.notifier.NotifyEscalation(context.Background(), *inc); err != nil {
		slog.Error("escalation.Scheduler notification failed", "incidentID", incidentID, "error", err)
	}
}

// RearmPending restores timers for Pending incidents found at startup.
// Incidents already past their window are checked immediately.
func (s *Scheduler) RearmPending() error {
	pending, err := s.store.ListPendingIncidents()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, inc := range pending {
		remaining := s.window - now.Sub(inc.CreatedAt)
		if remaining <= 0 {
			go s.fire(inc.ID)
			continue
		}
		s.scheduleAfter(inc.ID, remaining)
	}
	slog.Info("escalation.Scheduler re-armed pending incidents", "count", len(pending))
	return nil
}

// SweepOverdue checks for Pending incidents past their window that have no
// armed timer and escalates them. Run periodically as a catch-up against
// timers lost to process hiccups.
func (s *Scheduler) SweepOverdue() {
	pending, err := s.store.ListPendingIncidents()
	if err != nil {
		slog.Warn("escalation.Scheduler sweep failed", "error", err)
		return
	}
	cutoff := time.Now().Add(-s.window)
	for _, inc := range pending {
		if inc.CreatedAt.After(cutoff) {
			continue
		}
		s.mu.Lock()
		_, armed := s.timers[inc.ID]
		s.mu.Unlock()
		if armed {
			continue
		}
		s.fire(inc.ID)
	}
}
