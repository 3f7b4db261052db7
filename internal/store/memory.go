// Package store provides storage backends for QuickReach.
//
// This file implements an in-memory store used in tests and local development.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/QuickReach/QuickReach/internal/models"
)

// InMemoryStore is a mutex-guarded in-memory implementation of Store.
type InMemoryStore struct {
	mu        sync.Mutex
	incidents map[string]models.Incident
	hospitals []models.Hospital
	nextID    int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		incidents: make(map[string]models.Incident),
	}
}

func (s *InMemoryStore) CreateIncident(inc models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = inc
	slog.Debug("InMemoryStore CreateIncident succeeded", "id", inc.ID, "status", inc.Status)
	return nil
}

func (s *InMemoryStore) GetIncident(id string) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, models.ErrIncidentNotFound
	}
	return &inc, nil
}

func (s *InMemoryStore) GetIncidentBySession(sessionID string) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Incident
	for _, inc := range s.incidents {
		inc := inc
		if inc.SessionID != sessionID {
			continue
		}
		if found == nil || inc.CreatedAt.After(found.CreatedAt) {
			found = &inc
		}
	}
	return found, nil
}

func (s *InMemoryStore) FindPendingByReporter(phone string) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Incident
	for _, inc := range s.incidents {
		inc := inc
		if inc.ReporterPhone != phone || inc.Status != models.IncidentStatusPending {
			continue
		}
		if found == nil || inc.CreatedAt.After(found.CreatedAt) {
			found = &inc
		}
	}
	return found, nil
}

func (s *InMemoryStore) FindNearbyPending(t models.IncidentType, since time.Time, lat, lng, box float64) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Incident
	for _, inc := range s.incidents {
		inc := inc
		if inc.Type != t || inc.Status != models.IncidentStatusPending {
			continue
		}
		if inc.CreatedAt.Before(since) {
			continue
		}
		if inc.Lat < lat-box || inc.Lat > lat+box || inc.Lng < lng-box || inc.Lng > lng+box {
			continue
		}
		if found == nil || inc.CreatedAt.Before(found.CreatedAt) {
			found = &inc
		}
	}
	return found, nil
}

func (s *InMemoryStore) UpdateIncidentStatus(id string, status models.IncidentStatus) error {
	if !models.IsValidIncidentStatus(status) {
		return models.ErrInvalidIncidentStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return models.ErrIncidentNotFound
	}
	if !inc.Status.CanTransitionTo(status) {
		return models.ErrInvalidTransition
	}
	inc.Status = status
	inc.UpdatedAt = time.Now()
	s.incidents[id] = inc
	return nil
}

func (s *InMemoryStore) ListIncidents() ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListPendingIncidents() ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Incident
	for _, inc := range s.incidents {
		if inc.Status == models.IncidentStatusPending {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListHospitals() ([]models.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Hospital, len(s.hospitals))
	copy(out, s.hospitals)
	return out, nil
}

func (s *InMemoryStore) GetHospital(id int64) (*models.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hospitals {
		if h.ID == id {
			h := h
			return &h, nil
		}
	}
	return nil, models.ErrHospitalNotFound
}

func (s *InMemoryStore) ReserveHospital() (*models.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.hospitals {
		if s.hospitals[i].HasCapacity() {
			s.hospitals[i].CurrentCapacity++
			h := s.hospitals[i]
			return &h, nil
		}
	}
	return nil, models.ErrNoCapacity
}

func (s *InMemoryStore) ReleaseHospital(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.hospitals {
		if s.hospitals[i].ID == id {
			if s.hospitals[i].CurrentCapacity > 0 {
				s.hospitals[i].CurrentCapacity--
			}
			return nil
		}
	}
	return models.ErrHospitalNotFound
}

func (s *InMemoryStore) SeedHospitals(hospitals []models.Hospital) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.hospitals) > 0 {
		return nil
	}
	now := time.Now()
	for _, h := range hospitals {
		s.nextID++
		h.ID = s.nextID
		h.CreatedAt = now
		s.hospitals = append(s.hospitals, h)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
