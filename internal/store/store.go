// Package store provides storage backends for QuickReach.
//
// It includes an in-memory store for tests and development plus persistent
// SQLite and PostgreSQL backends for incidents and hospitals.
package store

import (
	"time"

	"github.com/QuickReach/QuickReach/internal/models"
)

// Store defines the persistence interface consumed by the intake engine, the
// escalation scheduler and the API layer.
type Store interface {
	// CreateIncident persists a new incident record.
	CreateIncident(inc models.Incident) error

	// GetIncident retrieves an incident by id. Returns models.ErrIncidentNotFound
	// if no record exists.
	GetIncident(id string) (*models.Incident, error)

	// GetIncidentBySession retrieves the most recent incident originating from
	// the given USSD session, or nil if none exists. Used for retransmission
	// idempotency.
	GetIncidentBySession(sessionID string) (*models.Incident, error)

	// FindPendingByReporter retrieves the caller's most recent Pending
	// incident, or nil if none exists. Used for the fast-path menu.
	FindPendingByReporter(phone string) (*models.Incident, error)

	// FindNearbyPending retrieves the earliest Pending incident of the given
	// type created at or after since whose coordinates fall within +/-box
	// degrees of (lat, lng), or nil if none exists. Used for collapsing.
	FindNearbyPending(t models.IncidentType, since time.Time, lat, lng, box float64) (*models.Incident, error)

	// UpdateIncidentStatus applies a status transition, enforcing monotonic
	// Pending -> Dispatched -> Resolved with Collapsed terminal. Returns
	// models.ErrInvalidTransition on a disallowed move.
	UpdateIncidentStatus(id string, status models.IncidentStatus) error

	// ListIncidents returns all incidents, newest first.
	ListIncidents() ([]models.Incident, error)

	// ListPendingIncidents returns all Pending incidents, oldest first.
	ListPendingIncidents() ([]models.Incident, error)

	// ListHospitals returns all hospitals in registration order.
	ListHospitals() ([]models.Hospital, error)

	// GetHospital retrieves a hospital by id. Returns models.ErrHospitalNotFound
	// if no record exists.
	GetHospital(id int64) (*models.Hospital, error)

	// ReserveHospital picks the earliest-registered hospital with spare
	// capacity and increments its current capacity with a guarded atomic
	// update. Returns models.ErrNoCapacity when every facility is full.
	ReserveHospital() (*models.Hospital, error)

	// ReleaseHospital decrements a hospital's current capacity, flooring at
	// zero. Used when an incident resolves or an insert is rolled back.
	ReleaseHospital(id int64) error

	// SeedHospitals inserts the given hospitals if the hospitals table is
	// empty. A no-op otherwise.
	SeedHospitals(hospitals []models.Hospital) error

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for persistent store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the database connection string (file path for SQLite).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}
