// Package store provides storage backends for QuickReach.
//
// This file implements a PostgreSQL-backed store for incidents and hospitals.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/QuickReach/QuickReach/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateIncident(inc models.Incident) error {
	_, err := s.db.Exec(`INSERT INTO incidents (`+incidentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inc.ID, inc.Type, inc.Lat, inc.Lng, inc.Status, inc.ReporterPhone, inc.Source,
		nilIfEmpty(inc.SessionID), nilIfEmpty(inc.ParentIncidentID), nilIfZero(inc.HospitalID),
		inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateIncident failed", "error", err, "id", inc.ID)
		return fmt.Errorf("failed to insert incident %s: %w", inc.ID, err)
	}
	slog.Debug("PostgresStore CreateIncident succeeded", "id", inc.ID, "status", inc.Status)
	return nil
}

func (s *PostgresStore) GetIncident(id string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrIncidentNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetIncident failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get incident %s: %w", id, err)
	}
	return &inc, nil
}

func (s *PostgresStore) GetIncidentBySession(sessionID string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`, sessionID)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIncidentBySession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get incident by session %s: %w", sessionID, err)
	}
	return &inc, nil
}

func (s *PostgresStore) FindPendingByReporter(phone string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE reporter_phone = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		phone, models.IncidentStatusPending)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindPendingByReporter failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to find pending incident for reporter: %w", err)
	}
	return &inc, nil
}

func (s *PostgresStore) FindNearbyPending(t models.IncidentType, since time.Time, lat, lng, box float64) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents
		WHERE type = $1 AND status = $2 AND created_at >= $3
		AND lat BETWEEN $4 AND $5 AND lng BETWEEN $6 AND $7
		ORDER BY created_at ASC LIMIT 1`,
		t, models.IncidentStatusPending, since, lat-box, lat+box, lng-box, lng+box)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindNearbyPending failed", "error", err, "type", t)
		return nil, fmt.Errorf("failed to find nearby pending incident: %w", err)
	}
	return &inc, nil
}

func (s *PostgresStore) UpdateIncidentStatus(id string, status models.IncidentStatus) error {
	if !models.IsValidIncidentStatus(status) {
		return models.ErrInvalidIncidentStatus
	}
	current, err := s.GetIncident(id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(status) {
		slog.Warn("PostgresStore UpdateIncidentStatus rejected", "id", id, "from", current.Status, "to", status)
		return models.ErrInvalidTransition
	}
	_, err = s.db.Exec(`UPDATE incidents SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateIncidentStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update incident %s status: %w", id, err)
	}
	slog.Info("PostgresStore UpdateIncidentStatus succeeded", "id", id, "from", current.Status, "to", status)
	return nil
}

func (s *PostgresStore) ListIncidents() ([]models.Incident, error) {
	return s.listIncidents(`SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListPendingIncidents() ([]models.Incident, error) {
	return s.listIncidents(`SELECT `+incidentColumns+` FROM incidents WHERE status = $1 ORDER BY created_at ASC`, models.IncidentStatusPending)
}

func (s *PostgresStore) listIncidents(query string, args ...interface{}) ([]models.Incident, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore listIncidents query failed", "error", err)
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			slog.Error("PostgresStore listIncidents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incident rows: %w", err)
	}
	return incidents, nil
}

func (s *PostgresStore) ListHospitals() ([]models.Hospital, error) {
	rows, err := s.db.Query(`SELECT ` + hospitalColumns + ` FROM hospitals ORDER BY id ASC`)
	if err != nil {
		slog.Error("PostgresStore ListHospitals query failed", "error", err)
		return nil, fmt.Errorf("failed to query hospitals: %w", err)
	}
	defer rows.Close()

	var hospitals []models.Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		hospitals = append(hospitals, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hospital rows: %w", err)
	}
	return hospitals, nil
}

func (s *PostgresStore) GetHospital(id int64) (*models.Hospital, error) {
	row := s.db.QueryRow(`SELECT `+hospitalColumns+` FROM hospitals WHERE id = $1`, id)
	h, err := scanHospital(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrHospitalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ReserveHospital walks hospitals in registration order and claims the first
// with spare capacity. The guarded UPDATE keeps the increment atomic even when
// another process races for the same slot.
func (s *PostgresStore) ReserveHospital() (*models.Hospital, error) {
	hospitals, err := s.ListHospitals()
	if err != nil {
		return nil, err
	}
	for _, h := range hospitals {
		if !h.HasCapacity() {
			continue
		}
		res, err := s.db.Exec(`UPDATE hospitals SET current_capacity = current_capacity + 1 WHERE id = $1 AND current_capacity < max_capacity`, h.ID)
		if err != nil {
			slog.Error("PostgresStore ReserveHospital update failed", "error", err, "hospitalID", h.ID)
			return nil, fmt.Errorf("failed to reserve hospital %d: %w", h.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read reservation result: %w", err)
		}
		if affected == 1 {
			h.CurrentCapacity++
			slog.Debug("PostgresStore ReserveHospital succeeded", "hospitalID", h.ID, "name", h.Name)
			return &h, nil
		}
		// Lost the race for this facility; try the next one.
	}
	slog.Warn("PostgresStore ReserveHospital: no facility with spare capacity")
	return nil, models.ErrNoCapacity
}

func (s *PostgresStore) ReleaseHospital(id int64) error {
	_, err := s.db.Exec(`UPDATE hospitals SET current_capacity = current_capacity - 1 WHERE id = $1 AND current_capacity > 0`, id)
	if err != nil {
		slog.Error("PostgresStore ReleaseHospital failed", "error", err, "hospitalID", id)
		return fmt.Errorf("failed to release hospital %d: %w", id, err)
	}
	slog.Debug("PostgresStore ReleaseHospital succeeded", "hospitalID", id)
	return nil
}

func (s *PostgresStore) SeedHospitals(hospitals []models.Hospital) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM hospitals`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count hospitals: %w", err)
	}
	if count > 0 {
		slog.Debug("PostgresStore SeedHospitals skipped, table not empty", "count", count)
		return nil
	}
	for _, h := range hospitals {
		_, err := s.db.Exec(`INSERT INTO hospitals (name, lat, lng, current_capacity, max_capacity, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			h.Name, h.Lat, h.Lng, h.CurrentCapacity, h.MaxCapacity, time.Now())
		if err != nil {
			slog.Error("PostgresStore SeedHospitals insert failed", "error", err, "name", h.Name)
			return fmt.Errorf("failed to seed hospital %s: %w", h.Name, err)
		}
	}
	slog.Info("PostgresStore SeedHospitals succeeded", "count", len(hospitals))
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
