// Package store provides storage backends for QuickReach.
//
// This file implements an SQLite-backed store for incidents and hospitals.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/QuickReach/QuickReach/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateIncident(inc models.Incident) error {
	_, err := s.db.Exec(`INSERT INTO incidents (`+incidentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Type, inc.Lat, inc.Lng, inc.Status, inc.ReporterPhone, inc.Source,
		nilIfEmpty(inc.SessionID), nilIfEmpty(inc.ParentIncidentID), nilIfZero(inc.HospitalID),
		inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateIncident failed", "error", err, "id", inc.ID)
		return fmt.Errorf("failed to insert incident %s: %w", inc.ID, err)
	}
	slog.Debug("SQLiteStore CreateIncident succeeded", "id", inc.ID, "status", inc.Status)
	return nil
}

func (s *SQLiteStore) GetIncident(id string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrIncidentNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetIncident failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get incident %s: %w", id, err)
	}
	return &inc, nil
}

func (s *SQLiteStore) GetIncidentBySession(sessionID string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIncidentBySession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get incident by session %s: %w", sessionID, err)
	}
	return &inc, nil
}

func (s *SQLiteStore) FindPendingByReporter(phone string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE reporter_phone = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		phone, models.IncidentStatusPending)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindPendingByReporter failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to find pending incident for reporter: %w", err)
	}
	return &inc, nil
}

func (s *SQLiteStore) FindNearbyPending(t models.IncidentType, since time.Time, lat, lng, box float64) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT `+incidentColumns+` FROM incidents
		WHERE type = ? AND status = ? AND created_at >= ?
		AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
		ORDER BY created_at ASC LIMIT 1`,
		t, models.IncidentStatusPending, since, lat-box, lat+box, lng-box, lng+box)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindNearbyPending failed", "error", err, "type", t)
		return nil, fmt.Errorf("failed to find nearby pending incident: %w", err)
	}
	return &inc, nil
}

func (s *SQLiteStore) UpdateIncidentStatus(id string, status models.IncidentStatus) error {
	if !models.IsValidIncidentStatus(status) {
		return models.ErrInvalidIncidentStatus
	}
	current, err := s.GetIncident(id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(status) {
		slog.Warn("SQLiteStore UpdateIncidentStatus rejected", "id", id, "from", current.Status, "to", status)
		return models.ErrInvalidTransition
	}
	_, err = s.db.Exec(`UPDATE incidents SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateIncidentStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update incident %s status: %w", id, err)
	}
	slog.Info("SQLiteStore UpdateIncidentStatus succeeded", "id", id, "from", current.Status, "to", status)
	return nil
}

func (s *SQLiteStore) ListIncidents() ([]models.Incident, error) {
	return s.listIncidents(`SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC`)
}

func (s *SQLiteStore) ListPendingIncidents() ([]models.Incident, error) {
	return s.listIncidents(`SELECT `+incidentColumns+` FROM incidents WHERE status = ? ORDER BY created_at ASC`, models.IncidentStatusPending)
}

func (s *SQLiteStore) listIncidents(query string, args ...interface{}) ([]models.Incident, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore listIncidents query failed", "error", err)
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			slog.Error("SQLiteStore listIncidents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incident rows: %w", err)
	}
	return incidents, nil
}

func (s *SQLiteStore) ListHospitals() ([]models.Hospital, error) {
	rows, err := s.db.Query(`SELECT ` + hospitalColumns + ` FROM hospitals ORDER BY id ASC`)
	if err != nil {
		slog.Error("SQLiteStore ListHospitals query failed", "error", err)
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

func (s *SQLiteStore) GetHospital(id int64) (*models.Hospital, error) {
	row := s.db.QueryRow(`SELECT `+hospitalColumns+` FROM hospitals WHERE id = ?`, id)
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
func (s *SQLiteStore) ReserveHospital() (*models.Hospital, error) {
	hospitals, err := s.ListHospitals()
	if err != nil {
		return nil, err
	}
	for _, h := range hospitals {
		if !h.HasCapacity() {
			continue
		}
		res, err := s.db.Exec(`UPDATE hospitals SET current_capacity = current_capacity + 1 WHERE id = ? AND current_capacity < max_capacity`, h.ID)
		if err != nil {
			slog.Error("SQLiteStore ReserveHospital update failed", "error", err, "hospitalID", h.ID)
			return nil, fmt.Errorf("failed to reserve hospital %d: %w", h.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read reservation result: %w", err)
		}
		if affected == 1 {
			h.CurrentCapacity++
			slog.Debug("SQLiteStore ReserveHospital succeeded", "hospitalID", h.ID, "name", h.Name)
			return &h, nil
		}
		// Lost the race for this facility; try the next one.
	}
	slog.Warn("SQLiteStore ReserveHospital: no facility with spare capacity")
	return nil, models.ErrNoCapacity
}

func (s *SQLiteStore) ReleaseHospital(id int64) error {
	_, err := s.db.Exec(`UPDATE hospitals SET current_capacity = current_capacity - 1 WHERE id = ? AND current_capacity > 0`, id)
	if err != nil {
		slog.Error("SQLiteStore ReleaseHospital failed", "error", err, "hospitalID", id)
		return fmt.Errorf("failed to release hospital %d: %w", id, err)
	}
	slog.Debug("SQLiteStore ReleaseHospital succeeded", "hospitalID", id)
	return nil
}

func (s *SQLiteStore) SeedHospitals(hospitals []models.Hospital) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM hospitals`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count hospitals: %w", err)
	}
	if count > 0 {
		slog.Debug("SQLiteStore SeedHospitals skipped, table not empty", "count", count)
		return nil
	}
	for _, h := range hospitals {
		_, err := s.db.Exec(`INSERT INTO hospitals (name, lat, lng, current_capacity, max_capacity, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			h.Name, h.Lat, h.Lng, h.CurrentCapacity, h.MaxCapacity, time.Now())
		if err != nil {
			slog.Error("SQLiteStore SeedHospitals insert failed", "error", err, "name", h.Name)
			return fmt.Errorf("failed to seed hospital %s: %w", h.Name, err)
		}
	}
	slog.Info("SQLiteStore SeedHospitals succeeded", "count", len(hospitals))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
