package store

import (
	"database/sql"
	"fmt"

	"github.com/QuickReach/QuickReach/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZero returns nil if n is zero, otherwise returns n.
// Used for the nullable hospital_id column.
func nilIfZero(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const incidentColumns = `id, type, lat, lng, status, reporter_phone, source, session_id, parent_incident_id, hospital_id, created_at, updated_at`

// scanIncident scans an Incident from a row.
func scanIncident(row rowScanner) (models.Incident, error) {
	var inc models.Incident
	var sessionID, parentID sql.NullString
	var hospitalID sql.NullInt64
	err := row.Scan(
		&inc.ID, &inc.Type, &inc.Lat, &inc.Lng, &inc.Status,
		&inc.ReporterPhone, &inc.Source, &sessionID, &parentID, &hospitalID,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return inc, err
	}
	inc.SessionID = sessionID.String
	inc.ParentIncidentID = parentID.String
	inc.HospitalID = hospitalID.Int64
	return inc, nil
}

const hospitalColumns = `id, name, lat, lng, current_capacity, max_capacity, created_at`

// scanHospital scans a Hospital from a row.
func scanHospital(row rowScanner) (models.Hospital, error) {
	var h models.Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Lat, &h.Lng, &h.CurrentCapacity, &h.MaxCapacity, &h.CreatedAt)
	if err != nil {
		return h, fmt.Errorf("scan hospital failed: %w", err)
	}
	return h, nil
}
