// Package models defines the core data structures for QuickReach.
//
// It includes types for USSD sessions, incidents and hospitals, which are
// shared across modules.
package models

import (
	"errors"
	"time"
)

// SessionState identifies a node in the USSD dialogue graph.
type SessionState string

const (
	// StateStart is the entry state of every session.
	StateStart SessionState = "START"
	// StatePickType waits for the emergency type digit.
	StatePickType SessionState = "PICK_TYPE"
	// StatePickLocation waits for the location digit.
	StatePickLocation SessionState = "PICK_LOCATION"
	// StateConfirm waits for the final yes/no digit.
	StateConfirm SessionState = "CONFIRM"
)

// DataKey names a field in the accumulated session data.
type DataKey string

const (
	// DataKeyType holds the chosen emergency type.
	DataKeyType DataKey = "type"
	// DataKeyLocationName holds the chosen zone label.
	DataKeyLocationName DataKey = "locationName"
	// DataKeyFastPath marks whether the fast-path shortcut menu is active.
	DataKeyFastPath DataKey = "fastPath"
	// DataKeyPriorIncident holds the id of the caller's existing Pending incident.
	DataKeyPriorIncident DataKey = "priorIncidentId"
)

// Session holds per-caller conversational state between USSD turns.
type Session struct {
	ID        string             `json:"id"`
	State     SessionState       `json:"state"`
	Data      map[DataKey]string `json:"data"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// IncidentType classifies an emergency report.
type IncidentType string

const (
	IncidentTypeMedical IncidentType = "Medical"
	IncidentTypeFire    IncidentType = "Fire"
	IncidentTypePolice  IncidentType = "Police"
)

// IsValidIncidentType checks if the given incident type is supported.
func IsValidIncidentType(it IncidentType) bool {
	switch it {
	case IncidentTypeMedical, IncidentTypeFire, IncidentTypePolice:
		return true
	default:
		return false
	}
}

// IncidentStatus tracks an incident through its dispatch lifecycle.
type IncidentStatus string

const (
	// IncidentStatusPending means no responder has acknowledged the incident yet.
	IncidentStatusPending IncidentStatus = "Pending"
	// IncidentStatusDispatched means a dispatcher has acknowledged and sent help.
	IncidentStatusDispatched IncidentStatus = "Dispatched"
	// IncidentStatusResolved means the incident is closed.
	IncidentStatusResolved IncidentStatus = "Resolved"
	// IncidentStatusCollapsed means the report was merged into an earlier incident.
	IncidentStatusCollapsed IncidentStatus = "Collapsed"
)

// IsValidIncidentStatus checks if the given status is supported.
func IsValidIncidentStatus(st IncidentStatus) bool {
	switch st {
	case IncidentStatusPending, IncidentStatusDispatched, IncidentStatusResolved, IncidentStatusCollapsed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a status move is allowed. Transitions are
// monotonic: Pending -> Dispatched -> Resolved. Collapsed is terminal.
func (s IncidentStatus) CanTransitionTo(target IncidentStatus) bool {
	switch s {
	case IncidentStatusPending:
		return target == IncidentStatusDispatched || target == IncidentStatusResolved
	case IncidentStatusDispatched:
		return target == IncidentStatusResolved
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrIncidentNotFound      = errors.New("incident not found")
	ErrHospitalNotFound      = errors.New("hospital not found")
	ErrInvalidIncidentType   = errors.New("invalid incident type")
	ErrInvalidIncidentStatus = errors.New("invalid incident status")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrNoCapacity            = errors.New("no hospital has spare capacity")
)

// SourceUSSD tags incidents reported over the USSD channel.
const SourceUSSD = "USSD"

// Incident represents a single emergency report.
type Incident struct {
	ID               string         `json:"id"`
	Type             IncidentType   `json:"type"`
	Lat              float64        `json:"lat"`
	Lng              float64        `json:"lng"`
	Status           IncidentStatus `json:"status"`
	ReporterPhone    string         `json:"reporter_phone"`
	Source           string         `json:"source"`
	SessionID        string         `json:"session_id,omitempty"`
	ParentIncidentID string         `json:"parent_incident_id,omitempty"`
	HospitalID       int64          `json:"hospital_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ShortRef returns the truncated reference code embedded in USSD replies,
// e.g. "#QR-3f9a1".
func (i Incident) ShortRef() string {
	return ShortRef(i.ID)
}

// ShortRef builds the caller-facing reference code for an incident id.
func ShortRef(id string) string {
	if len(id) > 5 {
		id = id[:5]
	}
	return "#QR-" + id
}

// Hospital represents a responding facility with limited capacity.
type Hospital struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	CurrentCapacity int       `json:"current_capacity"`
	MaxCapacity     int       `json:"max_capacity"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasCapacity reports whether the facility can accept another incident.
func (h Hospital) HasCapacity() bool {
	return h.CurrentCapacity < h.MaxCapacity
}

// TurnRequest is one inbound USSD session turn as delivered by the telephony
// gateway. Text is the full accumulated digit history joined by "*", empty on
// the first turn.
type TurnRequest struct {
	SessionID   string `json:"sessionId"`
	ServiceCode string `json:"serviceCode,omitempty"`
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
}

// API Response types for consistent JSON responses

// APIStatus enumerates the status values used in API responses.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
