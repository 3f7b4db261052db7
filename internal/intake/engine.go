// Package intake turns a confirmed USSD report into an incident record.
//
// The engine runs a short pipeline: retransmission idempotency, static zone
// geocoding, collapsing of spatially and temporally clustered reports,
// capacity-aware facility assignment, persistence and escalation arming.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/QuickReach/QuickReach/internal/models"
	"github.com/QuickReach/QuickReach/internal/store"
)

// Collapsing parameters: reports of the same type within this window and
// bounding box are judged to be the same real-world event.
const (
	// DefaultCollapseWindow is how far back the dedup search looks.
	DefaultCollapseWindow = 10 * time.Minute
	// DefaultCollapseBox is the half-width of the dedup bounding box in
	// degrees, roughly 500m.
	DefaultCollapseBox = 0.005
)

// Facility names returned when no concrete hospital applies.
const (
	// FacilityProcessing is returned for an idempotent repeat of an already
	// handled confirmation.
	FacilityProcessing = "our dispatch center"
	// FacilityMerged is returned when the report collapsed into an active
	// incident that already has a response underway.
	FacilityMerged = "teams already responding in your area"
	// FacilityFallback is returned when every hospital is at capacity.
	FacilityFallback = "the nearest available responder"
)

// Report carries the accumulated dialogue data for one confirmed emergency.
type Report struct {
	Type         models.IncidentType
	LocationName string
	PhoneNumber  string
	SessionID    string
}

// Result is what the dialogue embeds in its terminal reply.
type Result struct {
	IncidentID   string
	FacilityName string
}

// EscalationScheduler arms the acknowledgment timer for a new incident.
type EscalationScheduler interface {
	Schedule(incidentID string)
}

// Engine implements the incident intake pipeline.
type Engine struct {
	store       store.Store
	escalations EscalationScheduler
	window      time.Duration
	box         float64

	// mu serializes the collapse-check / reserve / insert sequence so two
	// concurrent confirmations in the same micro-region cannot both become
	// primaries or double-reserve a facility slot.
	mu sync.Mutex
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithCollapseWindow overrides the dedup time window.
func WithCollapseWindow(window time.Duration) Option {
	return func(e *Engine) { e.window = window }
}

// WithCollapseBox overrides the dedup bounding-box half-width in degrees.
func WithCollapseBox(box float64) Option {
	return func(e *Engine) { e.box = box }
}

// NewEngine creates an intake engine over the given store and escalation scheduler.
func NewEngine(st store.Store, escalations EscalationScheduler, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		escalations: escalations,
		window:      DefaultCollapseWindow,
		box:         DefaultCollapseBox,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit runs the intake pipeline for one confirmed report.
func (e *Engine) Submit(ctx context.Context, r Report) (Result, error) {
	if !models.IsValidIncidentType(r.Type) {
		return Result{}, fmt.Errorf("intake: %w: %q", models.ErrInvalidIncidentType, r.Type)
	}

	// Idempotency: the gateway may retransmit a confirmed turn. An incident
	// already recorded for this session is a successful repeat, not an error.
	if r.SessionID != "" {
		existing, err := e.store.GetIncidentBySession(r.SessionID)
		if err != nil {
			return Result{}, fmt.Errorf("intake: idempotency check failed: %w", err)
		}
		if existing != nil {
			slog.Info("intake.Engine detected retransmission", "sessionID", r.SessionID, "incidentID", existing.ID)
			return Result{IncidentID: existing.ID, FacilityName: FacilityProcessing}, nil
		}
	}

	lat, lng := resolveZone(r.LocationName)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Collapsing: merge into an active incident of the same type reported
	// nearby within the window. Collapsed records never get a facility or an
	// escalation timer.
	parent, err := e.store.FindNearbyPending(r.Type, time.Now().Add(-e.window), lat, lng, e.box)
	if err != nil {
		return Result{}, fmt.Errorf("intake: collapse check failed: %w", err)
	}
	now := time.Now()
	if parent != nil {
		collapsed := models.Incident{
			ID:               uuid.NewString(),
			Type:             r.Type,
			Lat:              lat,
			Lng:              lng,
			Status:           models.IncidentStatusCollapsed,
			ReporterPhone:    r.PhoneNumber,
			Source:           models.SourceUSSD,
			SessionID:        r.SessionID,
			ParentIncidentID: parent.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.store.CreateIncident(collapsed); err != nil {
			return Result{}, fmt.Errorf("intake: failed to persist collapsed incident: %w", err)
		}
		slog.Info("intake.Engine collapsed report into active incident",
			"incidentID", collapsed.ID, "parentID", parent.ID, "type", r.Type)
		return Result{IncidentID: collapsed.ID, FacilityName: FacilityMerged}, nil
	}

	// Facility assignment: earliest-registered hospital with headroom. A full
	// network still accepts the report, just without an assigned facility.
	facilityName := FacilityFallback
	var hospitalID int64
	hospital, err := e.store.ReserveHospital()
	switch {
	case err == nil:
		facilityName = hospital.Name
		hospitalID = hospital.ID
	case errors.Is(err, models.ErrNoCapacity):
		slog.Warn("intake.Engine no facility capacity, proceeding unassigned", "type", r.Type)
	default:
		return Result{}, fmt.Errorf("intake: facility reservation failed: %w", err)
	}

	inc := models.Incident{
		ID:            uuid.NewString(),
		Type:          r.Type,
		Lat:           lat,
		Lng:           lng,
		Status:        models.IncidentStatusPending,
		ReporterPhone: r.PhoneNumber,
		Source:        models.SourceUSSD,
		SessionID:     r.SessionID,
		HospitalID:    hospitalID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateIncident(inc); err != nil {
		// Roll the reservation back so a failed insert does not leak capacity.
		if hospitalID != 0 {
			if relErr := e.store.ReleaseHospital(hospitalID); relErr != nil {
				slog.Error("intake.Engine reservation rollback failed", "hospitalID", hospitalID, "error", relErr)
			}
		}
		return Result{}, fmt.Errorf("intake: failed to persist incident: %w", err)
	}

	e.escalations.Schedule(inc.ID)
	slog.Info("intake.Engine created incident",
		"incidentID", inc.ID, "type", inc.Type, "location", r.LocationName,
		"hospitalID", hospitalID, "facility", facilityName)
	return Result{IncidentID: inc.ID, FacilityName: facilityName}, nil
}
