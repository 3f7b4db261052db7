// Package ussd implements the dialogue state machine for the emergency
// reporting menu.
//
// The telephony gateway is stateless between turns: every request carries the
// full accumulated digit history, and only the last token is the new
// keystroke. Replies use the CON/END wire prefixes the gateway parses, so the
// prompt texts here are a wire contract and must not be reworded casually.
package ussd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/QuickReach/QuickReach/internal/intake"
	"github.com/QuickReach/QuickReach/internal/models"
	"github.com/QuickReach/QuickReach/internal/session"
)

// Delimiter joins accumulated digits in the gateway's text field.
const Delimiter = "*"

// Wire-contract reply texts.
const (
	menuMain = `CON Welcome to QuickReach Emergency
1. Medical (Ambulance)
2. Fire & Rescue
3. Police`

	menuFastPath = `CON QuickReach: You have an active alert pending.
1. Escalated Help
2. New Emergency
0. Cancel`

	menuInvalidType = `CON Invalid Choice.
1. Medical
2. Fire
3. Police`

	menuInvalidLocation = `CON Invalid Location.
1. Current
2. Bole
3. Piassa
4. Arada`

	replyFastPathAck = `END We are prioritizing your request. A dispatcher will call you shortly.`
	replyCancelled   = `END Request cancelled. Stay safe.`
	replySessionErr  = `END Session error. Please try again.`
	replyOverload    = `END QuickReach is currently overloaded. Please dial 991/992.`
)

var incidentTypes = map[string]models.IncidentType{
	"1": models.IncidentTypeMedical,
	"2": models.IncidentTypeFire,
	"3": models.IncidentTypePolice,
}

var locations = map[string]string{
	"1": "Detected",
	"2": "Bole",
	"3": "Piassa",
	"4": "Arada",
}

// IntakeEngine accepts a confirmed report.
type IntakeEngine interface {
	Submit(ctx context.Context, r intake.Report) (intake.Result, error)
}

// PendingLookup finds a caller's active incident for the fast-path menu.
type PendingLookup interface {
	FindPendingByReporter(phone string) (*models.Incident, error)
}

// Handler drives the per-turn dialogue evaluation.
type Handler struct {
	sessions  session.Store
	engine    IntakeEngine
	incidents PendingLookup
}

// NewHandler creates a dialogue handler over the given collaborators.
func NewHandler(sessions session.Store, engine IntakeEngine, incidents PendingLookup) *Handler {
	return &Handler{sessions: sessions, engine: engine, incidents: incidents}
}

// HandleTurn evaluates one session turn and returns the CON/END reply text.
// Any backend failure collapses to the fixed overload message, and the
// session is cleared so the caller is never left mid-flow after an error.
func (h *Handler) HandleTurn(ctx context.Context, req models.TurnRequest) string {
	reply, err := h.evaluate(ctx, req)
	if err != nil {
		slog.Error("ussd.Handler turn failed", "sessionID", req.SessionID, "error", err)
		if clearErr := h.sessions.Clear(req.SessionID); clearErr != nil {
			slog.Error("ussd.Handler session clear failed after error", "sessionID", req.SessionID, "error", clearErr)
		}
		return replyOverload
	}
	return reply
}

func (h *Handler) evaluate(ctx context.Context, req models.TurnRequest) (string, error) {
	sess, err := h.sessions.Get(req.SessionID)
	if err != nil {
		return "", fmt.Errorf("session lookup failed: %w", err)
	}

	// The gateway resends the whole history; only the last token is new.
	tokens := strings.Split(req.Text, Delimiter)
	lastInput := tokens[len(tokens)-1]

	slog.Debug("ussd.Handler evaluating turn",
		"sessionID", req.SessionID, "state", sess.State, "lastInput", lastInput)

	// Fast-path pre-check: a caller with an active Pending incident gets a
	// shortcut menu before the normal START transition.
	if req.Text == "" && sess.State == models.StateStart {
		prior, err := h.incidents.FindPendingByReporter(req.PhoneNumber)
		if err != nil {
			return "", fmt.Errorf("fast-path lookup failed: %w", err)
		}
		if prior != nil {
			if err := h.sessions.Update(req.SessionID, models.StateStart, map[models.DataKey]string{
				models.DataKeyFastPath:      "true",
				models.DataKeyPriorIncident: prior.ID,
			}); err != nil {
				return "", fmt.Errorf("session update failed: %w", err)
			}
			slog.Info("ussd.Handler presented fast-path menu", "sessionID", req.SessionID, "priorIncidentID", prior.ID)
			return menuFastPath, nil
		}
	}

	switch sess.State {
	case models.StateStart:
		if req.Text == "" {
			if err := h.sessions.Update(req.SessionID, models.StatePickType, nil); err != nil {
				return "", fmt.Errorf("session update failed: %w", err)
			}
			return menuMain, nil
		}
		// Input while still in START only happens on the fast-path menu.
		if lastInput == "1" {
			if err := h.sessions.Clear(req.SessionID); err != nil {
				return "", fmt.Errorf("session clear failed: %w", err)
			}
			return replyFastPathAck, nil
		}
		// Declined the shortcut: tail-transition straight to the main menu
		// rather than re-dispatching the turn.
		if err := h.sessions.Update(req.SessionID, models.StatePickType, map[models.DataKey]string{
			models.DataKeyFastPath: "false",
		}); err != nil {
			return "", fmt.Errorf("session update failed: %w", err)
		}
		return menuMain, nil

	case models.StatePickType:
		selected, ok := incidentTypes[lastInput]
		if !ok {
			return menuInvalidType, nil
		}
		if err := h.sessions.Update(req.SessionID, models.StatePickLocation, map[models.DataKey]string{
			models.DataKeyType: string(selected),
		}); err != nil {
			return "", fmt.Errorf("session update failed: %w", err)
		}
		return fmt.Sprintf(`CON Emergency: %s
Choose Location:
1. Current (Detect)
2. Bole
3. Piassa
4. Arada`, selected), nil

	case models.StatePickLocation:
		selected, ok := locations[lastInput]
		if !ok {
			return menuInvalidLocation, nil
		}
		if err := h.sessions.Update(req.SessionID, models.StateConfirm, map[models.DataKey]string{
			models.DataKeyLocationName: selected,
		}); err != nil {
			return "", fmt.Errorf("session update failed: %w", err)
		}
		return fmt.Sprintf(`CON Confirm %s request at %s?
1. Yes, Send Help
2. No, Cancel`, sess.Data[models.DataKeyType], selected), nil

	case models.StateConfirm:
		if lastInput != "1" {
			if err := h.sessions.Clear(req.SessionID); err != nil {
				return "", fmt.Errorf("session clear failed: %w", err)
			}
			return replyCancelled, nil
		}
		res, err := h.engine.Submit(ctx, intake.Report{
			Type:         models.IncidentType(sess.Data[models.DataKeyType]),
			LocationName: sess.Data[models.DataKeyLocationName],
			PhoneNumber:  req.PhoneNumber,
			SessionID:    req.SessionID,
		})
		if err != nil {
			return "", fmt.Errorf("intake failed: %w", err)
		}
		if err := h.sessions.Clear(req.SessionID); err != nil {
			return "", fmt.Errorf("session clear failed: %w", err)
		}
		return fmt.Sprintf("END Help is coming from %s. Reference: %s", res.FacilityName, models.ShortRef(res.IncidentID)), nil

	default:
		// Corrupted state must never leave a dangling session.
		slog.Error("ussd.Handler unknown session state", "sessionID", req.SessionID, "state", sess.State)
		if err := h.sessions.Clear(req.SessionID); err != nil {
			return "", fmt.Errorf("session clear failed: %w", err)
		}
		return replySessionErr, nil
	}
}
