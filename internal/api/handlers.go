package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/QuickReach/QuickReach/internal/models"
)

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("QuickReach Backend API is live.", nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Server.healthHandler: failed to write response", "error", err)
	}
}

// ussdHandler receives Africa's Talking-style webhook POSTs. The gateway
// sends form-encoded fields; JSON bodies are accepted for the simulator.
// The reply is plain text with the CON/END prefix the gateway parses.
func (s *Server) ussdHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TurnRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid form body"))
			return
		}
		req = models.TurnRequest{
			SessionID:   r.PostFormValue("sessionId"),
			ServiceCode: r.PostFormValue("serviceCode"),
			PhoneNumber: r.PostFormValue("phoneNumber"),
			Text:        r.PostFormValue("text"),
		}
	}
	if req.SessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("sessionId is required"))
		return
	}

	reply := s.dialogue.HandleTurn(r.Context(), req)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(reply)); err != nil {
		slog.Error("Server.ussdHandler: failed to write reply", "error", err, "sessionID", req.SessionID)
	}
}

func (s *Server) listIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	incidents, err := s.store.ListIncidents()
	if err != nil {
		slog.Error("Server.listIncidentsHandler failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list incidents"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(incidents))
}

// statusUpdateRequest is the dispatcher action payload.
type statusUpdateRequest struct {
	Status models.IncidentStatus `json:"status"`
}

// updateStatusHandler applies a dispatcher status transition. Leaving Pending
// disarms the escalation timer; resolving releases the facility reservation.
func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if !models.IsValidIncidentStatus(req.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid status"))
		return
	}

	inc, err := s.store.GetIncident(id)
	if err != nil {
		if errors.Is(err, models.ErrIncidentNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("incident not found"))
			return
		}
		slog.Error("Server.updateStatusHandler lookup failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load incident"))
		return
	}

	if err := s.store.UpdateIncidentStatus(id, req.Status); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			writeJSONResponse(w, http.StatusConflict, models.Error("invalid status transition"))
			return
		}
		slog.Error("Server.updateStatusHandler update failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to update status"))
		return
	}

	s.escalations.Cancel(id)
	if req.Status == models.IncidentStatusResolved && inc.HospitalID != 0 {
		if err := s.store.ReleaseHospital(inc.HospitalID); err != nil {
			slog.Error("Server.updateStatusHandler capacity release failed", "error", err, "hospitalID", inc.HospitalID)
		}
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("status updated", map[string]string{
		"id":     id,
		"status": string(req.Status),
	}))
}

func (s *Server) listHospitalsHandler(w http.ResponseWriter, r *http.Request) {
	hospitals, err := s.store.ListHospitals()
	if err != nil {
		slog.Error("Server.listHospitalsHandler failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list hospitals"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(hospitals))
}
