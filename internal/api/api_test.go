package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/QuickReach/QuickReach/internal/escalation"
	"github.com/QuickReach/QuickReach/internal/intake"
	"github.com/QuickReach/QuickReach/internal/models"
	"github.com/QuickReach/QuickReach/internal/notify"
	"github.com/QuickReach/QuickReach/internal/session"
	"github.com/QuickReach/QuickReach/internal/store"
	"github.com/QuickReach/QuickReach/internal/ussd"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore, *escalation.Scheduler) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SeedHospitals([]models.Hospital{
		{Name: "Black Lion Hospital", Lat: 9.0107, Lng: 38.7486, MaxCapacity: 5},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	esc := escalation.NewScheduler(st, notify.NewLogNotifier(), escalation.WithWindow(time.Minute))
	t.Cleanup(esc.Stop)
	engine := intake.NewEngine(st, esc)
	dialogue := ussd.NewHandler(session.NewCacheStore(), engine, st)
	return NewServer(st, dialogue, esc), st, esc
}

func postUSSDForm(t *testing.T, srv *Server, sessionID, phone, text string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	form.Set("sessionId", sessionID)
	form.Set("phoneNumber", phone)
	form.Set("text", text)
	req := httptest.NewRequest(http.MethodPost, "/ussd", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestUSSDWebhookFormEncoded(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := postUSSDForm(t, srv, "sess-1", "+251911000000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "CON Welcome to QuickReach Emergency") {
		t.Errorf("reply = %q, want main menu", body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestUSSDWebhookJSONBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	payload, _ := json.Marshal(models.TurnRequest{SessionID: "sess-1", PhoneNumber: "+1", Text: ""})
	req := httptest.NewRequest(http.MethodPost, "/ussd", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "CON ") {
		t.Errorf("JSON turn: status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestUSSDWebhookRequiresSessionID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := postUSSDForm(t, srv, "", "+1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing sessionId status = %d, want 400", w.Code)
	}
}

func TestUSSDWebhookFullFlowCreatesIncident(t *testing.T) {
	srv, st, _ := newTestServer(t)

	postUSSDForm(t, srv, "sess-1", "+1", "")
	postUSSDForm(t, srv, "sess-1", "+1", "1")
	postUSSDForm(t, srv, "sess-1", "+1", "1*2")
	w := postUSSDForm(t, srv, "sess-1", "+1", "1*2*1")

	if !strings.HasPrefix(w.Body.String(), "END Help is coming from Black Lion Hospital") {
		t.Errorf("confirm reply = %q", w.Body.String())
	}
	incidents, _ := st.ListIncidents()
	if len(incidents) != 1 {
		t.Fatalf("incident count = %d, want 1", len(incidents))
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("health: status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestListIncidentsAndHospitals(t *testing.T) {
	srv, st, _ := newTestServer(t)
	now := time.Now()
	st.CreateIncident(models.Incident{
		ID: "inc-1", Type: models.IncidentTypeFire, Status: models.IncidentStatusPending,
		ReporterPhone: "+1", Source: models.SourceUSSD, CreatedAt: now, UpdatedAt: now,
	})

	for _, path := range []string{"/incidents", "/hospitals"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
			continue
		}
		var resp models.APIResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Errorf("GET %s: invalid JSON: %v", path, err)
		}
		if resp.Status != string(models.APIStatusOK) {
			t.Errorf("GET %s status field = %q", path, resp.Status)
		}
	}
}

func TestStatusTransitionEndpoint(t *testing.T) {
	srv, st, esc := newTestServer(t)
	now := time.Now()
	st.CreateIncident(models.Incident{
		ID: "inc-1", Type: models.IncidentTypeMedical, Status: models.IncidentStatusPending,
		ReporterPhone: "+1", Source: models.SourceUSSD, CreatedAt: now, UpdatedAt: now,
	})
	esc.Schedule("inc-1")

	post := func(id, status string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/incidents/"+id+"/status",
			strings.NewReader(`{"status":"`+status+`"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	if w := post("inc-1", "Dispatched"); w.Code != http.StatusOK {
		t.Fatalf("Pending -> Dispatched status = %d body=%q", w.Code, w.Body.String())
	}
	if esc.Active() != 0 {
		t.Error("escalation timer should be cancelled once dispatched")
	}
	if w := post("inc-1", "Pending"); w.Code != http.StatusConflict {
		t.Errorf("Dispatched -> Pending status = %d, want 409", w.Code)
	}
	if w := post("inc-1", "Burning"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid status code = %d, want 400", w.Code)
	}
	if w := post("missing", "Dispatched"); w.Code != http.StatusNotFound {
		t.Errorf("missing incident status = %d, want 404", w.Code)
	}

	inc, _ := st.GetIncident("inc-1")
	if inc.Status != models.IncidentStatusDispatched {
		t.Errorf("incident status = %s, want Dispatched", inc.Status)
	}
}

func TestResolveReleasesFacilityCapacity(t *testing.T) {
	srv, st, _ := newTestServer(t)

	// Drive a full report so a facility slot is reserved.
	postUSSDForm(t, srv, "sess-1", "+1", "")
	postUSSDForm(t, srv, "sess-1", "+1", "1")
	postUSSDForm(t, srv, "sess-1", "+1", "1*2")
	postUSSDForm(t, srv, "sess-1", "+1", "1*2*1")

	incidents, _ := st.ListIncidents()
	if len(incidents) != 1 {
		t.Fatalf("incident count = %d, want 1", len(incidents))
	}
	id := incidents[0].ID
	hospitalID := incidents[0].HospitalID
	if hospitalID == 0 {
		t.Fatal("incident should have a facility assigned")
	}

	req := httptest.NewRequest(http.MethodPost, "/incidents/"+id+"/status",
		strings.NewReader(`{"status":"Resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d body=%q", w.Code, w.Body.String())
	}

	h, _ := st.GetHospital(hospitalID)
	if h.CurrentCapacity != 0 {
		t.Errorf("capacity after resolve = %d, want 0", h.CurrentCapacity)
	}
}
