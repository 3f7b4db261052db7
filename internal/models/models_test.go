package models

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to IncidentStatus
		want     bool
	}{
		{IncidentStatusPending, IncidentStatusDispatched, true},
		{IncidentStatusPending, IncidentStatusResolved, true},
		{IncidentStatusDispatched, IncidentStatusResolved, true},
		{IncidentStatusDispatched, IncidentStatusPending, false},
		{IncidentStatusResolved, IncidentStatusDispatched, false},
		{IncidentStatusCollapsed, IncidentStatusDispatched, false},
		{IncidentStatusCollapsed, IncidentStatusPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestShortRef(t *testing.T) {
	inc := Incident{ID: "3f9a1c77-0000-0000-0000-000000000000"}
	if got := inc.ShortRef(); got != "#QR-3f9a1" {
		t.Errorf("ShortRef() = %q, want %q", got, "#QR-3f9a1")
	}
	short := Incident{ID: "ab"}
	if got := short.ShortRef(); got != "#QR-ab" {
		t.Errorf("ShortRef() on short id = %q, want %q", got, "#QR-ab")
	}
}

func TestIsValidIncidentType(t *testing.T) {
	if !IsValidIncidentType(IncidentTypeFire) {
		t.Error("Fire should be a valid incident type")
	}
	if IsValidIncidentType("Earthquake") {
		t.Error("Earthquake should not be a valid incident type")
	}
}

func TestHospitalHasCapacity(t *testing.T) {
	h := Hospital{CurrentCapacity: 3, MaxCapacity: 3}
	if h.HasCapacity() {
		t.Error("full hospital should not have capacity")
	}
	h.CurrentCapacity = 2
	if !h.HasCapacity() {
		t.Error("hospital below max should have capacity")
	}
}
