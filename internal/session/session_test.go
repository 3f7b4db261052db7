package session

import (
	"testing"
	"time"

	"github.com/QuickReach/QuickReach/internal/models"
)

func TestGetReturnsFreshSessionWhenAbsent(t *testing.T) {
	s := NewCacheStore()
	sess, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.State != models.StateStart {
		t.Errorf("fresh session state = %s, want START", sess.State)
	}
	if len(sess.Data) != 0 {
		t.Errorf("fresh session data should be empty, got %v", sess.Data)
	}
}

func TestUpdateMergesDataAndReplacesState(t *testing.T) {
	s := NewCacheStore()
	if err := s.Update("sess-1", models.StatePickLocation, map[models.DataKey]string{
		models.DataKeyType: "Medical",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Update("sess-1", models.StateConfirm, map[models.DataKey]string{
		models.DataKeyLocationName: "Bole",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.State != models.StateConfirm {
		t.Errorf("state = %s, want CONFIRM", sess.State)
	}
	if sess.Data[models.DataKeyType] != "Medical" {
		t.Errorf("type not preserved across updates: %v", sess.Data)
	}
	if sess.Data[models.DataKeyLocationName] != "Bole" {
		t.Errorf("locationName not merged: %v", sess.Data)
	}
}

func TestUpdateLastWriteWinsPerKey(t *testing.T) {
	s := NewCacheStore()
	s.Update("sess-1", models.StatePickType, map[models.DataKey]string{models.DataKeyType: "Fire"})
	s.Update("sess-1", models.StatePickType, map[models.DataKey]string{models.DataKeyType: "Police"})

	sess, _ := s.Get("sess-1")
	if sess.Data[models.DataKeyType] != "Police" {
		t.Errorf("type = %q, want last write %q", sess.Data[models.DataKeyType], "Police")
	}
}

func TestClearRemovesSession(t *testing.T) {
	s := NewCacheStore()
	s.Update("sess-1", models.StateConfirm, nil)
	if err := s.Clear("sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, _ := s.Get("sess-1")
	if sess.State != models.StateStart {
		t.Errorf("cleared session should read as fresh START, got %s", sess.State)
	}
}

func TestExpiredSessionReadsAsFresh(t *testing.T) {
	s := NewCacheStore(WithTTL(10 * time.Millisecond))
	s.Update("sess-1", models.StateConfirm, map[models.DataKey]string{models.DataKeyType: "Medical"})

	time.Sleep(30 * time.Millisecond)

	sess, _ := s.Get("sess-1")
	if sess.State != models.StateStart || len(sess.Data) != 0 {
		t.Errorf("expired session should read as fresh, got state=%s data=%v", sess.State, sess.Data)
	}
}

func TestSweepPurgesExpiredEntries(t *testing.T) {
	s := NewCacheStore(WithTTL(10 * time.Millisecond))
	s.Update("old", models.StatePickType, nil)
	time.Sleep(30 * time.Millisecond)
	s.Update("new", models.StatePickType, nil)

	s.Sweep()
	if got := s.Len(); got != 1 {
		t.Errorf("Len() after sweep = %d, want 1", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewCacheStore()
	s.Update("sess-1", models.StatePickType, map[models.DataKey]string{models.DataKeyType: "Fire"})

	sess, _ := s.Get("sess-1")
	sess.Data[models.DataKeyType] = "Police"

	again, _ := s.Get("sess-1")
	if again.Data[models.DataKeyType] != "Fire" {
		t.Error("mutating a returned session should not affect stored state")
	}
}
