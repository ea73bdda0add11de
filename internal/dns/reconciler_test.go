package dns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beaconlb/beacon/internal/dnsclient"
	"github.com/beaconlb/beacon/internal/store"
)

func newTestReconciler(t *testing.T, handler http.HandlerFunc) (*Reconciler, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := dnsclient.New(srv.URL, "test-token", 2*time.Second, 2)
	return New(client, st, 10*time.Second, 60), st
}

func TestUpdateRecordThrottled(t *testing.T) {
	called := false
	r, st := newTestReconciler(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	})

	old := "1.2.3.4"
	lastUpdate := time.Now().Add(-2 * time.Second)
	if err := st.UpsertDomain(store.DomainEntry{FQDN: "lb.example.com", ZoneID: "z1", RecordID: "r1", LastIP: &old, LastUpdate: &lastUpdate}); err != nil {
		t.Fatal(err)
	}

	outcome, err := r.UpdateRecord(context.Background(), "lb.example.com", "5.6.7.8", time.Now())
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if outcome != OutcomeThrottled {
		t.Fatalf("outcome = %s, want throttled", outcome)
	}
	if called {
		t.Fatal("expected zero HTTP calls when throttled")
	}
}

func TestUpdateRecordUnchanged(t *testing.T) {
	called := false
	r, st := newTestReconciler(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	})

	ip := "1.2.3.4"
	lastUpdate := time.Now().Add(-1 * time.Hour)
	if err := st.UpsertDomain(store.DomainEntry{FQDN: "lb.example.com", ZoneID: "z1", RecordID: "r1", LastIP: &ip, LastUpdate: &lastUpdate}); err != nil {
		t.Fatal(err)
	}

	outcome, err := r.UpdateRecord(context.Background(), "lb.example.com", "1.2.3.4", time.Now())
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Fatalf("outcome = %s, want unchanged", outcome)
	}
	if called {
		t.Fatal("expected zero HTTP calls when unchanged")
	}
}

// TestUpdateRecordUnchangedWinsOverThrottle mirrors the change-suppression
// scenario literally: last_update only 1s ago (well inside the 10s
// min-update-interval) but the requested IP matches last_ip. Unchanged must
// win over throttled since it's a more specific, cheaper-to-report outcome.
func TestUpdateRecordUnchangedWinsOverThrottle(t *testing.T) {
	called := false
	r, st := newTestReconciler(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	})

	ip := "1.2.3.4"
	lastUpdate := time.Now().Add(-1 * time.Second)
	if err := st.UpsertDomain(store.DomainEntry{FQDN: "lb.example.com", ZoneID: "z1", RecordID: "r1", LastIP: &ip, LastUpdate: &lastUpdate}); err != nil {
		t.Fatal(err)
	}

	outcome, err := r.UpdateRecord(context.Background(), "lb.example.com", "1.2.3.4", time.Now())
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Fatalf("outcome = %s, want unchanged", outcome)
	}
	if called {
		t.Fatal("expected zero HTTP calls when unchanged")
	}
}

func TestUpdateRecordAppliesAndPersistsCurrentIP(t *testing.T) {
	r, st := newTestReconciler(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer auth header")
		}
		json.NewEncoder(w).Encode(map[string]any{"record": dnsclient.Record{ID: "r1"}})
	})

	old := "1.2.3.4"
	lastUpdate := time.Now().Add(-1 * time.Hour)
	if err := st.UpsertDomain(store.DomainEntry{FQDN: "lb.example.com", ZoneID: "z1", RecordID: "r1", LastIP: &old, LastUpdate: &lastUpdate}); err != nil {
		t.Fatal(err)
	}

	outcome, err := r.UpdateRecord(context.Background(), "lb.example.com", "9.9.9.9", time.Now())
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %s, want updated", outcome)
	}

	ip, err := st.GetCurrentIP()
	if err != nil {
		t.Fatal(err)
	}
	if ip != "9.9.9.9" {
		t.Fatalf("current ip = %q, want 9.9.9.9", ip)
	}
}

func TestFindZoneLongestSuffixWins(t *testing.T) {
	r, _ := newTestReconciler(t, func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"zones": []dnsclient.Zone{
			{ID: "z1", Name: "example.com"},
			{ID: "z2", Name: "lb.example.com"},
		}})
	})

	zone, found, ambiguous, err := r.FindZone(context.Background(), "app.lb.example.com")
	if err != nil {
		t.Fatalf("FindZone: %v", err)
	}
	if !found || ambiguous {
		t.Fatalf("found=%v ambiguous=%v", found, ambiguous)
	}
	if zone.ID != "z2" {
		t.Fatalf("zone = %+v, want z2 (longest suffix)", zone)
	}
}
