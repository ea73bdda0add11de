package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/beaconlb/beacon/internal/alert"
	"github.com/beaconlb/beacon/internal/dns"
	"github.com/beaconlb/beacon/internal/dnsclient"
	"github.com/beaconlb/beacon/internal/health"
	"github.com/beaconlb/beacon/internal/lock"
	"github.com/beaconlb/beacon/internal/logging"
	"github.com/beaconlb/beacon/internal/store"
)

// recordingNotifier captures every alert delivered, standing in for the
// Telegram bot in orchestrator-level tests.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// newTestOrchestrator wires an Orchestrator against a real Store and a
// fake Hetzner-compatible DNS server, without a probe.Runner — sufficient
// to exercise RotateOnce end to end and MonitorOnce's no-candidate/guard
// paths (the probe pipeline itself is covered in package probe).
func newTestOrchestrator(t *testing.T, dnsHandler http.HandlerFunc) (*Orchestrator, *store.Store, *recordingNotifier) {
	t.Helper()

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log, err := logging.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	if dnsHandler == nil {
		dnsHandler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{})
		}
	}
	srv := httptest.NewServer(dnsHandler)
	t.Cleanup(srv.Close)

	client := dnsclient.New(srv.URL, "test-token", 2*time.Second, 2)
	reconciler := dns.New(client, st, 0, 60)

	notifier := &recordingNotifier{}
	alerter := alert.New(st, notifier, log, 0)

	orch := &Orchestrator{
		Store:      st,
		Log:        log,
		Aggregator: health.New(2, 3),
		Reconciler: reconciler,
		Alerter:    alerter,
		MonitorInt: 15 * time.Second,
		LBInt:      60 * time.Second,
	}
	return orch, st, notifier
}

func TestMonitorOnceIntervalGuardSkips(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)
	if err := st.SetLastMonitorEpoch(time.Now().Unix()); err != nil {
		t.Fatal(err)
	}

	res, err := orch.MonitorOnce(context.Background())
	if err != nil {
		t.Fatalf("MonitorOnce: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result, got %+v", res)
	}
}

func TestMonitorOnceEmptyCandidateSet(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)

	res, err := orch.MonitorOnce(context.Background())
	if err != nil {
		t.Fatalf("MonitorOnce: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result for empty candidate set, got %+v", res)
	}

	last, err := st.GetLastMonitorEpoch()
	if err != nil {
		t.Fatal(err)
	}
	if last == 0 {
		t.Fatal("expected last-monitor epoch to be recorded even with no candidates")
	}
}

func TestMonitorOnceSkippedWhenLockHeld(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)

	m, err := lock.New(st.StateDir(), "monitor")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer m.Release()

	res, err := orch.MonitorOnce(context.Background())
	if err != nil {
		t.Fatalf("MonitorOnce: %v", err)
	}
	if !res.OK {
		t.Fatalf("concurrent tick should report OK-but-skipped, got %+v", res)
	}
}

func TestRotateOnceIntervalGuardSkips(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)
	if err := st.SetLastRotateEpoch(time.Now().Unix()); err != nil {
		t.Fatal(err)
	}

	res, err := orch.RotateOnce(context.Background())
	if err != nil {
		t.Fatalf("RotateOnce: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result, got %+v", res)
	}
}

func TestRotateOnceNoHealthyCandidatesAlerts(t *testing.T) {
	orch, _, notifier := newTestOrchestrator(t, nil)

	res, err := orch.RotateOnce(context.Background())
	if err != nil {
		t.Fatalf("RotateOnce: %v", err)
	}
	if res.OK {
		t.Fatalf("expected non-OK result (policy outcome) with no healthy candidates, got %+v", res)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one alert, got %d", notifier.count())
	}
}

func TestRotateOnceUpdatesDNSForHealthyCandidate(t *testing.T) {
	orch, st, notifier := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			json.NewEncoder(w).Encode(map[string]any{"record": dnsclient.Record{ID: "r1"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{})
	})

	latency := 50
	if err := st.SaveHealth(map[string]store.HealthRecord{
		"candidate-1": {IP: "10.0.0.1", Healthy: true, LastLatencyMs: &latency},
	}); err != nil {
		t.Fatal(err)
	}
	oldIP := "1.1.1.1"
	oldUpdate := time.Now().Add(-time.Hour)
	if err := st.UpsertDomain(store.DomainEntry{FQDN: "lb.example.com", ZoneID: "z1", RecordID: "r1", LastIP: &oldIP, LastUpdate: &oldUpdate}); err != nil {
		t.Fatal(err)
	}

	res, err := orch.RotateOnce(context.Background())
	if err != nil {
		t.Fatalf("RotateOnce: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result, got %+v", res)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no alert when a healthy candidate exists, got %d", notifier.count())
	}

	ip, err := st.GetCurrentIP()
	if err != nil {
		t.Fatal(err)
	}
	if ip != "10.0.0.1" {
		t.Fatalf("current ip = %q, want 10.0.0.1", ip)
	}
}
