package selector

import (
	"testing"

	"github.com/beaconlb/beacon/internal/store"
)

func ms(v int) *int { return &v }

func TestBestPicksMinimumLatency(t *testing.T) {
	records := []store.HealthRecord{
		{IP: "1.1.1.1", Healthy: true, LastLatencyMs: ms(200)},
		{IP: "2.2.2.2", Healthy: true, LastLatencyMs: ms(50)},
		{IP: "3.3.3.3", Healthy: false, LastLatencyMs: ms(1)},
	}
	ip, ok := Best(records)
	if !ok || ip != "2.2.2.2" {
		t.Fatalf("Best() = %q, %v; want 2.2.2.2, true", ip, ok)
	}
}

func TestBestTieBrokenByOrder(t *testing.T) {
	records := []store.HealthRecord{
		{IP: "first", Healthy: true, LastLatencyMs: ms(100)},
		{IP: "second", Healthy: true, LastLatencyMs: ms(100)},
	}
	ip, ok := Best(records)
	if !ok || ip != "first" {
		t.Fatalf("Best() = %q, %v; want first, true", ip, ok)
	}
}

func TestBestNoHealthyReturnsAbsent(t *testing.T) {
	records := []store.HealthRecord{
		{IP: "1.1.1.1", Healthy: false, LastLatencyMs: ms(1)},
		{IP: "2.2.2.2", Healthy: true},
	}
	if _, ok := Best(records); ok {
		t.Fatalf("Best() ok = true, want false")
	}
}

func TestRotateCyclesSortedUniqueIPs(t *testing.T) {
	records := []store.HealthRecord{
		{IP: "3.3.3.3", Healthy: true},
		{IP: "1.1.1.1", Healthy: true},
		{IP: "1.1.1.1", Healthy: true},
		{IP: "2.2.2.2", Healthy: false},
	}

	ip, next, ok := Rotate(records, 0)
	if !ok || ip != "1.1.1.1" || next != 1 {
		t.Fatalf("Rotate(0) = %q, %d, %v; want 1.1.1.1, 1, true", ip, next, ok)
	}
	ip, next, ok = Rotate(records, next)
	if !ok || ip != "3.3.3.3" || next != 0 {
		t.Fatalf("Rotate(1) = %q, %d, %v; want 3.3.3.3, 0, true", ip, next, ok)
	}
}

func TestRotateEmptyReturnsAbsent(t *testing.T) {
	if _, _, ok := Rotate(nil, 0); ok {
		t.Fatalf("Rotate(nil) ok = true, want false")
	}
}

func TestRotateSingleHealthyStaysPut(t *testing.T) {
	records := []store.HealthRecord{{IP: "9.9.9.9", Healthy: true}}
	ip, next, ok := Rotate(records, 5)
	if !ok || ip != "9.9.9.9" || next != 0 {
		t.Fatalf("Rotate(5) = %q, %d, %v; want 9.9.9.9, 0, true", ip, next, ok)
	}
}
