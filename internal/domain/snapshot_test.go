package domain

import (
	"testing"
	"time"
)

func TestSnapshotCloneIsDeep(t *testing.T) {
	orig := Snapshot{
		TotalRequests:    3,
		Logs:             []EventRecord{{OriginAddress: "1.2.3.4", Geo: &Geo{Lat: 1, Lng: 2}}},
		Detections:       []DetectionRecord{{OriginAddress: "1.2.3.4", Reason: "rate"}},
		BlockedAddresses: []string{"1.2.3.4"},
	}
	clone := orig.Clone()
	clone.Logs[0].OriginAddress = "changed"
	clone.Logs[0].Geo.Lat = 50
	clone.Detections[0].Reason = "changed"
	clone.BlockedAddresses[0] = "changed"

	if orig.Logs[0].OriginAddress != "1.2.3.4" {
		t.Fatalf("log slice shared with clone")
	}
	if orig.Logs[0].Geo.Lat != 1 {
		t.Fatalf("geo pointer shared with clone")
	}
	if orig.Detections[0].Reason != "rate" {
		t.Fatalf("detections shared with clone")
	}
	if orig.BlockedAddresses[0] != "1.2.3.4" {
		t.Fatalf("blocklist shared with clone")
	}
}

func TestZeroSnapshotHelpers(t *testing.T) {
	var snap Snapshot
	if snap.MeanMLScore() != 0 {
		t.Fatalf("expected zero mean for empty logs")
	}
	if snap.SecurityLevel() != SecurityNormal {
		t.Fatalf("expected NORMAL for empty blocklist, got %s", snap.SecurityLevel())
	}
	if snap.IsBlocked("1.2.3.4") {
		t.Fatalf("zero snapshot must not report blocks")
	}
}

func TestSnapshotDerivedValues(t *testing.T) {
	snap := Snapshot{
		BlockedCount:     1,
		Logs:             []EventRecord{{MLScore: 0.2}, {MLScore: 0.6}},
		BlockedAddresses: NormalizeBlocklist([]string{" 9.9.9.9", "1.1.1.1", "9.9.9.9", ""}),
	}
	if got := snap.MeanMLScore(); got < 0.3999 || got > 0.4001 {
		t.Fatalf("expected mean 0.4, got %v", got)
	}
	if snap.SecurityLevel() != SecurityCritical {
		t.Fatalf("expected CRITICAL with a block present")
	}
	if len(snap.BlockedAddresses) != 2 || snap.BlockedAddresses[0] != "1.1.1.1" {
		t.Fatalf("unexpected normalised blocklist %v", snap.BlockedAddresses)
	}
	if !snap.IsBlocked("9.9.9.9") || snap.IsBlocked("8.8.8.8") {
		t.Fatalf("unexpected IsBlocked result")
	}
}

func TestParseThreatLevel(t *testing.T) {
	if ParseThreatLevel(" high ") != ThreatHigh {
		t.Fatalf("expected HIGH")
	}
	if ParseThreatLevel("Medium") != ThreatMedium {
		t.Fatalf("expected MEDIUM")
	}
	if ParseThreatLevel("CRITICAL") != ThreatLow {
		t.Fatalf("unknown levels must fall back to LOW")
	}
	if ThreatLow.Elevated() || !ThreatMedium.Elevated() || !ThreatHigh.Elevated() {
		t.Fatalf("unexpected Elevated mapping")
	}
}

func TestSecondsToTime(t *testing.T) {
	got := SecondsToTime(1700000000.25)
	want := time.Unix(1700000000, 250_000_000).UTC()
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
