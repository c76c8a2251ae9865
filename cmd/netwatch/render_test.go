package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
)

func TestSparklineScalesToPeak(t *testing.T) {
	series := domain.Series{
		Buckets: []domain.Bucket{{Count: 0}, {Count: 2}, {Count: 4}},
		Peak:    4,
	}
	if got := sparkline(series); got != "▁▄█" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	empty := domain.Series{Buckets: make([]domain.Bucket, 3)}
	if got := sparkline(empty); got != "▁▁▁" {
		t.Fatalf("unexpected empty sparkline %q", got)
	}
}

func TestRenderSummaryLimitsAndFlagsBlocked(t *testing.T) {
	snap := domain.Snapshot{
		TotalRequests:    10,
		BlockedCount:     1,
		BlockedAddresses: []string{"1.2.3.4"},
		Logs: []domain.EventRecord{
			{Timestamp: 100, OriginAddress: "1.2.3.4", StatusCode: 403, ThreatLevel: domain.ThreatHigh, Method: "GET", Path: "/login"},
			{Timestamp: 99, OriginAddress: "5.6.7.8", StatusCode: 200, ThreatLevel: domain.ThreatLow},
			{Timestamp: 98, OriginAddress: "9.9.9.9", StatusCode: 200, ThreatLevel: domain.ThreatLow},
		},
	}
	var buf bytes.Buffer
	renderSummary(&buf, snap, domain.Series{WidthLabel: "10S"}, summaryOptions{Limit: 2})
	out := buf.String()

	if !strings.Contains(out, "SECURITY CRITICAL") {
		t.Fatalf("expected critical header, got %q", out)
	}
	if !strings.Contains(out, "blocklist 1.2.3.4") {
		t.Fatalf("expected blocklist line, got %q", out)
	}
	if strings.Contains(out, "9.9.9.9") {
		t.Fatalf("limit not applied: %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	first := lines[len(lines)-2]
	if !strings.Contains(first, "DENY") || !strings.HasSuffix(first, "[blocked]") {
		t.Fatalf("unexpected first event line %q", first)
	}
}

func TestRenderSummaryTruncatesToWidth(t *testing.T) {
	snap := domain.Snapshot{Logs: []domain.EventRecord{{
		Timestamp: 1, OriginAddress: "10.0.0.1", StatusCode: 200, ThreatLevel: domain.ThreatMedium,
		Method: "POST", Path: "/a/very/long/path/that/keeps/going",
	}}}
	var buf bytes.Buffer
	renderSummary(&buf, snap, domain.Series{}, summaryOptions{Limit: 5, Width: 20})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	if len([]rune(last)) != 20 {
		t.Fatalf("expected 20 runes, got %d (%q)", len([]rune(last)), last)
	}
}

func TestPickPrefersFlag(t *testing.T) {
	if got := pick(" http://a ", "http://b"); got != "http://a" {
		t.Fatalf("unexpected %q", got)
	}
	if got := pick("", " http://b "); got != "http://b" {
		t.Fatalf("unexpected %q", got)
	}
}
