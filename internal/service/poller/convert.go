package poller

import (
	"math"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
)

// SnapshotFromStats converts the authority payload into a domain snapshot.
// Missing or malformed fields take neutral defaults: ml_score 0, threat LOW
// and no geo.
func SnapshotFromStats(stats client.Stats) domain.Snapshot {
	snap := domain.Snapshot{
		TotalRequests:    stats.TotalRequests,
		BlockedCount:     stats.BlockedIPs,
		DetectedBotCount: stats.DetectedBots,
		Logs:             make([]domain.EventRecord, 0, len(stats.Logs)),
		Detections:       make([]domain.DetectionRecord, 0, len(stats.Detections)),
		BlockedAddresses: domain.NormalizeBlocklist(stats.BlockedIPsList),
	}
	if stats.Sequence != nil {
		snap.Sequence = *stats.Sequence
	}
	for _, entry := range stats.Logs {
		snap.Logs = append(snap.Logs, eventFromEntry(entry))
	}
	for _, det := range stats.Detections {
		snap.Detections = append(snap.Detections, domain.DetectionRecord{
			OriginAddress: det.IP,
			Reason:        det.Reason,
			Timestamp:     det.Timestamp,
		})
	}
	return snap
}

func eventFromEntry(entry client.LogEntry) domain.EventRecord {
	rec := domain.EventRecord{
		Timestamp:     entry.Timestamp,
		OriginAddress: entry.IP,
		Path:          entry.Path,
		Method:        entry.Method,
		UserAgent:     entry.UserAgent,
		StatusCode:    entry.Status,
		ThreatLevel:   domain.ParseThreatLevel(entry.ThreatLevel),
	}
	if entry.MLScore != nil {
		rec.MLScore = clampScore(*entry.MLScore)
	}
	if g := entry.Geo; g != nil && g.Lat != nil && g.Lng != nil {
		rec.Geo = &domain.Geo{Lat: *g.Lat, Lng: *g.Lng, Name: g.Name, Continent: g.Continent}
	}
	return rec
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
