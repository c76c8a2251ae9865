package telemetry

import (
	"sort"
	"strconv"
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
)

// DefaultRecency is how long an event stays on the live map.
const DefaultRecency = 10 * time.Second

// Projector selects the events still inside the recency window and maps each
// to a render-ready ActiveEvent.
type Projector struct {
	recency time.Duration
}

// NewProjector returns a projector with the given recency window.
func NewProjector(recency time.Duration) *Projector {
	if recency <= 0 {
		recency = DefaultRecency
	}
	return &Projector{recency: recency}
}

// Recency reports the configured window.
func (p *Projector) Recency() time.Duration { return p.recency }

// EventKey identifies an event across snapshots.
func EventKey(rec domain.EventRecord) string {
	return rec.OriginAddress + "@" + strconv.FormatFloat(rec.Timestamp, 'f', -1, 64)
}

// Project returns the active set, newest first. An event is active while
// now - timestamp < recency; events stamped after now count as active.
// Records sharing a key are collapsed to the first occurrence.
func (p *Projector) Project(logs []domain.EventRecord, now time.Time) []domain.ActiveEvent {
	nowNS := now.UnixNano()
	window := int64(p.recency)
	seen := make(map[string]struct{})
	out := make([]domain.ActiveEvent, 0)
	for _, rec := range logs {
		if nowNS-secondsToNanos(rec.Timestamp) >= window {
			continue
		}
		key := EventKey(rec)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, project(key, rec))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func project(key string, rec domain.EventRecord) domain.ActiveEvent {
	ev := domain.ActiveEvent{
		Key:           key,
		OriginAddress: rec.OriginAddress,
		Timestamp:     rec.Timestamp,
		Severity:      rec.ThreatLevel,
		Style:         StyleFor(rec.ThreatLevel),
		MLScore:       rec.MLScore,
	}
	geo := rec.Geo
	if geo.Valid() {
		ev.PositionSource = domain.PositionFromGeo
	} else {
		fallback := FallbackGeo(rec.OriginAddress)
		geo = &fallback
		ev.PositionSource = domain.PositionFromFallback
	}
	ev.Position = domain.Position{Lat: geo.Lat, Lng: geo.Lng}
	ev.Label = rec.OriginAddress
	if geo.Name != "" {
		ev.Label += " · " + geo.Name
	}
	return ev
}
