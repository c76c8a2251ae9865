package domain

import (
	"math"
	"strings"
	"time"
)

// ThreatLevel is the severity the authority assigned to an event.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// ParseThreatLevel normalises a wire value. Unknown or empty values map to LOW
// so a malformed record can never inflate the rate series.
func ParseThreatLevel(raw string) ThreatLevel {
	switch ThreatLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case ThreatHigh:
		return ThreatHigh
	case ThreatMedium:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// Elevated reports whether events of this level count towards the threat rate.
func (l ThreatLevel) Elevated() bool {
	return l == ThreatMedium || l == ThreatHigh
}

// Geo is the optional location the authority attached to an event.
type Geo struct {
	Lat       float64
	Lng       float64
	Name      string
	Continent string
}

// Valid reports whether the coordinates are usable on a map.
func (g *Geo) Valid() bool {
	if g == nil {
		return false
	}
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lng) {
		return false
	}
	return g.Lat >= -90 && g.Lat <= 90 && g.Lng >= -180 && g.Lng <= 180
}

// EventRecord is one scored request observed by the authority. Records are
// immutable once received.
type EventRecord struct {
	Timestamp     float64
	OriginAddress string
	Path          string
	Method        string
	UserAgent     string
	StatusCode    int
	MLScore       float64
	ThreatLevel   ThreatLevel
	Geo           *Geo
}

// Time converts the wall-clock seconds to a time.Time.
func (e EventRecord) Time() time.Time {
	return SecondsToTime(e.Timestamp)
}

// Allowed mirrors the authority's status convention: 200 means the request
// was let through, anything else was denied.
func (e EventRecord) Allowed() bool {
	return e.StatusCode == 200
}

// DetectionRecord flags an actor regardless of whether it has been blocked.
type DetectionRecord struct {
	OriginAddress string
	Reason        string
	Timestamp     float64
}

// SecondsToTime converts fractional Unix seconds to a UTC time.
func SecondsToTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

// TimeToSeconds converts a time to fractional Unix seconds.
func TimeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
