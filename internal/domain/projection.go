package domain

import "time"

// Position is a point on the world map in degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PositionSource records where an ActiveEvent's coordinates came from.
type PositionSource string

const (
	PositionFromGeo      PositionSource = "geo"
	PositionFromFallback PositionSource = "fallback"
)

// Style is the render class for a severity. It is a pure function of the
// threat level.
type Style struct {
	Class    string `json:"class"`
	Color    string `json:"color"`
	Priority int    `json:"priority"`
}

// ActiveEvent is a recent event mapped into a render-ready spatial object.
type ActiveEvent struct {
	Key            string         `json:"key"`
	OriginAddress  string         `json:"origin_address"`
	Timestamp      float64        `json:"timestamp"`
	Position       Position       `json:"position"`
	PositionSource PositionSource `json:"position_source"`
	Severity       ThreatLevel    `json:"severity"`
	Style          Style          `json:"style"`
	Label          string         `json:"label"`
	MLScore        float64        `json:"ml_score"`
}

// Trajectory is one animated attack travelling from its origin to the target.
type Trajectory struct {
	ID       uint64      `json:"id"`
	Key      string      `json:"key,omitempty"`
	Source   Position    `json:"source"`
	Target   Position    `json:"target"`
	Progress float64     `json:"progress"`
	Speed    float64     `json:"speed"`
	Severity ThreatLevel `json:"severity"`
	Style    Style       `json:"style"`
	// Impact is set on the tick the trajectory arrives; it is removed from
	// the pool on the following tick.
	Impact bool `json:"impact"`
}

// Current interpolates the trajectory head position.
func (t Trajectory) Current() Position {
	p := t.Progress
	if p > 1 {
		p = 1
	}
	return Position{
		Lat: t.Source.Lat + (t.Target.Lat-t.Source.Lat)*p,
		Lng: t.Source.Lng + (t.Target.Lng-t.Source.Lng)*p,
	}
}

// Frame is the animator state after one tick.
type Frame struct {
	Seq          uint64       `json:"seq"`
	At           time.Time    `json:"at"`
	Trajectories []Trajectory `json:"trajectories"`
	Impacts      []Trajectory `json:"impacts"`
	Spawned      int          `json:"spawned"`
	Dropped      int          `json:"dropped"`
}
