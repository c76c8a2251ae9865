package dashboard

import (
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/poller"
)

// Counters are the headline numbers reported by the authority.
type Counters struct {
	TotalRequests    int64 `json:"total_requests"`
	BlockedCount     int   `json:"blocked_count"`
	DetectedBotCount int   `json:"detected_bot_count"`
}

// FeedEntry is one row of the live traffic feed.
type FeedEntry struct {
	Timestamp     float64            `json:"timestamp"`
	OriginAddress string             `json:"origin_address"`
	Method        string             `json:"method,omitempty"`
	Path          string             `json:"path"`
	StatusCode    int                `json:"status_code"`
	Allowed       bool               `json:"allowed"`
	ThreatLevel   domain.ThreatLevel `json:"threat_level"`
	MLScore       float64            `json:"ml_score"`
	Style         domain.Style       `json:"style"`
}

// DetectionView is a flagged actor with its current block state.
type DetectionView struct {
	OriginAddress string  `json:"origin_address"`
	Reason        string  `json:"reason"`
	Timestamp     float64 `json:"timestamp"`
	Blocked       bool    `json:"blocked"`
}

// View is everything the operator screen renders, derived from one snapshot
// at one instant.
type View struct {
	GeneratedAt      time.Time            `json:"generated_at"`
	Sequence         uint64               `json:"sequence"`
	Counters         Counters             `json:"counters"`
	SecurityLevel    domain.SecurityLevel `json:"security_level"`
	MeanMLScore      float64              `json:"mean_ml_score"`
	Series           domain.Series        `json:"series"`
	Active           []domain.ActiveEvent `json:"active"`
	Feed             []FeedEntry          `json:"feed"`
	Detections       []DetectionView      `json:"detections"`
	BlockedAddresses []string             `json:"blocked_addresses"`
	Sync             poller.Status        `json:"sync"`
}

// Health summarises component state for /healthz.
type Health struct {
	Status      string         `json:"status"`
	Sync        poller.Status  `json:"sync"`
	Subscribers map[string]int `json:"subscribers"`
	Animator    AnimatorHealth `json:"animator"`
}

// AnimatorHealth describes the animation pool.
type AnimatorHealth struct {
	Mode      string `json:"mode"`
	Capacity  int    `json:"capacity"`
	Live      int    `json:"live"`
	LastFrame uint64 `json:"last_frame"`
}
