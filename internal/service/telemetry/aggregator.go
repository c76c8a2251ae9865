package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
)

const (
	DefaultBucketWidth = 10 * time.Second
	DefaultBucketCount = 12
)

// Aggregator bins elevated events into a fixed-length series of buckets
// aligned to wall-clock multiples of the bucket width. It holds no state
// between calls.
type Aggregator struct {
	width time.Duration
	count int
}

// NewAggregator returns an aggregator; non-positive arguments fall back to
// 10 s x 12.
func NewAggregator(width time.Duration, count int) *Aggregator {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	if count <= 0 {
		count = DefaultBucketCount
	}
	return &Aggregator{width: width, count: count}
}

// Width reports the bucket width.
func (a *Aggregator) Width() time.Duration { return a.width }

// Aggregate rebuilds the series from logs as of now. The window ends at the
// first bucket boundary at or after now, so the last bucket is the one
// currently filling. Events that are LOW, outside the window, or stamped
// after now are ignored.
func (a *Aggregator) Aggregate(logs []domain.EventRecord, now time.Time) domain.Series {
	w := int64(a.width)
	n := int64(a.count)
	nowNS := now.UnixNano()
	end := ceilDiv(nowNS, w) * w
	start := end - n*w

	counts := make([]int, a.count)
	for _, rec := range logs {
		if !rec.ThreatLevel.Elevated() {
			continue
		}
		ts := secondsToNanos(rec.Timestamp)
		if ts > nowNS {
			continue
		}
		idx := floorDiv(ts-start, w)
		if idx < 0 || idx >= n {
			continue
		}
		counts[idx]++
	}

	series := domain.Series{
		Buckets:    make([]domain.Bucket, a.count),
		Width:      a.width,
		WidthLabel: widthLabel(a.width),
	}
	total := 0
	for i, c := range counts {
		series.Buckets[i] = domain.Bucket{
			Start: time.Unix(0, start+int64(i)*w).UTC(),
			Count: c,
		}
		total += c
		if c > series.Peak {
			series.Peak = c
		}
	}
	series.Mean = math.Round(float64(total)/float64(a.count)*10) / 10
	return series
}

func widthLabel(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10) + "S"
	}
	return strings.ToUpper(d.String())
}

func secondsToNanos(seconds float64) int64 {
	return int64(math.Round(seconds * 1e9))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}
