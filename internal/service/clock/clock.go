package clock

import (
	"context"
	"time"
)

const defaultInterval = time.Second

// Ticker drives wall-clock dependent views on its own cadence, independent
// of snapshot polling.
type Ticker struct {
	interval time.Duration
	now      func() time.Time
}

// New returns a ticker firing every interval (default 1s).
func New(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Ticker{interval: interval, now: time.Now}
}

// Interval reports the tick period.
func (t *Ticker) Interval() time.Duration { return t.interval }

// Run calls fn once immediately and then on every tick until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context, fn func(time.Time)) {
	if t == nil || fn == nil {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	fn(t.now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}
