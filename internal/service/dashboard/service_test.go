package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/animator"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/clock"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/poller"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/telemetry"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/ws"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
)

type stubFetcher struct {
	mu    sync.Mutex
	stats client.Stats
	err   error
}

func (s *stubFetcher) FetchStats(context.Context, uint64) (client.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}

func (s *stubFetcher) Block(context.Context, string) (client.CommandResult, error) {
	return client.CommandResult{Success: true}, nil
}

func (s *stubFetcher) Unblock(context.Context, string) (client.CommandResult, error) {
	return client.CommandResult{Success: true}, nil
}

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads []string
}

func (r *recordingSubscriber) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(p))
	return nil
}

func (r *recordingSubscriber) Close() {}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ptr(v float64) *float64 { return &v }

type fixture struct {
	svc     *Service
	poll    *poller.Poller
	hub     *ws.Hub
	fetcher *stubFetcher
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now()
	ts := domain.TimeToSeconds(now) - 1
	fetcher := &stubFetcher{stats: client.Stats{
		TotalRequests:  120,
		BlockedIPs:     1,
		BlockedIPsList: []string{"10.0.0.9"},
		DetectedBots:   2,
		Logs: []client.LogEntry{
			{IP: "10.0.0.9", Timestamp: ts, ThreatLevel: "HIGH", Status: 403, MLScore: ptr(0.9)},
			{IP: "10.0.0.7", Timestamp: ts - 0.5, ThreatLevel: "LOW", Status: 200, MLScore: ptr(0.1)},
		},
		Detections: []client.Detection{
			{IP: "10.0.0.9", Reason: "Manual Block", Timestamp: ts},
			{IP: "10.0.0.8", Reason: "Rate Limit Exceeded", Timestamp: ts},
		},
	}}

	hub := ws.NewHub()
	p := poller.New(fetcher, poller.Config{Interval: time.Hour}, nil)
	anim := animator.New(animator.Config{FrameInterval: 5 * time.Millisecond}, nil)
	svc := New(p, anim, hub,
		telemetry.NewAggregator(10*time.Second, 12),
		telemetry.NewProjector(10*time.Second),
		clock.New(time.Hour),
		Options{FrameBroadcastEvery: 1},
		nil,
	)
	svc.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); hub.Run(ctx) }()
	go func() { defer wg.Done(); _ = svc.Run(ctx) }()
	go func() { defer wg.Done(); p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return &fixture{svc: svc, poll: p, hub: hub, fetcher: fetcher, now: now}
}

func TestViewReflectsSnapshot(t *testing.T) {
	f := newFixture(t)
	waitFor(t, "view", func() bool { return f.svc.View().Counters.TotalRequests == 120 })

	view := f.svc.View()
	if view.SecurityLevel != domain.SecurityCritical {
		t.Fatalf("expected CRITICAL, got %s", view.SecurityLevel)
	}
	if len(view.Active) != 2 || view.Active[0].OriginAddress != "10.0.0.9" {
		t.Fatalf("unexpected active set %+v", view.Active)
	}
	if len(view.Feed) != 2 || view.Feed[1].Allowed != true || view.Feed[0].Allowed {
		t.Fatalf("unexpected feed %+v", view.Feed)
	}
	total := 0
	for _, b := range view.Series.Buckets {
		total += b.Count
	}
	if total != 1 {
		t.Fatalf("expected only the HIGH event in the series, got %d", total)
	}
	if len(view.Detections) != 2 || !view.Detections[0].Blocked || view.Detections[1].Blocked {
		t.Fatalf("unexpected detection flags %+v", view.Detections)
	}
	if view.MeanMLScore < 0.4999 || view.MeanMLScore > 0.5001 {
		t.Fatalf("expected mean score 0.5, got %v", view.MeanMLScore)
	}
}

func TestTickExpiresActiveEvents(t *testing.T) {
	f := newFixture(t)
	waitFor(t, "view", func() bool { return len(f.svc.View().Active) == 2 })

	f.svc.onTick(f.now.Add(30 * time.Second))
	if got := len(f.svc.View().Active); got != 0 {
		t.Fatalf("expected active set to expire on tick, got %d", got)
	}
	if f.svc.View().Counters.TotalRequests != 120 {
		t.Fatalf("tick must keep the current snapshot")
	}
}

func TestStreamsArePublished(t *testing.T) {
	f := newFixture(t)
	views := &recordingSubscriber{}
	frames := &recordingSubscriber{}
	f.hub.Register(ws.StreamView, views)
	f.hub.Register(ws.StreamFrames, frames)

	waitFor(t, "view payload", func() bool { return views.count() > 0 })
	waitFor(t, "frame payload", func() bool { return frames.count() > 0 })

	views.mu.Lock()
	last := views.payloads[len(views.payloads)-1]
	views.mu.Unlock()
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(last), &envelope); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if envelope.Stream != ws.StreamView || !strings.Contains(string(envelope.Data), "security_level") {
		t.Fatalf("unexpected view payload %s", last)
	}

	waitFor(t, "trajectories", func() bool { return len(f.svc.Frame().Trajectories) > 0 || f.svc.Frame().Spawned > 0 })
}

func TestHealthDegradesWhenStale(t *testing.T) {
	f := newFixture(t)
	waitFor(t, "first snapshot", func() bool { return f.svc.View().Counters.TotalRequests == 120 })
	if h := f.svc.Health(); h.Status != "ok" {
		t.Fatalf("expected ok, got %s", h.Status)
	}

	f.fetcher.mu.Lock()
	f.fetcher.err = errors.New("authority down")
	f.fetcher.mu.Unlock()
	if _, err := f.svc.Block(context.Background(), "10.0.0.8"); err != nil {
		t.Fatalf("block: %v", err)
	}
	waitFor(t, "stale status", func() bool { return f.svc.Health().Status == "degraded" })
	if f.svc.View().Counters.TotalRequests != 120 {
		t.Fatalf("expected last snapshot to be kept")
	}
}

type stalledSubscriber struct {
	release chan struct{}
}

func (s *stalledSubscriber) Send([]byte) error {
	<-s.release
	return nil
}

func (s *stalledSubscriber) Close() {}

func TestStalledSubscriberDoesNotStopSync(t *testing.T) {
	fetcher := &stubFetcher{stats: client.Stats{TotalRequests: 1}}
	hub := ws.NewHub()
	p := poller.New(fetcher, poller.Config{Interval: 10 * time.Millisecond}, nil)
	anim := animator.New(animator.Config{FrameInterval: 5 * time.Millisecond}, nil)
	svc := New(p, anim, hub,
		telemetry.NewAggregator(0, 0),
		telemetry.NewProjector(0),
		clock.New(10*time.Millisecond),
		Options{FrameBroadcastEvery: 1},
		nil,
	)

	stalled := &stalledSubscriber{release: make(chan struct{})}
	defer close(stalled.release)
	hub.Register(ws.StreamView, stalled)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); hub.Run(ctx) }()
	go func() { defer wg.Done(); _ = svc.Run(ctx) }()
	go func() { defer wg.Done(); p.Run(ctx) }()

	waitFor(t, "first snapshots", func() bool { return p.Status().AppliedSeq >= 3 })
	before := p.Status().AppliedSeq
	waitFor(t, "sync to keep applying", func() bool { return p.Status().AppliedSeq >= before+10 })

	cancel()
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("components did not stop after cancel")
	}
}

func TestOlderViewIsNotPublishedAfterNewer(t *testing.T) {
	hub := ws.NewHub()
	p := poller.New(&stubFetcher{}, poller.Config{Interval: time.Hour}, nil)
	svc := New(p, animator.New(animator.Config{}, nil), hub,
		telemetry.NewAggregator(0, 0), telemetry.NewProjector(0), clock.New(time.Hour), Options{}, nil)
	views := &recordingSubscriber{}
	hub.Register(ws.StreamView, views)

	base := time.Unix(1_700_000_000, 0).UTC()
	svc.publishView(View{Sequence: 5, GeneratedAt: base})
	svc.publishView(View{Sequence: 4, GeneratedAt: base.Add(time.Second)})
	svc.publishView(View{Sequence: 5, GeneratedAt: base.Add(-time.Second)})
	svc.publishView(View{Sequence: 5, GeneratedAt: base.Add(2 * time.Second)})

	waitFor(t, "published views", func() bool { return views.count() >= 2 })
	time.Sleep(20 * time.Millisecond)

	views.mu.Lock()
	payloads := append([]string(nil), views.payloads...)
	views.mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 published views, got %d", len(payloads))
	}
	var last struct {
		Data View `json:"data"`
	}
	if err := json.Unmarshal([]byte(payloads[1]), &last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if last.Data.Sequence != 5 || !last.Data.GeneratedAt.Equal(base.Add(2*time.Second)) {
		t.Fatalf("unexpected last view seq=%d at=%s", last.Data.Sequence, last.Data.GeneratedAt)
	}
}
