package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/animator"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/clock"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/poller"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/telemetry"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/ws"
)

const (
	defaultFrameBroadcastEvery = 4
	defaultFeedLimit           = 25
)

// Options tunes the composition.
type Options struct {
	FrameBroadcastEvery int
	FeedLimit           int
}

// Service recomputes derived views whenever a snapshot lands or the clock
// ticks, feeds the animator and publishes everything to the hub.
type Service struct {
	poller     *poller.Poller
	animator   *animator.Animator
	hub        *ws.Hub
	aggregator *telemetry.Aggregator
	projector  *telemetry.Projector
	clock      *clock.Ticker
	opts       Options
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	snapshot domain.Snapshot
	view     View
	frame    domain.Frame

	// last view handed to the hub
	pubMu  sync.Mutex
	pubSeq uint64
	pubAt  time.Time
}

// New wires the service and subscribes it to the poller.
func New(p *poller.Poller, anim *animator.Animator, hub *ws.Hub, agg *telemetry.Aggregator, proj *telemetry.Projector, clk *clock.Ticker, opts Options, logger *slog.Logger) *Service {
	if opts.FrameBroadcastEvery <= 0 {
		opts.FrameBroadcastEvery = defaultFrameBroadcastEvery
	}
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = defaultFeedLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		poller:     p,
		animator:   anim,
		hub:        hub,
		aggregator: agg,
		projector:  proj,
		clock:      clk,
		opts:       opts,
		logger:     logger.With("component", "dashboard"),
		now:        time.Now,
	}
	s.view = s.build(domain.Snapshot{}, s.now())
	p.Subscribe(s.onSnapshot)
	return s
}

// Run drives the clock and the animator until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.clock.Run(ctx, s.onTick)
		return nil
	})
	g.Go(func() error {
		s.animator.Run(ctx, s.onFrame)
		return nil
	})
	s.logger.Info("dashboard service started", "clock_interval", s.clock.Interval(), "frame_broadcast_every", s.opts.FrameBroadcastEvery)
	err := g.Wait()
	s.logger.Info("dashboard service stopped")
	return err
}

// View returns the most recently computed view.
func (s *Service) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Frame returns the most recent animation frame.
func (s *Service) Frame() domain.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Block forwards an operator block to the authority.
func (s *Service) Block(ctx context.Context, address string) (poller.CommandTicket, error) {
	return s.poller.Block(ctx, address)
}

// Unblock forwards an operator unblock to the authority.
func (s *Service) Unblock(ctx context.Context, address string) (poller.CommandTicket, error) {
	return s.poller.Unblock(ctx, address)
}

// Health reports ok until the snapshot goes stale.
func (s *Service) Health() Health {
	st := s.poller.Status()
	status := "ok"
	if st.Stale {
		status = "degraded"
	}
	frame := s.Frame()
	cfg := s.animator.Config()
	return Health{
		Status:      status,
		Sync:        st,
		Subscribers: s.hub.Subscribers(),
		Animator: AnimatorHealth{
			Mode:      string(cfg.Mode),
			Capacity:  cfg.Capacity,
			Live:      len(frame.Trajectories),
			LastFrame: frame.Seq,
		},
	}
}

func (s *Service) onSnapshot(snap domain.Snapshot) {
	now := s.now()
	s.mu.Lock()
	s.snapshot = snap
	s.view = s.build(snap, now)
	view := s.view
	s.mu.Unlock()

	s.animator.Feed(view.Active)
	s.publishView(view)
}

func (s *Service) onTick(now time.Time) {
	s.mu.Lock()
	s.view = s.build(s.snapshot, now)
	view := s.view
	s.mu.Unlock()

	s.publishView(view)
	s.publish(ws.StreamClock, clockPayload{Now: now.UTC(), Unix: domain.TimeToSeconds(now)})
}

func (s *Service) onFrame(frame domain.Frame) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
	if frame.Seq%uint64(s.opts.FrameBroadcastEvery) == 0 || len(frame.Impacts) > 0 {
		s.publish(ws.StreamFrames, frame)
	}
}

type clockPayload struct {
	Now  time.Time `json:"now"`
	Unix float64   `json:"unix"`
}

// publishView drops views older than the last one published, so a tick
// built from the previous snapshot cannot replace a newer snapshot's view as
// the hub's latest.
func (s *Service) publishView(view View) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if view.Sequence < s.pubSeq || (view.Sequence == s.pubSeq && view.GeneratedAt.Before(s.pubAt)) {
		s.logger.Debug("skipping superseded view", "sequence", view.Sequence, "published_sequence", s.pubSeq)
		return
	}
	s.pubSeq, s.pubAt = view.Sequence, view.GeneratedAt
	s.publish(ws.StreamView, view)
}

func (s *Service) publish(stream string, v any) {
	payload, err := json.Marshal(map[string]any{"stream": stream, "data": v})
	if err != nil {
		s.logger.Warn("failed to marshal stream payload", "stream", stream, "error", err)
		return
	}
	s.hub.Broadcast(stream, payload)
}

func (s *Service) build(snap domain.Snapshot, now time.Time) View {
	view := View{
		GeneratedAt: now.UTC(),
		Sequence:    snap.Sequence,
		Counters: Counters{
			TotalRequests:    snap.TotalRequests,
			BlockedCount:     snap.BlockedCount,
			DetectedBotCount: snap.DetectedBotCount,
		},
		SecurityLevel:    snap.SecurityLevel(),
		MeanMLScore:      snap.MeanMLScore(),
		Series:           s.aggregator.Aggregate(snap.Logs, now),
		Active:           s.projector.Project(snap.Logs, now),
		Feed:             make([]FeedEntry, 0, min(len(snap.Logs), s.opts.FeedLimit)),
		Detections:       make([]DetectionView, 0, len(snap.Detections)),
		BlockedAddresses: append([]string{}, snap.BlockedAddresses...),
		Sync:             s.poller.Status(),
	}
	for i, rec := range snap.Logs {
		if i >= s.opts.FeedLimit {
			break
		}
		view.Feed = append(view.Feed, FeedEntry{
			Timestamp:     rec.Timestamp,
			OriginAddress: rec.OriginAddress,
			Method:        rec.Method,
			Path:          rec.Path,
			StatusCode:    rec.StatusCode,
			Allowed:       rec.Allowed(),
			ThreatLevel:   rec.ThreatLevel,
			MLScore:       rec.MLScore,
			Style:         telemetry.StyleFor(rec.ThreatLevel),
		})
	}
	for _, det := range snap.Detections {
		view.Detections = append(view.Detections, DetectionView{
			OriginAddress: det.OriginAddress,
			Reason:        det.Reason,
			Timestamp:     det.Timestamp,
			Blocked:       snap.IsBlocked(det.OriginAddress),
		})
	}
	return view
}
