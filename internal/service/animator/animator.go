package animator

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/telemetry"
)

// Mode selects where new trajectories come from.
type Mode string

const (
	// ModeTelemetry spawns one trajectory per newly active event.
	ModeTelemetry Mode = "telemetry"
	// ModeSynthetic spawns random attacks for demos.
	ModeSynthetic Mode = "synthetic"
)

const (
	defaultCapacity      = 64
	defaultSpawnChance   = 0.05
	defaultHighRatio     = 0.2
	defaultSpeedMin      = 0.6
	defaultSpeedMax      = 1.8
	defaultFrameInterval = time.Second / 60
	defaultMaxStep       = 250 * time.Millisecond
	feedBuffer           = 16
)

// ParseMode maps a config string to a Mode, defaulting to telemetry.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeSynthetic)) {
		return ModeSynthetic
	}
	return ModeTelemetry
}

// Metrics receives per-frame pool statistics.
type Metrics interface {
	ObserveFrame(live, spawned, dropped int)
}

// Config tunes the animator. Zero values take defaults.
type Config struct {
	Capacity      int
	Mode          Mode
	SpawnChance   float64
	HighRatio     float64
	SpeedMin      float64
	SpeedMax      float64
	Target        domain.Position
	FrameInterval time.Duration
	MaxStep       time.Duration
	Rand          *rand.Rand
	Metrics       Metrics
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = defaultCapacity
	}
	if c.Mode != ModeSynthetic {
		c.Mode = ModeTelemetry
	}
	if c.SpawnChance <= 0 {
		c.SpawnChance = defaultSpawnChance
	}
	if c.HighRatio <= 0 {
		c.HighRatio = defaultHighRatio
	}
	if c.SpeedMin <= 0 {
		c.SpeedMin = defaultSpeedMin
	}
	if c.SpeedMax <= 0 {
		c.SpeedMax = defaultSpeedMax
	}
	if c.SpeedMax < c.SpeedMin {
		c.SpeedMax = c.SpeedMin
	}
	if c.Target == (domain.Position{}) {
		c.Target = domain.Position{Lat: telemetry.Home.Lat, Lng: telemetry.Home.Lng}
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.MaxStep <= 0 {
		c.MaxStep = defaultMaxStep
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Animator owns a bounded pool of trajectories. Step must only be called from
// one goroutine at a time; Feed is safe from any goroutine.
type Animator struct {
	cfg    Config
	logger *slog.Logger

	feeds   chan []domain.ActiveEvent
	stopped chan struct{}
	stop    sync.Once

	pool    []domain.Trajectory
	pending []domain.ActiveEvent
	seen    map[string]struct{}
	last    time.Time
	nextID  uint64
	seq     uint64
}

// New constructs an animator.
func New(cfg Config, logger *slog.Logger) *Animator {
	cfg = cfg.withDefaults()
	if logger != nil {
		logger = logger.With("component", "animator")
	}
	return &Animator{
		cfg:     cfg,
		logger:  logger,
		feeds:   make(chan []domain.ActiveEvent, feedBuffer),
		stopped: make(chan struct{}),
		pool:    make([]domain.Trajectory, 0, cfg.Capacity),
		seen:    make(map[string]struct{}),
	}
}

// Config returns the effective configuration.
func (a *Animator) Config() Config {
	return a.cfg
}

// Feed hands the current active set to the animator. Keys not present in the
// previous feed are spawned on the next Step. Feeds sent after Run has
// returned are discarded.
func (a *Animator) Feed(active []domain.ActiveEvent) {
	if a == nil {
		return
	}
	batch := append([]domain.ActiveEvent(nil), active...)
	select {
	case a.feeds <- batch:
	case <-a.stopped:
	}
}

// Step advances the pool to now and returns the resulting frame.
func (a *Animator) Step(now time.Time) domain.Frame {
	a.drainFeeds()

	elapsed := time.Duration(0)
	if !a.last.IsZero() {
		elapsed = now.Sub(a.last)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > a.cfg.MaxStep {
		elapsed = a.cfg.MaxStep
	}
	a.last = now

	live := a.pool[:0]
	for _, tr := range a.pool {
		if !tr.Impact {
			live = append(live, tr)
		}
	}
	a.pool = live

	spawned, dropped := a.spawn()

	impacts := make([]domain.Trajectory, 0)
	dt := elapsed.Seconds()
	for i := range a.pool {
		tr := &a.pool[i]
		tr.Progress += tr.Speed * dt
		if tr.Progress >= 1 {
			tr.Progress = 1
			tr.Impact = true
			impacts = append(impacts, *tr)
		}
	}

	a.seq++
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.ObserveFrame(len(a.pool), spawned, dropped)
	}
	if dropped > 0 && a.logger != nil {
		a.logger.Debug("trajectory pool full", "dropped", dropped, "capacity", a.cfg.Capacity)
	}
	return domain.Frame{
		Seq:          a.seq,
		At:           now,
		Trajectories: append([]domain.Trajectory(nil), a.pool...),
		Impacts:      impacts,
		Spawned:      spawned,
		Dropped:      dropped,
	}
}

// Run steps the pool every frame interval and publishes each frame until ctx
// is cancelled.
func (a *Animator) Run(ctx context.Context, publish func(domain.Frame)) {
	if a == nil {
		return
	}
	defer a.stop.Do(func() { close(a.stopped) })

	ticker := time.NewTicker(a.cfg.FrameInterval)
	defer ticker.Stop()

	if a.logger != nil {
		a.logger.Info("animator started", "mode", a.cfg.Mode, "capacity", a.cfg.Capacity, "frame_interval", a.cfg.FrameInterval)
	}
	for {
		select {
		case <-ctx.Done():
			if a.logger != nil {
				a.logger.Info("animator stopped")
			}
			return
		case now := <-ticker.C:
			frame := a.Step(now)
			if publish != nil {
				publish(frame)
			}
		}
	}
}

func (a *Animator) drainFeeds() {
	for {
		select {
		case batch := <-a.feeds:
			a.accept(batch)
		default:
			return
		}
	}
}

func (a *Animator) accept(active []domain.ActiveEvent) {
	current := make(map[string]struct{}, len(active))
	for _, ev := range active {
		if _, dup := current[ev.Key]; dup {
			continue
		}
		current[ev.Key] = struct{}{}
		if _, known := a.seen[ev.Key]; known {
			continue
		}
		if a.cfg.Mode == ModeTelemetry {
			a.pending = append(a.pending, ev)
		}
	}
	a.seen = current
}

func (a *Animator) spawn() (spawned, dropped int) {
	switch a.cfg.Mode {
	case ModeSynthetic:
		if a.cfg.Rand.Float64() >= a.cfg.SpawnChance {
			return 0, 0
		}
		level := domain.ThreatMedium
		if a.cfg.Rand.Float64() < a.cfg.HighRatio {
			level = domain.ThreatHigh
		}
		geo := telemetry.RandomGeo(a.cfg.Rand)
		speed := a.speedFor(a.cfg.Rand.Float64())
		if a.add("", domain.Position{Lat: geo.Lat, Lng: geo.Lng}, level, speed) {
			return 1, 0
		}
		return 0, 1
	default:
		for _, ev := range a.pending {
			if a.add(ev.Key, ev.Position, ev.Severity, a.speedFor(ev.MLScore)) {
				spawned++
			} else {
				dropped++
			}
		}
		a.pending = a.pending[:0]
		return spawned, dropped
	}
}

func (a *Animator) add(key string, source domain.Position, level domain.ThreatLevel, speed float64) bool {
	if len(a.pool) >= a.cfg.Capacity {
		return false
	}
	a.nextID++
	a.pool = append(a.pool, domain.Trajectory{
		ID:       a.nextID,
		Key:      key,
		Source:   source,
		Target:   a.cfg.Target,
		Speed:    speed,
		Severity: level,
		Style:    telemetry.StyleFor(level),
	})
	return true
}

func (a *Animator) speedFor(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return a.cfg.SpeedMin + (a.cfg.SpeedMax-a.cfg.SpeedMin)*score
}
