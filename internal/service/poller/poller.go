package poller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
)

const (
	defaultInterval       = 2 * time.Second
	defaultRequestTimeout = 5 * time.Second
	resultBuffer          = 8
)

// Fetcher is the slice of the authority API the poller needs.
type Fetcher interface {
	FetchStats(ctx context.Context, seq uint64) (client.Stats, error)
	Block(ctx context.Context, address string) (client.CommandResult, error)
	Unblock(ctx context.Context, address string) (client.CommandResult, error)
}

// Metrics receives fetch and command outcomes.
type Metrics interface {
	ObserveFetch(outcome string, duration time.Duration)
	ObserveCommand(action, outcome string)
}

// Config tunes the poller. Zero values take defaults; BackoffMax of zero
// disables backoff.
type Config struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	BackoffMax     time.Duration
}

// Action names an operator command.
type Action string

const (
	ActionBlock   Action = "block"
	ActionUnblock Action = "unblock"
)

// CommandTicket identifies a command that has been accepted for delivery.
// Acceptance says nothing about the authority's verdict; the next applied
// snapshot does.
type CommandTicket struct {
	ID       string    `json:"id"`
	Action   Action    `json:"action"`
	Address  string    `json:"address"`
	IssuedAt time.Time `json:"issued_at"`
}

// Status describes the health of the sync loop.
type Status struct {
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Stale               bool      `json:"stale"`
	AppliedSeq          uint64    `json:"applied_seq"`
	IssuedSeq           uint64    `json:"issued_seq"`
}

type fetchResult struct {
	seq      uint64
	stats    client.Stats
	err      error
	duration time.Duration
}

// Poller keeps the latest authority snapshot and relays operator commands.
// The snapshot only ever changes by wholesale replacement from a fetch.
type Poller struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time

	results chan fetchResult
	force   chan struct{}
	done    chan struct{}
	stop    sync.Once

	// loop-owned
	backoff     *backoff.ExponentialBackOff
	resumeAfter time.Time

	mu       sync.RWMutex
	snapshot domain.Snapshot
	status   Status
	subs     []func(domain.Snapshot)
}

// New constructs a poller around fetcher.
func New(fetcher Fetcher, cfg Config, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Poller{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With("component", "poller"),
		now:     time.Now,
		results: make(chan fetchResult, resultBuffer),
		force:   make(chan struct{}, resultBuffer),
		done:    make(chan struct{}),
	}
	if cfg.BackoffMax > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.Interval
		b.MaxInterval = cfg.BackoffMax
		p.backoff = b
	}
	return p
}

// SetMetrics attaches an outcome observer. Call before Run.
func (p *Poller) SetMetrics(m Metrics) {
	if p != nil {
		p.metrics = m
	}
}

// Subscribe registers fn to receive every applied snapshot. Subscribers run
// on the poll loop in registration order and must not block.
func (p *Poller) Subscribe(fn func(domain.Snapshot)) {
	if p == nil || fn == nil {
		return
	}
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Snapshot returns a copy of the latest applied snapshot, or the zero
// snapshot before the first successful fetch.
func (p *Poller) Snapshot() domain.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Clone()
}

// Status reports the sync loop health.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Run fetches immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p == nil {
		return
	}
	defer p.stop.Do(func() { close(p.done) })

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.cfg.Interval, "request_timeout", p.cfg.RequestTimeout, "backoff_max", p.cfg.BackoffMax)
	p.issue(ctx, false)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.issue(ctx, false)
		case <-p.force:
			p.issue(ctx, true)
		case res := <-p.results:
			p.apply(res)
		}
	}
}

// Block asks the authority to block address and schedules a resync once the
// command settles. The local snapshot is never edited.
func (p *Poller) Block(ctx context.Context, address string) (CommandTicket, error) {
	return p.command(ctx, ActionBlock, address)
}

// Unblock asks the authority to lift a block and schedules a resync once the
// command settles.
func (p *Poller) Unblock(ctx context.Context, address string) (CommandTicket, error) {
	return p.command(ctx, ActionUnblock, address)
}

func (p *Poller) command(ctx context.Context, action Action, address string) (CommandTicket, error) {
	if p == nil {
		return CommandTicket{}, errors.New("poller not initialised")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return CommandTicket{}, client.ErrInvalidAddress
	}
	ticket := CommandTicket{
		ID:       uuid.NewString(),
		Action:   action,
		Address:  address,
		IssuedAt: p.now().UTC(),
	}
	cmdCtx := context.WithoutCancel(ctx)
	go p.deliver(cmdCtx, ticket)
	return ticket, nil
}

func (p *Poller) deliver(ctx context.Context, ticket CommandTicket) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	ctx, span := otel.Tracer("netwatch/poller").Start(reqCtx, "command."+string(ticket.Action))
	span.SetAttributes(attribute.String("command.id", ticket.ID), attribute.String("command.address", ticket.Address))

	var (
		result client.CommandResult
		err    error
	)
	if ticket.Action == ActionBlock {
		result, err = p.fetcher.Block(ctx, ticket.Address)
	} else {
		result, err = p.fetcher.Unblock(ctx, ticket.Address)
	}
	cancel()

	outcome := "success"
	switch {
	case errors.Is(err, client.ErrCommandRejected):
		outcome = "rejected"
		p.logger.Warn("command rejected", "action", ticket.Action, "address", ticket.Address, "ticket", ticket.ID, "error", err)
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("command failed", "action", ticket.Action, "address", ticket.Address, "ticket", ticket.ID, "error", err)
	default:
		p.logger.Info("command accepted", "action", ticket.Action, "address", ticket.Address, "ticket", ticket.ID, "message", result.Message)
	}
	span.End()
	if p.metrics != nil {
		p.metrics.ObserveCommand(string(ticket.Action), outcome)
	}

	select {
	case p.force <- struct{}{}:
	case <-p.done:
	}
}

func (p *Poller) issue(ctx context.Context, forced bool) {
	if !forced && p.backoff != nil && p.now().Before(p.resumeAfter) {
		p.logger.Debug("skipping poll during backoff", "resume_after", p.resumeAfter)
		return
	}

	p.mu.Lock()
	p.status.IssuedSeq++
	seq := p.status.IssuedSeq
	p.mu.Unlock()

	go func() {
		started := p.now()
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
		reqCtx, span := otel.Tracer("netwatch/poller").Start(reqCtx, "poll.fetch")
		span.SetAttributes(attribute.Int64("poll.seq", int64(seq)), attribute.Bool("poll.forced", forced))
		stats, err := p.fetcher.FetchStats(reqCtx, seq)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		select {
		case p.results <- fetchResult{seq: seq, stats: stats, err: err, duration: p.now().Sub(started)}:
		case <-ctx.Done():
		}
	}()
}

func (p *Poller) apply(res fetchResult) {
	p.mu.Lock()
	if res.seq <= p.status.AppliedSeq {
		p.mu.Unlock()
		p.observeFetch("superseded", res.duration)
		p.logger.Debug("discarding superseded fetch", "seq", res.seq, "applied_seq", p.status.AppliedSeq)
		return
	}
	now := p.now()

	if res.err != nil {
		p.status.ConsecutiveFailures++
		p.status.LastFailure = now
		p.status.LastError = res.err.Error()
		p.status.Stale = true
		failures := p.status.ConsecutiveFailures
		p.mu.Unlock()

		if p.backoff != nil {
			wait := p.backoff.NextBackOff()
			if wait == backoff.Stop || wait > p.cfg.BackoffMax {
				wait = p.cfg.BackoffMax
			}
			p.resumeAfter = now.Add(wait)
		}
		p.observeFetch("error", res.duration)
		p.logger.Warn("snapshot fetch failed", "seq", res.seq, "consecutive_failures", failures, "error", res.err)
		return
	}

	snap := SnapshotFromStats(res.stats)
	snap.Sequence = res.seq
	p.snapshot = snap
	p.status.AppliedSeq = res.seq
	p.status.LastSuccess = now
	p.status.ConsecutiveFailures = 0
	p.status.LastError = ""
	p.status.Stale = false
	subs := append([]func(domain.Snapshot){}, p.subs...)
	p.mu.Unlock()

	if p.backoff != nil {
		p.backoff.Reset()
		p.resumeAfter = time.Time{}
	}
	p.observeFetch("success", res.duration)
	for _, fn := range subs {
		fn(snap.Clone())
	}
}

func (p *Poller) observeFetch(outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveFetch(outcome, d)
	}
}
