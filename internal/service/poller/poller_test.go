package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
)

type stubFetcher struct {
	mu       sync.Mutex
	fetches  int
	seqs     []uint64
	fetchFn  func(ctx context.Context, seq uint64) (client.Stats, error)
	commands []string
	cmdErr   error
}

func (s *stubFetcher) FetchStats(ctx context.Context, seq uint64) (client.Stats, error) {
	s.mu.Lock()
	s.fetches++
	s.seqs = append(s.seqs, seq)
	fn := s.fetchFn
	s.mu.Unlock()
	if fn == nil {
		return client.Stats{}, nil
	}
	return fn(ctx, seq)
}

func (s *stubFetcher) Block(ctx context.Context, address string) (client.CommandResult, error) {
	return s.command("block " + address)
}

func (s *stubFetcher) Unblock(ctx context.Context, address string) (client.CommandResult, error) {
	return s.command("unblock " + address)
}

func (s *stubFetcher) command(entry string) (client.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, entry)
	if s.cmdErr != nil {
		return client.CommandResult{}, s.cmdErr
	}
	return client.CommandResult{Success: true, Message: "ok"}, nil
}

func (s *stubFetcher) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type stubMetrics struct {
	mu       sync.Mutex
	fetches  map[string]int
	commands map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{fetches: map[string]int{}, commands: map[string]int{}}
}

func (m *stubMetrics) ObserveFetch(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[outcome]++
}

func (m *stubMetrics) ObserveCommand(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[action+":"+outcome]++
}

func (m *stubMetrics) fetch(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[outcome]
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

func startPoller(t *testing.T, p *Poller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestZeroSnapshotBeforeFirstFetch(t *testing.T) {
	p := New(&stubFetcher{}, Config{}, nil)
	snap := p.Snapshot()
	if snap.TotalRequests != 0 || len(snap.Logs) != 0 || len(snap.BlockedAddresses) != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
	if st := p.Status(); st.Stale || st.AppliedSeq != 0 {
		t.Fatalf("unexpected initial status %+v", st)
	}
}

func TestRunAppliesSnapshotAndNotifiesInOrder(t *testing.T) {
	fetcher := &stubFetcher{fetchFn: func(context.Context, uint64) (client.Stats, error) {
		return client.Stats{
			TotalRequests:  9,
			BlockedIPsList: []string{"10.0.0.9"},
			Logs:           []client.LogEntry{{IP: "10.0.0.9", ThreatLevel: "HIGH", Timestamp: 1}},
		}, nil
	}}
	p := New(fetcher, Config{Interval: time.Hour}, nil)

	var mu sync.Mutex
	var order []string
	p.Subscribe(func(s domain.Snapshot) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		s.Logs[0].OriginAddress = "mutated"
	})
	p.Subscribe(func(domain.Snapshot) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})
	startPoller(t, p)

	waitFor(t, "first snapshot", func() bool { return p.Snapshot().TotalRequests == 9 })
	waitFor(t, "subscribers", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	mu.Lock()
	if order[0] != "first" || order[1] != "second" {
		t.Fatalf("subscribers notified out of order: %v", order)
	}
	mu.Unlock()
	snap := p.Snapshot()
	if snap.Logs[0].OriginAddress != "10.0.0.9" {
		t.Fatalf("subscriber mutation leaked into owned snapshot")
	}
	if !snap.IsBlocked("10.0.0.9") {
		t.Fatalf("expected blocklist from authority")
	}
	if snap.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", snap.Sequence)
	}
}

func TestFailureRetainsSnapshot(t *testing.T) {
	var calls int
	var mu sync.Mutex
	fetcher := &stubFetcher{fetchFn: func(context.Context, uint64) (client.Stats, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return client.Stats{TotalRequests: 5}, nil
		}
		return client.Stats{}, errors.New("connection refused")
	}}
	p := New(fetcher, Config{Interval: 10 * time.Millisecond}, nil)
	startPoller(t, p)

	waitFor(t, "a failed poll", func() bool { return p.Status().ConsecutiveFailures >= 2 })
	st := p.Status()
	if !st.Stale || st.LastError == "" {
		t.Fatalf("expected stale status with error, got %+v", st)
	}
	if p.Snapshot().TotalRequests != 5 {
		t.Fatalf("expected previous snapshot to be retained")
	}
}

func TestCommandTriggersExactlyOneForcedFetch(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "success"},
		{name: "rejected", err: client.ErrCommandRejected},
		{name: "failure", err: errors.New("timeout")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &stubFetcher{cmdErr: tc.err}
			metrics := newStubMetrics()
			p := New(fetcher, Config{Interval: time.Hour}, nil)
			p.SetMetrics(metrics)
			startPoller(t, p)
			waitFor(t, "initial fetch", func() bool { return metrics.fetch("success") == 1 })

			ticket, err := p.Block(context.Background(), " 1.2.3.4 ")
			if err != nil {
				t.Fatalf("block: %v", err)
			}
			if ticket.ID == "" || ticket.Action != ActionBlock || ticket.Address != "1.2.3.4" {
				t.Fatalf("unexpected ticket %+v", ticket)
			}
			if p.Snapshot().IsBlocked("1.2.3.4") {
				t.Fatalf("block must not edit the local snapshot")
			}

			waitFor(t, "forced fetch", func() bool { return fetcher.fetchCount() == 2 })
			time.Sleep(50 * time.Millisecond)
			if got := fetcher.fetchCount(); got != 2 {
				t.Fatalf("expected exactly one forced fetch, got %d fetches", got)
			}
			fetcher.mu.Lock()
			defer fetcher.mu.Unlock()
			if len(fetcher.commands) != 1 || fetcher.commands[0] != "block 1.2.3.4" {
				t.Fatalf("unexpected commands %v", fetcher.commands)
			}
		})
	}
}

func TestUnblockRequiresAddress(t *testing.T) {
	p := New(&stubFetcher{}, Config{}, nil)
	if _, err := p.Unblock(context.Background(), "   "); !errors.Is(err, client.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestOutOfOrderCompletionIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{fetchFn: func(ctx context.Context, seq uint64) (client.Stats, error) {
		if seq == 1 {
			select {
			case <-release:
			case <-ctx.Done():
				return client.Stats{}, ctx.Err()
			}
			return client.Stats{TotalRequests: 1}, nil
		}
		return client.Stats{TotalRequests: int64(seq)}, nil
	}}
	metrics := newStubMetrics()
	p := New(fetcher, Config{Interval: time.Hour}, nil)
	p.SetMetrics(metrics)
	startPoller(t, p)

	waitFor(t, "first request issued", func() bool { return fetcher.fetchCount() == 1 })
	if _, err := p.Unblock(context.Background(), "5.6.7.8"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	waitFor(t, "newer snapshot", func() bool { return p.Snapshot().TotalRequests == 2 })

	close(release)
	waitFor(t, "superseded completion", func() bool { return metrics.fetch("superseded") == 1 })
	if got := p.Snapshot().TotalRequests; got != 2 {
		t.Fatalf("older completion overwrote newer snapshot: total=%d", got)
	}
	if st := p.Status(); st.AppliedSeq != 2 || st.IssuedSeq != 2 {
		t.Fatalf("unexpected sequence status %+v", st)
	}
}

func TestForcedFetchBypassesBackoff(t *testing.T) {
	var mu sync.Mutex
	fail := true
	fetcher := &stubFetcher{fetchFn: func(context.Context, uint64) (client.Stats, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return client.Stats{}, errors.New("unavailable")
		}
		return client.Stats{TotalRequests: 3}, nil
	}}
	p := New(fetcher, Config{Interval: time.Hour, BackoffMax: time.Hour}, nil)
	startPoller(t, p)
	waitFor(t, "failed fetch", func() bool { return p.Status().ConsecutiveFailures == 1 })

	mu.Lock()
	fail = false
	mu.Unlock()
	if _, err := p.Block(context.Background(), "1.2.3.4"); err != nil {
		t.Fatalf("block: %v", err)
	}
	waitFor(t, "forced fetch during backoff", func() bool { return p.Snapshot().TotalRequests == 3 })
	if st := p.Status(); st.Stale || st.ConsecutiveFailures != 0 {
		t.Fatalf("expected success to clear failure state, got %+v", st)
	}
}
