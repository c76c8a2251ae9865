package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Commands are budgeted twice: once per caller (operator, or client IP when
// auth is off) and once per target address, so no combination of operators
// can flap an origin between blocked and unblocked.
const (
	budgetCaller  = "caller"
	budgetAddress = "address"

	commandWindow        = time.Minute
	defaultCallerBudget  = 30
	defaultAddressBudget = 6

	// the in-memory limiter prunes idle keys once it tracks this many
	memorySweepThreshold = 1024
)

// CommandLimiter admits commands against sliding-window budgets.
type CommandLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) budgetDecision
	Close()
}

// budgetDecision reports the outcome of one admission. Used counts the
// commands inside the window including this one when it was admitted;
// ResetAt is when the oldest of them leaves the window.
type budgetDecision struct {
	Allowed bool
	Used    int
	Limit   int
	ResetAt time.Time
}

// memoryCommandLimiter keeps the admission times of each key, oldest first.
type memoryCommandLimiter struct {
	mu    sync.Mutex
	now   func() time.Time
	admit map[string][]time.Time
}

// NewMemoryCommandLimiter returns a process-local limiter.
func NewMemoryCommandLimiter() CommandLimiter {
	return newMemoryCommandLimiter(time.Now)
}

func newMemoryCommandLimiter(now func() time.Time) *memoryCommandLimiter {
	return &memoryCommandLimiter{now: now, admit: make(map[string][]time.Time)}
}

func (m *memoryCommandLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) budgetDecision {
	if limit <= 0 {
		return budgetDecision{Allowed: true}
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.admit) >= memorySweepThreshold {
		m.sweep(now, window)
	}
	times := prune(m.admit[key], now.Add(-window))
	decision := budgetDecision{Limit: limit}
	if len(times) < limit {
		times = append(times, now)
		decision.Allowed = true
	}
	m.admit[key] = times
	decision.Used = len(times)
	decision.ResetAt = times[0].Add(window)
	return decision
}

// sweep forgets keys with nothing left inside the window.
func (m *memoryCommandLimiter) sweep(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	for key, times := range m.admit {
		if len(prune(times, cutoff)) == 0 {
			delete(m.admit, key)
		}
	}
}

func (m *memoryCommandLimiter) Close() {}

// prune drops admissions at or before cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// admitCommand charges the caller budget and then the address budget. It
// writes the 429 itself and reports false when either is exhausted. The
// rate headers describe the caller budget unless the address budget refused.
func (r *Router) admitCommand(w http.ResponseWriter, req *http.Request, route, address string) bool {
	ctx := req.Context()
	callerKey := commandCallerKey(req)
	decision := r.limiter.Allow(ctx, callerKey, r.commandLimit, commandWindow)
	budget := budgetCaller
	if decision.Allowed {
		if perAddress := r.limiter.Allow(ctx, "address:"+address, r.addressLimit, commandWindow); !perAddress.Allowed {
			decision = perAddress
			budget = budgetAddress
		}
	}
	setBudgetHeaders(w, decision)
	if decision.Allowed {
		return true
	}
	r.metrics.recordRateLimitHit(route, budget)
	r.logger.Warn("command budget exhausted", "route", route, "budget", budget, "caller", callerKey, "address", address)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func commandCallerKey(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.Operator != "" {
		return "operator:" + info.Operator
	}
	host := clientIP(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func setBudgetHeaders(w http.ResponseWriter, d budgetDecision) {
	if d.Limit <= 0 {
		return
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Limit-d.Used, 0)))
	if !d.ResetAt.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func clientIP(req *http.Request) string {
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
