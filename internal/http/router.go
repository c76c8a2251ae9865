package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/dashboard"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/poller"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/ws"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
)

// Dashboard is the service surface the router exposes.
type Dashboard interface {
	View() dashboard.View
	Frame() domain.Frame
	Health() dashboard.Health
	Block(ctx context.Context, address string) (poller.CommandTicket, error)
	Unblock(ctx context.Context, address string) (poller.CommandTicket, error)
}

// Options configures the router. Command budgets are per minute.
type Options struct {
	CommandRateLimit  int
	AddressRateLimit  int
	OperatorSecret    string
	HeartbeatInterval time.Duration
}

// Router wires HTTP endpoints to the dashboard service.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	dashboard      Dashboard
	hub            *ws.Hub
	metrics        *Metrics
	upgrader       websocket.Upgrader
	limiter        CommandLimiter
	operatorSecret string
	commandLimit   int
	addressLimit   int
	heartbeat      time.Duration
}

const (
	maxCommandBodySize = 4096
	defaultHeartbeat   = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, svc Dashboard, hub *ws.Hub, limiter CommandLimiter, metrics *Metrics, opts Options) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		dashboard: svc,
		hub:       hub,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:        limiter,
		operatorSecret: strings.TrimSpace(opts.OperatorSecret),
		commandLimit:   opts.CommandRateLimit,
		addressLimit:   opts.AddressRateLimit,
		heartbeat:      opts.HeartbeatInterval,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryCommandLimiter()
	}
	if r.commandLimit <= 0 {
		r.commandLimit = defaultCallerBudget
	}
	if r.addressLimit <= 0 {
		r.addressLimit = defaultAddressBudget
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.instrument("/healthz", r.handleHealthz)))
	if r.metrics != nil {
		r.mux.Handle("/metrics", r.metrics.Handler())
	}
	r.mux.HandleFunc("/api/view", r.audit(r.instrument("/api/view", r.handleView)))
	r.mux.HandleFunc("/api/frame", r.audit(r.instrument("/api/frame", r.handleFrame)))
	r.mux.HandleFunc("/api/block", r.audit(r.instrument("/api/block", r.requireOperator(r.handleCommand("/api/block", poller.ActionBlock)))))
	r.mux.HandleFunc("/api/unblock", r.audit(r.instrument("/api/unblock", r.requireOperator(r.handleCommand("/api/unblock", poller.ActionUnblock)))))
	r.mux.HandleFunc("/ws/", r.audit(r.handleWS))
	r.mux.HandleFunc("/sse/", r.audit(r.handleSSE))
}

func (r *Router) handleView(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.dashboard.View())
}

func (r *Router) handleFrame(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.dashboard.Frame())
}

func (r *Router) handleCommand(route string, action poller.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		var payload struct {
			Address string `json:"address"`
			IP      string `json:"ip"`
		}
		if err := json.NewDecoder(io.LimitReader(req.Body, maxCommandBodySize)).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		address := strings.TrimSpace(payload.Address)
		if address == "" {
			address = strings.TrimSpace(payload.IP)
		}
		if address == "" {
			writeError(w, http.StatusBadRequest, "address is required")
			return
		}
		if !r.admitCommand(w, req, route, address) {
			return
		}

		var (
			ticket poller.CommandTicket
			err    error
		)
		if action == poller.ActionBlock {
			ticket, err = r.dashboard.Block(req.Context(), address)
		} else {
			ticket, err = r.dashboard.Unblock(req.Context(), address)
		}
		if err != nil {
			if errors.Is(err, client.ErrInvalidAddress) {
				writeError(w, http.StatusBadRequest, "address is required")
				return
			}
			r.logger.Error("command dispatch failed", "action", action, "error", err)
			writeError(w, http.StatusInternalServerError, "command dispatch failed")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"message": string(action) + " of " + ticket.Address + " queued",
			"ticket":  ticket,
		})
	}
}

func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	stream := strings.TrimPrefix(req.URL.Path, "/ws/")
	if !ws.ValidStream(stream) {
		r.notFound(w)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	c := ws.NewClient(conn, r.logger)
	r.hub.Register(stream, c)
	go func() {
		c.ReadLoop()
		r.hub.Unregister(stream, c)
	}()
}

func (r *Router) handleSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	stream := strings.TrimPrefix(req.URL.Path, "/sse/")
	if !ws.ValidStream(stream) {
		r.notFound(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c := ws.NewSSEClient(w, stream, r.logger)
	r.hub.Register(stream, c)
	defer r.hub.Unregister(stream, c)
	if err := c.Serve(req.Context(), r.heartbeat); err != nil {
		r.logger.Debug("sse stream ended", "stream", stream, "error", err)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	health := r.dashboard.Health()
	payload := map[string]any{
		"status":     health.Status,
		"components": health,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if health.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.metrics == nil {
			next(w, req)
			return
		}
		recorder, ok := w.(*statusRecorder)
		if !ok {
			recorder = &statusRecorder{ResponseWriter: w}
		}
		start := time.Now()
		next(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		r.metrics.recordRequest(req.Method, route, status, time.Since(start))
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "operator"
			fields = append(fields, "operator", info.Operator)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

// Unwrap lets http.ResponseController reach the connection for deadlines.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
