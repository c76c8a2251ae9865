package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL   = "http://localhost:5000"
	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 4096
)

// ErrCommandRejected indicates the authority answered a block/unblock with
// success=false (for example the address was already blocked).
var ErrCommandRejected = errors.New("command rejected by authority")

// ErrInvalidAddress indicates an empty origin address was supplied.
var ErrInvalidAddress = errors.New("origin address required")

// Client provides typed access to the enforcement authority's dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			h := *c.httpClient
			h.Timeout = d
			c.httpClient = &h
		}
	}
}

// WithBearerToken attaches an Authorization header to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTracing wraps the transport with OpenTelemetry instrumentation.
func WithTracing() Option {
	return func(c *Client) {
		h := *c.httpClient
		base := h.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		h.Transport = otelhttp.NewTransport(base)
		c.httpClient = &h
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL reports the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers http.Header, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(io.LimitReader(resp.Body, maxErrorBodySize))
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Message)
}

// Geo is the location block the authority attaches to a log entry. Fields
// are pointers so a partially populated block can be detected.
type Geo struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Name      string   `json:"name"`
	Continent string   `json:"continent"`
}

// LogEntry is one scored request as reported by /api/stats.
type LogEntry struct {
	Timestamp   float64  `json:"timestamp"`
	IP          string   `json:"ip"`
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	UserAgent   string   `json:"user_agent"`
	Status      int      `json:"status"`
	ThreatLevel string   `json:"threat_level"`
	MLScore     *float64 `json:"ml_score"`
	Geo         *Geo     `json:"geo"`
}

// Detection is a flagged actor as reported by /api/stats.
type Detection struct {
	IP        string  `json:"ip"`
	Reason    string  `json:"reason"`
	Timestamp float64 `json:"timestamp"`
}

// Stats is the /api/stats payload. Logs arrive newest-first.
type Stats struct {
	TotalRequests  int64       `json:"total_requests"`
	BlockedIPs     int         `json:"blocked_ips"`
	BlockedIPsList []string    `json:"blocked_ips_list"`
	DetectedBots   int         `json:"detected_bots"`
	Logs           []LogEntry  `json:"logs"`
	Detections     []Detection `json:"detections"`
	Sequence       *uint64     `json:"sequence,omitempty"`
}

// CommandResult is the authority's block/unblock acknowledgement.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FetchStats retrieves the current snapshot. A non-zero seq is sent as
// X-Request-Seq so an authority that supports sequencing can echo it back.
func (c *Client) FetchStats(ctx context.Context, seq uint64) (Stats, error) {
	headers := http.Header{}
	if seq > 0 {
		headers.Set("X-Request-Seq", strconv.FormatUint(seq, 10))
	}
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, headers, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Block asks the authority to block address.
func (c *Client) Block(ctx context.Context, address string) (CommandResult, error) {
	return c.command(ctx, "/api/block", address)
}

// Unblock asks the authority to lift the block on address.
func (c *Client) Unblock(ctx context.Context, address string) (CommandResult, error) {
	return c.command(ctx, "/api/unblock", address)
}

func (c *Client) command(ctx context.Context, path, address string) (CommandResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return CommandResult{}, ErrInvalidAddress
	}
	headers := http.Header{}
	headers.Set("X-Request-ID", uuid.NewString())
	body := map[string]string{"ip": address}
	var result CommandResult
	if err := c.do(ctx, http.MethodPost, path, body, headers, &result); err != nil {
		return CommandResult{}, err
	}
	if !result.Success {
		msg := strings.TrimSpace(result.Message)
		if msg == "" {
			msg = "no reason given"
		}
		return result, fmt.Errorf("%w: %s", ErrCommandRejected, msg)
	}
	return result, nil
}
