package ws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SSEClient is a Server-Sent Events subscriber. Send only queues; the
// handler goroutine drains the queue with Serve, so a peer that stops reading
// stalls nobody but its own request.
type SSEClient struct {
	ID    string
	w     io.Writer
	rc    *http.ResponseController
	event string
	log   *slog.Logger
	send  chan []byte
	done  chan struct{}
	once  sync.Once
}

// NewSSEClient wraps w. Every payload is emitted with event as its type.
func NewSSEClient(w http.ResponseWriter, event string, logger *slog.Logger) *SSEClient {
	c := &SSEClient{
		ID:    uuid.NewString(),
		w:     w,
		rc:    http.NewResponseController(w),
		event: event,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c.log = logger.With("client_id", c.ID, "stream", event)
	return c
}

// Send queues payload, failing with ErrSlowConsumer when the queue is full.
func (c *SSEClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("sse send queue full")
		return ErrSlowConsumer
	}
}

// Close stops Serve. Safe to call more than once.
func (c *SSEClient) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}

// Serve writes queued events, plus a comment line every heartbeat, until ctx
// ends or the client is closed. A failed or timed out write closes the client
// and is returned.
func (c *SSEClient) Serve(ctx context.Context, heartbeat time.Duration) error {
	defer c.Close()
	defer func() { _ = c.rc.SetWriteDeadline(time.Time{}) }()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case payload := <-c.send:
			if err := c.write("event: %s\ndata: %s\n\n", c.event, payload); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.write(": ping\n\n"); err != nil {
				return err
			}
		}
	}
}

func (c *SSEClient) write(format string, args ...any) error {
	// Not every writer supports deadlines; the write itself still proceeds.
	_ = c.rc.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := fmt.Fprintf(c.w, format, args...); err != nil {
		c.log.Warn("sse write failed", "error", err)
		return err
	}
	if err := c.rc.Flush(); err != nil {
		c.log.Warn("sse flush failed", "error", err)
		return err
	}
	return nil
}
