package ws

import (
	"context"
	"sync"
)

// Stream names served by the hub.
const (
	StreamView   = "view"
	StreamFrames = "frames"
	StreamClock  = "clock"
)

// outletBuffer is how many payloads may wait for one subscriber before it is
// dropped as a slow consumer.
const outletBuffer = 16

// ValidStream reports whether name is a known stream.
func ValidStream(name string) bool {
	switch name {
	case StreamView, StreamFrames, StreamClock:
		return true
	}
	return false
}

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans payloads out to the subscribers of each stream. New subscribers
// immediately receive the latest payload of their stream.
//
// Broadcast never waits on a subscriber: each one is fed from its own queue
// by its own goroutine, and a subscriber whose queue is full is dropped.
type Hub struct {
	mu      sync.Mutex
	outlets map[string]map[Subscriber]*outlet
	latest  map[string][]byte
	stopped bool
}

type outlet struct {
	sub   Subscriber
	queue chan []byte
	quit  chan struct{}
	once  sync.Once
}

func (o *outlet) shut() {
	o.once.Do(func() { close(o.quit) })
}

// NewHub creates an initialized Hub. Call Run to tie its lifetime to a
// context.
func NewHub() *Hub {
	return &Hub{
		outlets: make(map[string]map[Subscriber]*outlet),
		latest:  make(map[string][]byte),
	}
}

// Run blocks until ctx is cancelled, then closes every subscriber. Later
// registrations are closed immediately and broadcasts are ignored.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.stopped = true
	var closing []*outlet
	for stream, outlets := range h.outlets {
		for _, o := range outlets {
			closing = append(closing, o)
		}
		delete(h.outlets, stream)
	}
	h.mu.Unlock()

	for _, o := range closing {
		o.shut()
		o.sub.Close()
	}
}

// Register adds a client to a stream and queues the stream's latest payload
// for it.
func (h *Hub) Register(stream string, client Subscriber) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		client.Close()
		return
	}
	if _, ok := h.outlets[stream]; !ok {
		h.outlets[stream] = make(map[Subscriber]*outlet)
	}
	if _, dup := h.outlets[stream][client]; dup {
		h.mu.Unlock()
		return
	}
	o := &outlet{
		sub:   client,
		queue: make(chan []byte, outletBuffer),
		quit:  make(chan struct{}),
	}
	h.outlets[stream][client] = o
	if last := h.latest[stream]; last != nil {
		o.queue <- last
	}
	h.mu.Unlock()

	go h.pump(stream, o)
}

// Unregister removes a client without closing it.
func (h *Hub) Unregister(stream string, client Subscriber) {
	if o := h.detach(stream, client); o != nil {
		o.shut()
	}
}

// Broadcast records payload as the stream's latest and queues it for every
// subscriber of the stream.
func (h *Hub) Broadcast(stream string, payload []byte) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.latest[stream] = payload
	var slow []Subscriber
	for sub, o := range h.outlets[stream] {
		select {
		case o.queue <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range slow {
		h.drop(stream, sub)
	}
}

// Subscribers reports the number of clients per stream.
func (h *Hub) Subscribers() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.outlets))
	for stream, outlets := range h.outlets {
		out[stream] = len(outlets)
	}
	return out
}

func (h *Hub) pump(stream string, o *outlet) {
	for {
		select {
		case <-o.quit:
			return
		case payload := <-o.queue:
			if err := o.sub.Send(payload); err != nil {
				h.drop(stream, o.sub)
				return
			}
		}
	}
}

func (h *Hub) detach(stream string, client Subscriber) *outlet {
	h.mu.Lock()
	defer h.mu.Unlock()
	outlets, ok := h.outlets[stream]
	if !ok {
		return nil
	}
	o, ok := outlets[client]
	if !ok {
		return nil
	}
	delete(outlets, client)
	if len(outlets) == 0 {
		delete(h.outlets, stream)
	}
	return o
}

func (h *Hub) drop(stream string, client Subscriber) {
	o := h.detach(stream, client)
	if o == nil {
		return
	}
	o.shut()
	client.Close()
}
