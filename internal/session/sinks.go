package session

import (
	"sync"
	"time"

	"github.com/sFinOe/Video-Conference-App/internal/transport"
)

// sinkRetryDelay is the one-shot retry window for attaching a remote
// stream to a sink that has not mounted yet.
const sinkRetryDelay = 500 * time.Millisecond

// Sink receives a remote media stream for rendering.
type Sink interface {
	Attach(*transport.RemoteStream)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(*transport.RemoteStream)

// Attach implements Sink.
func (f SinkFunc) Attach(rs *transport.RemoteStream) { f(rs) }

// SinkRegistry matches remote streams to the sinks that render them.
// Streams can arrive before their sink mounts; the registry retries
// once after a fixed delay, and additionally resolves the attachment
// whenever the sink registers, whichever happens first. A sink that
// never registers and misses the retry window never receives the
// stream.
type SinkRegistry struct {
	mu      sync.Mutex
	sinks   map[string]Sink
	pending map[string]*transport.RemoteStream
	delay   time.Duration
}

// NewSinkRegistry returns a registry with the default retry delay.
func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{
		sinks:   make(map[string]Sink),
		pending: make(map[string]*transport.RemoteStream),
		delay:   sinkRetryDelay,
	}
}

// SetSink registers the sink for a peer. A stream already waiting is
// attached immediately.
func (r *SinkRegistry) SetSink(peerID string, sink Sink) {
	r.mu.Lock()
	r.sinks[peerID] = sink
	rs, waiting := r.pending[peerID]
	if waiting {
		delete(r.pending, peerID)
	}
	r.mu.Unlock()

	if waiting {
		sink.Attach(rs)
	}
}

// Attach delivers a remote stream to the peer's sink, or parks it and
// schedules the bounded retry if the sink is absent.
func (r *SinkRegistry) Attach(peerID string, rs *transport.RemoteStream) {
	r.mu.Lock()
	sink, ok := r.sinks[peerID]
	if !ok {
		r.pending[peerID] = rs
	}
	r.mu.Unlock()

	if ok {
		sink.Attach(rs)
		return
	}

	time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		parked, stillPending := r.pending[peerID]
		sink, mounted := r.sinks[peerID]
		if stillPending && mounted {
			delete(r.pending, peerID)
		}
		r.mu.Unlock()

		if stillPending && mounted && parked == rs {
			sink.Attach(parked)
		}
	})
}

// Remove forgets the peer's sink and any parked stream.
func (r *SinkRegistry) Remove(peerID string) {
	r.mu.Lock()
	delete(r.sinks, peerID)
	delete(r.pending, peerID)
	r.mu.Unlock()
}
