package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// signalRouter is an in-process stand-in for the gateway: it delivers
// each frame to the inbox registered for its target. While paused it
// parks frames instead, so tests can line up crossing offers.
type signalRouter struct {
	mu      sync.Mutex
	inboxes map[string]chan protocol.RTCSignal
	paused  bool
	held    []protocol.RTCSignal
}

func newSignalRouter() *signalRouter {
	return &signalRouter{inboxes: make(map[string]chan protocol.RTCSignal)}
}

func (r *signalRouter) relay() *routedRelay {
	inbox := make(chan protocol.RTCSignal, 64)
	return &routedRelay{router: r, inbox: inbox}
}

func (r *signalRouter) bind(peerID string, inbox chan protocol.RTCSignal) {
	r.mu.Lock()
	r.inboxes[peerID] = inbox
	r.mu.Unlock()
}

func (r *signalRouter) deliver(sig protocol.RTCSignal) error {
	r.mu.Lock()
	if r.paused {
		r.held = append(r.held, sig)
		r.mu.Unlock()
		return nil
	}
	inbox, ok := r.inboxes[sig.TargetID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no inbox for %s", sig.TargetID)
	}
	inbox <- sig
	return nil
}

func (r *signalRouter) pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

func (r *signalRouter) resume() {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.paused = false
	r.mu.Unlock()
	for _, sig := range held {
		_ = r.deliver(sig)
	}
}

type routedRelay struct {
	router *signalRouter
	inbox  chan protocol.RTCSignal
}

func (r *routedRelay) SendSignal(sig protocol.RTCSignal) error { return r.router.deliver(sig) }
func (r *routedRelay) Signals() <-chan protocol.RTCSignal      { return r.inbox }

func openSession(t *testing.T, router *signalRouter) Session {
	t.Helper()
	relay := router.relay()
	sess, err := NewPion(zerolog.Nop()).Open(context.Background(), Config{RoomID: "r1", DeviceName: "test"}, relay)
	require.NoError(t, err)
	router.bind(sess.ID(), relay.inbox)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func localStream(t *testing.T) *media.Stream {
	t.Helper()
	stream, err := media.NewCameraMic().Acquire(context.Background(), media.Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	t.Cleanup(stream.Close)
	return stream
}

func TestOpenAssignsDistinctIDs(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestOpenCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPion(zerolog.Nop()).Open(ctx, Config{}, newSignalRouter().relay())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOfferAnswerNegotiation(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)

	streamA := localStream(t)
	streamB := localStream(t)

	answered := make(chan Call, 1)
	b.OnIncomingCall(func(ic IncomingCall) {
		assert.Equal(t, a.ID(), ic.Peer())
		call, err := ic.Answer(streamB)
		require.NoError(t, err)
		answered <- call
	})

	callA, err := a.Call(context.Background(), b.ID(), streamA)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), callA.Peer())

	select {
	case callB := <-answered:
		assert.Equal(t, a.ID(), callB.Peer())
	case <-time.After(5 * time.Second):
		t.Fatal("callee never saw the offer")
	}

	// The caller's connection completes local/remote description exchange.
	require.Eventually(t, func() bool {
		return callA.(*pionCall).pc.RemoteDescription() != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSecondCallToSamePeerRejected(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)
	b.OnIncomingCall(func(ic IncomingCall) {})

	stream := localStream(t)
	_, err := a.Call(context.Background(), b.ID(), stream)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), b.ID(), stream)
	assert.Error(t, err, "one call per peer pair")
}

func TestSecondOfferForActivePeerIgnored(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)

	streamA := localStream(t)
	streamB := localStream(t)

	var rings atomic.Int32
	done := make(chan struct{}, 2)
	b.OnIncomingCall(func(ic IncomingCall) {
		rings.Add(1)
		_, err := ic.Answer(streamB)
		require.NoError(t, err)
		done <- struct{}{}
	})

	_, err := a.Call(context.Background(), b.ID(), streamA)
	require.NoError(t, err)
	<-done

	// A duplicate offer arriving out of band must not ring again.
	raw := []byte(`{"kind":"offer","sdp":"v=0"}`)
	require.NoError(t, router.deliver(protocol.RTCSignal{
		RoomID: "r1", SenderID: a.ID(), TargetID: b.ID(), Payload: raw,
	}))

	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, rings.Load())
}

func TestSimultaneousOffersResolveWithoutDeadlock(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)

	streamA := localStream(t)
	streamB := localStream(t)

	var ringsA, ringsB atomic.Int32
	a.OnIncomingCall(func(ic IncomingCall) { ringsA.Add(1) })
	b.OnIncomingCall(func(ic IncomingCall) { ringsB.Add(1) })

	// Park signaling so both offers exist before either side sees one.
	router.pause()
	callA, err := a.Call(context.Background(), b.ID(), streamA)
	require.NoError(t, err)
	callB, err := b.Call(context.Background(), a.ID(), streamB)
	require.NoError(t, err)
	router.resume()

	// The larger id rolls back and answers; both ends converge on one
	// negotiation without ringing either incoming handler.
	require.Eventually(t, func() bool {
		return callA.(*pionCall).pc.RemoteDescription() != nil &&
			callB.(*pionCall).pc.RemoteDescription() != nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.EqualValues(t, 0, ringsA.Load())
	assert.EqualValues(t, 0, ringsB.Load())
}

func TestDeclineThenAnswerFails(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)

	streamA := localStream(t)

	got := make(chan IncomingCall, 1)
	b.OnIncomingCall(func(ic IncomingCall) {
		ic.Decline()
		got <- ic
	})

	_, err := a.Call(context.Background(), b.ID(), streamA)
	require.NoError(t, err)

	select {
	case ic := <-got:
		_, err := ic.Answer(localStream(t))
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("callee never saw the offer")
	}
}

func TestCallOnClosedSession(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	require.NoError(t, a.Close())

	_, err := a.Call(context.Background(), "peer-x", localStream(t))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.NoError(t, a.Close(), "close is idempotent")
}

func TestMalformedSignalIgnored(t *testing.T) {
	router := newSignalRouter()
	a := openSession(t, router)
	b := openSession(t, router)

	require.NoError(t, router.deliver(protocol.RTCSignal{
		RoomID: "r1", SenderID: a.ID(), TargetID: b.ID(), Payload: []byte(`{"kind":`),
	}))
	require.NoError(t, router.deliver(protocol.RTCSignal{
		RoomID: "r1", SenderID: a.ID(), TargetID: b.ID(), Payload: []byte(`{"kind":"teleport"}`),
	}))

	// The session survives and still takes calls.
	time.Sleep(100 * time.Millisecond)
	assert.NotEmpty(t, b.ID())
}
