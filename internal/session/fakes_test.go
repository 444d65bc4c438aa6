package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
	"github.com/sFinOe/Video-Conference-App/internal/transport"
)

// recorder collects ordered teardown events across the fakes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) index(ev string) int {
	for i, e := range r.list() {
		if e == ev {
			return i
		}
	}
	return -1
}

type fakeTrack struct {
	id   string
	kind media.TrackKind
	rec  *recorder

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newFakeTrack(id string, kind media.TrackKind, rec *recorder) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, rec: rec, enabled: true}
}

func (t *fakeTrack) ID() string               { return t.id }
func (t *fakeTrack) Kind() media.TrackKind    { return t.kind }
func (t *fakeTrack) Local() webrtc.TrackLocal { return nil }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()
	if !already && t.rec != nil {
		t.rec.add("stop-track:" + t.id)
	}
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeCamera struct {
	rec *recorder
	err error

	mu       sync.Mutex
	acquired int
	mic      *fakeTrack
	cam      *fakeTrack
}

func (d *fakeCamera) Acquire(_ context.Context, c media.Constraints) (*media.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquired++
	stream := media.NewStream(fmt.Sprintf("cam-%d", d.acquired))
	if c.Audio {
		d.mic = newFakeTrack("mic", media.Audio, d.rec)
		stream.AddTrack(d.mic)
	}
	if c.Video {
		d.cam = newFakeTrack("cam", media.Video, d.rec)
		stream.AddTrack(d.cam)
	}
	return stream, nil
}

type fakeDisplay struct {
	rec *recorder
	err error

	mu      sync.Mutex
	onEnded func()
	screen  *fakeTrack
}

func (d *fakeDisplay) Acquire(_ context.Context, _ media.Constraints) (*media.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	stream := media.NewStream("screen-1")
	d.screen = newFakeTrack("screen", media.Video, d.rec)
	stream.AddTrack(d.screen)
	return stream, nil
}

func (d *fakeDisplay) OnEnded(fn func()) {
	d.mu.Lock()
	d.onEnded = fn
	d.mu.Unlock()
}

func (d *fakeDisplay) revoke() {
	d.mu.Lock()
	fn := d.onEnded
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	joins  []protocol.JoinRoom
	leaves []protocol.LeaveRoom
	states []protocol.MediaState
	shares []protocol.ScreenShare
	chats  []protocol.ChatMessage
	rec    *recorder
}

func (p *fakePublisher) JoinRoom(roomID, peerID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joins = append(p.joins, protocol.JoinRoom{RoomID: roomID, PeerID: peerID, Name: name})
	return nil
}

func (p *fakePublisher) LeaveRoom(roomID, peerID string) error {
	p.mu.Lock()
	p.leaves = append(p.leaves, protocol.LeaveRoom{RoomID: roomID, PeerID: peerID})
	p.mu.Unlock()
	if p.rec != nil {
		p.rec.add("announce-leave")
	}
	return nil
}

func (p *fakePublisher) PublishMediaState(s protocol.MediaState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
	return nil
}

func (p *fakePublisher) PublishScreenShare(s protocol.ScreenShare) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shares = append(p.shares, s)
	return nil
}

func (p *fakePublisher) SendChat(m protocol.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, m)
	return nil
}

func (p *fakePublisher) lastState() (protocol.MediaState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return protocol.MediaState{}, false
	}
	return p.states[len(p.states)-1], true
}

func (p *fakePublisher) lastShare() (protocol.ScreenShare, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.shares) == 0 {
		return protocol.ScreenShare{}, false
	}
	return p.shares[len(p.shares)-1], true
}

type fakeCall struct {
	peer string
	rec  *recorder

	mu       sync.Mutex
	closed   bool
	onStream func(*transport.RemoteStream)
	onClose  func()
	replaced map[media.TrackKind][]media.Track
}

func newFakeCall(peer string, rec *recorder) *fakeCall {
	return &fakeCall{peer: peer, rec: rec, replaced: make(map[media.TrackKind][]media.Track)}
}

func (c *fakeCall) Peer() string { return c.peer }

func (c *fakeCall) OnStream(fn func(*transport.RemoteStream)) {
	c.mu.Lock()
	c.onStream = fn
	c.mu.Unlock()
}

func (c *fakeCall) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *fakeCall) RemoteDeviceName() string { return "" }

func (c *fakeCall) ReplaceOutgoingTrack(kind media.TrackKind, t media.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced[kind] = append(c.replaced[kind], t)
	return nil
}

func (c *fakeCall) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already && c.rec != nil {
		c.rec.add("close-call:" + c.peer)
	}
	return nil
}

func (c *fakeCall) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeCall) lastReplaced(kind media.TrackKind) media.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.replaced[kind]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (c *fakeCall) deliverStream(rs *transport.RemoteStream) {
	c.mu.Lock()
	fn := c.onStream
	c.mu.Unlock()
	if fn != nil {
		fn(rs)
	}
}

type fakeSession struct {
	id  string
	rec *recorder

	// gates, when set, blocks Call for the given peer until closed.
	gates map[string]chan struct{}

	mu         sync.Mutex
	closed     bool
	calls      map[string]*fakeCall
	callOrder  []string
	onIncoming func(transport.IncomingCall)
}

func newFakeSession(id string, rec *recorder) *fakeSession {
	return &fakeSession{
		id:    id,
		rec:   rec,
		gates: make(map[string]chan struct{}),
		calls: make(map[string]*fakeCall),
	}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Call(_ context.Context, peerID string, _ *media.Stream) (transport.Call, error) {
	s.mu.Lock()
	gate := s.gates[peerID]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	call := newFakeCall(peerID, s.rec)
	s.mu.Lock()
	s.calls[peerID] = call
	s.callOrder = append(s.callOrder, peerID)
	s.mu.Unlock()
	return call, nil
}

func (s *fakeSession) OnIncomingCall(fn func(transport.IncomingCall)) {
	s.mu.Lock()
	s.onIncoming = fn
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already && s.rec != nil {
		s.rec.add("close-session")
	}
	return nil
}

func (s *fakeSession) callTo(peerID string) *fakeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[peerID]
}

func (s *fakeSession) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callOrder)
}

func (s *fakeSession) ring(ic transport.IncomingCall) {
	s.mu.Lock()
	fn := s.onIncoming
	s.mu.Unlock()
	if fn != nil {
		fn(ic)
	}
}

type fakeTransport struct {
	sess *fakeSession
	err  error
}

func (t *fakeTransport) Open(_ context.Context, _ transport.Config, _ transport.Relay) (transport.Session, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.sess, nil
}

type fakeIncomingCall struct {
	peer string
	rec  *recorder

	mu       sync.Mutex
	answered *fakeCall
	stream   *media.Stream
	declined bool
}

func (ic *fakeIncomingCall) Peer() string { return ic.peer }

func (ic *fakeIncomingCall) Answer(stream *media.Stream) (transport.Call, error) {
	if stream == nil {
		return nil, errors.New("no local stream")
	}
	call := newFakeCall(ic.peer, ic.rec)
	ic.mu.Lock()
	ic.answered = call
	ic.stream = stream
	ic.mu.Unlock()
	return call, nil
}

func (ic *fakeIncomingCall) Decline() {
	ic.mu.Lock()
	ic.declined = true
	ic.mu.Unlock()
}

func (ic *fakeIncomingCall) wasDeclined() bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.declined
}

func (ic *fakeIncomingCall) answeredCall() *fakeCall {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.answered
}

// nopRelay satisfies transport.Relay for tests that never negotiate.
type nopRelay struct{}

func (nopRelay) SendSignal(protocol.RTCSignal) error { return nil }
func (nopRelay) Signals() <-chan protocol.RTCSignal  { return nil }
