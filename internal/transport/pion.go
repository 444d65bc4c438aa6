package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// ErrSessionClosed is returned for operations on a closed session.
var ErrSessionClosed = errors.New("transport: session closed")

// signal kinds carried inside protocol.RTCSignal payloads.
const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "candidate"
)

type signalPayload struct {
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Pion is the webrtc-backed transport.
type Pion struct {
	log zerolog.Logger
}

// NewPion creates the default transport.
func NewPion(log zerolog.Logger) *Pion {
	return &Pion{log: log}
}

// Open registers a session: a transport-assigned peer id plus a
// dispatcher consuming relayed negotiation frames.
func (p *Pion) Open(ctx context.Context, cfg Config, relay Relay) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &pionSession{
		id:      uuid.New().String(),
		cfg:     cfg,
		relay:   relay,
		calls:   make(map[string]*pionCall),
		pending: make(map[string][]webrtc.ICECandidateInit),
		quit:    make(chan struct{}),
		log:     p.log,
	}
	go s.dispatch()
	return s, nil
}

type pionSession struct {
	id    string
	cfg   Config
	relay Relay
	log   zerolog.Logger

	mu         sync.Mutex
	calls      map[string]*pionCall
	pending    map[string][]webrtc.ICECandidateInit
	onIncoming func(IncomingCall)
	closed     bool

	quit chan struct{}
}

func (s *pionSession) ID() string { return s.id }

func (s *pionSession) OnIncomingCall(fn func(IncomingCall)) {
	s.mu.Lock()
	s.onIncoming = fn
	s.mu.Unlock()
}

// dispatch consumes relayed frames until the session closes.
func (s *pionSession) dispatch() {
	for {
		select {
		case <-s.quit:
			return
		case sig, ok := <-s.relay.Signals():
			if !ok {
				return
			}
			s.handleSignal(sig)
		}
	}
}

func (s *pionSession) handleSignal(sig protocol.RTCSignal) {
	var payload signalPayload
	if err := json.Unmarshal(sig.Payload, &payload); err != nil {
		s.log.Error().Err(err).Str("peer_id", sig.SenderID).Msg("malformed rtc-signal payload")
		return
	}

	switch payload.Kind {
	case signalOffer:
		s.handleOffer(sig.SenderID, payload.SDP)
	case signalAnswer:
		s.handleAnswer(sig.SenderID, payload.SDP)
	case signalCandidate:
		if payload.Candidate != nil {
			s.handleCandidate(sig.SenderID, *payload.Candidate)
		}
	default:
		s.log.Warn().Str("kind", payload.Kind).Msg("unknown signal kind")
	}
}

func (s *pionSession) handleOffer(peerID, sdp string) {
	s.mu.Lock()
	call, exists := s.calls[peerID]
	fn := s.onIncoming
	s.mu.Unlock()

	if exists {
		s.resolveGlare(call, peerID, sdp)
		return
	}
	if fn == nil {
		s.log.Warn().Str("peer_id", peerID).Msg("no incoming-call handler, dropping offer")
		return
	}
	fn(&incomingCall{session: s, peerID: peerID, sdp: sdp})
}

// resolveGlare handles an offer from a peer we are already calling.
// Both sides of a pair dial on join, so simultaneous offers are the
// normal case, not an error, and one direction must be able to win: the
// session with the larger id rolls its un-answered offer back and
// answers the remote one; the smaller id ignores the inbound offer and
// keeps waiting for its own to be answered.
func (s *pionSession) resolveGlare(call *pionCall, peerID, sdp string) {
	if s.id < peerID || call.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		// Our offer stands, or the call is already negotiated and this
		// is a stale duplicate.
		s.log.Debug().Str("peer_id", peerID).Msg("keeping outbound offer")
		return
	}

	if err := call.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("rollback local offer failed")
		return
	}
	if err := call.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("set remote offer after rollback failed")
		return
	}

	answer, err := call.pc.CreateAnswer(nil)
	if err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("create glare answer failed")
		return
	}
	if err := call.pc.SetLocalDescription(answer); err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("set local glare answer failed")
		return
	}
	s.drainCandidates(peerID, call)

	if err := s.sendSignal(peerID, signalAnswer, signalPayload{SDP: answer.SDP}); err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("relay glare answer failed")
	}
}

func (s *pionSession) handleAnswer(peerID, sdp string) {
	s.mu.Lock()
	call := s.calls[peerID]
	s.mu.Unlock()
	if call == nil {
		s.log.Warn().Str("peer_id", peerID).Msg("answer for unknown call")
		return
	}

	if err := call.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("set remote answer failed")
		return
	}
	s.drainCandidates(peerID, call)
}

func (s *pionSession) handleCandidate(peerID string, cand webrtc.ICECandidateInit) {
	s.mu.Lock()
	call := s.calls[peerID]
	if call == nil || call.pc.RemoteDescription() == nil {
		// Not ready for candidates yet; hold them.
		s.pending[peerID] = append(s.pending[peerID], cand)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := call.pc.AddICECandidate(cand); err != nil {
		s.log.Error().Err(err).Str("peer_id", peerID).Msg("add ice candidate failed")
	}
}

func (s *pionSession) drainCandidates(peerID string, call *pionCall) {
	s.mu.Lock()
	held := s.pending[peerID]
	delete(s.pending, peerID)
	s.mu.Unlock()

	for _, cand := range held {
		if err := call.pc.AddICECandidate(cand); err != nil {
			s.log.Error().Err(err).Str("peer_id", peerID).Msg("add held candidate failed")
		}
	}
}

func (s *pionSession) sendSignal(peerID, kind string, payload signalPayload) error {
	payload.Kind = kind
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return s.relay.SendSignal(protocol.RTCSignal{
		RoomID:   s.cfg.RoomID,
		SenderID: s.id,
		TargetID: peerID,
		Payload:  raw,
	})
}

func (s *pionSession) newPeerConnection() (*webrtc.PeerConnection, error) {
	var servers []webrtc.ICEServer
	if len(s.cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: s.cfg.STUNServers})
	}
	if len(s.cfg.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.cfg.TURNServers,
			Username:   s.cfg.TURNUser,
			Credential: s.cfg.TURNPass,
		})
	}
	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

// Call places an outbound call: peer connection, local tracks, meta
// channel, then an offer with trickle ICE. The returned Call is live
// immediately; the remote stream arrives via OnStream.
func (s *pionSession) Call(ctx context.Context, peerID string, stream *media.Stream) (Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, exists := s.calls[peerID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("transport: call to %s already active", peerID)
	}
	s.mu.Unlock()

	call, err := s.newCall(peerID, stream)
	if err != nil {
		return nil, err
	}

	dc, err := call.pc.CreateDataChannel(metaChannelLabel, nil)
	if err != nil {
		call.pc.Close()
		return nil, fmt.Errorf("create meta channel: %w", err)
	}
	call.bindMetaChannel(dc, s.cfg.DeviceName, stream.ID())

	offer, err := call.pc.CreateOffer(nil)
	if err != nil {
		call.pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := call.pc.SetLocalDescription(offer); err != nil {
		call.pc.Close()
		return nil, fmt.Errorf("set local offer: %w", err)
	}

	if !s.register(call) {
		call.pc.Close()
		return nil, fmt.Errorf("transport: call to %s already active", peerID)
	}
	if err := s.sendSignal(peerID, signalOffer, signalPayload{SDP: offer.SDP}); err != nil {
		s.unregister(call)
		call.pc.Close()
		return nil, err
	}
	return call, nil
}

// newCall builds the peer connection shared by both call directions.
func (s *pionSession) newCall(peerID string, stream *media.Stream) (*pionCall, error) {
	pc, err := s.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	call := &pionCall{
		session: s,
		peerID:  peerID,
		pc:      pc,
		senders: make(map[media.TrackKind][]*webrtc.RTPSender),
		remote:  &RemoteStream{peerID: peerID},
	}

	for _, t := range stream.AllTracks() {
		sender, err := pc.AddTrack(t.Local())
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		call.senders[t.Kind()] = append(call.senders[t.Kind()], sender)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := s.sendSignal(peerID, signalCandidate, signalPayload{Candidate: &init}); err != nil {
			s.log.Error().Err(err).Str("peer_id", peerID).Msg("relay candidate failed")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n := call.remote.add(track)
		go drainTrack(track)
		if n == 1 {
			call.fireStream()
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			call.fireClose()
		default:
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == metaChannelLabel {
			call.bindMetaChannel(dc, s.cfg.DeviceName, stream.ID())
		}
	})

	return call, nil
}

// drainTrack keeps RTP flowing; the media bytes themselves are not this
// layer's concern.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// register installs an outbound call unless the peer already has one;
// the check and the insert share the lock so a racing answer cannot be
// silently overwritten.
func (s *pionSession) register(call *pionCall) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calls[call.peerID]; exists {
		return false
	}
	s.calls[call.peerID] = call
	return true
}

// registerAnswer installs an answered call, displacing an outbound
// attempt to the same peer if one slipped in between the ring and the
// answer. The displaced attempt's offer is dead on the remote side, so
// its connection is torn down here.
func (s *pionSession) registerAnswer(call *pionCall) {
	s.mu.Lock()
	displaced := s.calls[call.peerID]
	s.calls[call.peerID] = call
	s.mu.Unlock()
	if displaced != nil && displaced != call {
		displaced.pc.Close()
	}
}

func (s *pionSession) unregister(call *pionCall) {
	s.mu.Lock()
	if s.calls[call.peerID] == call {
		delete(s.calls, call.peerID)
		delete(s.pending, call.peerID)
	}
	s.mu.Unlock()
}

// Close tears down every call and stops the dispatcher.
func (s *pionSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	calls := make([]*pionCall, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	s.calls = make(map[string]*pionCall)
	s.mu.Unlock()

	close(s.quit)
	for _, c := range calls {
		c.pc.Close()
	}
	return nil
}

type incomingCall struct {
	session *pionSession
	peerID  string
	sdp     string

	once sync.Once
}

func (ic *incomingCall) Peer() string { return ic.peerID }

// Answer accepts the call with the current local stream.
func (ic *incomingCall) Answer(stream *media.Stream) (Call, error) {
	var (
		call *pionCall
		err  error
	)
	ic.once.Do(func() {
		call, err = ic.answer(stream)
	})
	if call == nil && err == nil {
		err = errors.New("transport: call already answered or declined")
	}
	return call, err
}

func (ic *incomingCall) answer(stream *media.Stream) (*pionCall, error) {
	s := ic.session
	call, err := s.newCall(ic.peerID, stream)
	if err != nil {
		return nil, err
	}

	if err := call.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  ic.sdp,
	}); err != nil {
		call.pc.Close()
		return nil, fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := call.pc.CreateAnswer(nil)
	if err != nil {
		call.pc.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := call.pc.SetLocalDescription(answer); err != nil {
		call.pc.Close()
		return nil, fmt.Errorf("set local answer: %w", err)
	}

	s.registerAnswer(call)
	s.drainCandidates(ic.peerID, call)

	if err := s.sendSignal(ic.peerID, signalAnswer, signalPayload{SDP: answer.SDP}); err != nil {
		s.unregister(call)
		call.pc.Close()
		return nil, err
	}
	return call, nil
}

// Decline drops the offer. Candidates held for the peer stay parked:
// a declined glare offer means the remote will answer ours on the same
// peer connection, so they remain valid for that negotiation.
func (ic *incomingCall) Decline() {
	ic.once.Do(func() {})
}

type pionCall struct {
	session *pionSession
	peerID  string
	pc      *webrtc.PeerConnection
	remote  *RemoteStream

	mu         sync.Mutex
	senders    map[media.TrackKind][]*webrtc.RTPSender
	onStream   func(*RemoteStream)
	onClose    func()
	streamSent bool
	closeSent  bool
	meta       *metaChannel
}

func (c *pionCall) Peer() string { return c.peerID }

// OnStream registers the remote-stream handler. If tracks already
// arrived, it fires immediately.
func (c *pionCall) OnStream(fn func(*RemoteStream)) {
	c.mu.Lock()
	c.onStream = fn
	fire := c.streamSent
	c.mu.Unlock()
	if fire && fn != nil {
		fn(c.remote)
	}
}

func (c *pionCall) fireStream() {
	c.mu.Lock()
	fn := c.onStream
	c.streamSent = true
	c.mu.Unlock()
	if fn != nil {
		fn(c.remote)
	}
}

func (c *pionCall) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *pionCall) fireClose() {
	c.mu.Lock()
	if c.closeSent {
		c.mu.Unlock()
		return
	}
	c.closeSent = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ReplaceOutgoingTrack swaps the outgoing source on every sender of the
// kind, leaving other senders and the session untouched.
func (c *pionCall) ReplaceOutgoingTrack(kind media.TrackKind, t media.Track) error {
	c.mu.Lock()
	senders := c.senders[kind]
	c.mu.Unlock()

	if len(senders) == 0 {
		return fmt.Errorf("transport: no outgoing %s sender", kind)
	}
	for _, sender := range senders {
		if err := sender.ReplaceTrack(t.Local()); err != nil {
			return fmt.Errorf("replace %s track: %w", kind, err)
		}
	}
	return nil
}

// Close tears the call down and removes it from the session.
func (c *pionCall) Close() error {
	c.session.unregister(c)
	err := c.pc.Close()
	c.fireClose()
	return err
}
