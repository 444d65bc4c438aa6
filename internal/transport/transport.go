// Package transport is the peer-connection collaborator: it turns a
// signaling relay into point-to-point media sessions. The session layer
// depends only on the interfaces here; the pion implementation lives in
// pion.go.
package transport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// Relay carries opaque negotiation frames between this peer and one
// other peer, via the signaling gateway.
type Relay interface {
	SendSignal(sig protocol.RTCSignal) error
	Signals() <-chan protocol.RTCSignal
}

// Config configures a transport session.
type Config struct {
	RoomID     string
	DeviceName string

	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
}

// Transport opens media sessions.
type Transport interface {
	Open(ctx context.Context, cfg Config, relay Relay) (Session, error)
}

// Session is one registration with the transport. Its ID is the peer
// identifier other participants use to call us.
type Session interface {
	ID() string
	Call(ctx context.Context, peerID string, stream *media.Stream) (Call, error)
	OnIncomingCall(func(IncomingCall))
	Close() error
}

// Call is a single established (or establishing) media channel to one
// remote peer.
type Call interface {
	Peer() string
	OnStream(func(*RemoteStream))
	OnClose(func())
	// ReplaceOutgoingTrack swaps the outgoing source of the given kind
	// without renegotiating; other kinds are untouched.
	ReplaceOutgoingTrack(kind media.TrackKind, t media.Track) error
	// RemoteDeviceName is the name the peer announced on the call's meta
	// channel, or empty before the hello arrives.
	RemoteDeviceName() string
	Close() error
}

// IncomingCall is a call request from a remote peer, answered with the
// current local stream or declined.
type IncomingCall interface {
	Peer() string
	Answer(stream *media.Stream) (Call, error)
	Decline()
}

// RemoteStream is the remote media handle attached to a video sink. It
// accumulates tracks as they arrive.
type RemoteStream struct {
	peerID string

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

// PeerID returns the remote peer the stream belongs to.
func (r *RemoteStream) PeerID() string { return r.peerID }

// Tracks returns the remote tracks received so far.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(r.tracks))
	copy(out, r.tracks)
	return out
}

func (r *RemoteStream) add(t *webrtc.TrackRemote) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, t)
	return len(r.tracks)
}
