// Package session is the client core: the per-room state machine that
// turns membership announcements into a mesh of peer connections, plus
// the local media-state tracker and the chat relay.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
	"github.com/sFinOe/Video-Conference-App/internal/transport"
)

// State is the controller's lifecycle position. Active additionally
// carries the number of established connections, via ConnectionCount.
type State int

const (
	StateIdle State = iota
	StateAwaitingLocalMedia
	StateRegistered
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingLocalMedia:
		return "awaiting-local-media"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// ErrNoLocalMedia is returned when capture access is denied; session
// establishment is blocked without a local stream.
var ErrNoLocalMedia = errors.New("session: local media unavailable")

// Publisher is the outbound half of the signaling connection.
type Publisher interface {
	JoinRoom(roomID, peerID, name string) error
	LeaveRoom(roomID, peerID string) error
	StatePublisher
	ChatPublisher
}

// Events are the inbound signaling channels the controller consumes.
// All channels close when the signaling connection drops.
type Events struct {
	RoomDetails <-chan protocol.RoomDetails
	PeerJoined  <-chan protocol.PeerJoined
	PeerLeft    <-chan protocol.PeerLeft
	MediaState  <-chan protocol.MediaState
	ScreenShare <-chan protocol.ScreenShare
	Chat        <-chan protocol.ChatMessage
	Errors      <-chan string
}

// Connection is the client-local record of one remote peer in session.
// It is inserted before the call exists so that the inbound and
// outbound paths check-and-insert atomically against the same map.
type Connection struct {
	PeerID string
	call   transport.Call
	remote *transport.RemoteStream
}

// Controller drives call setup, inbound-call acceptance, teardown and
// screen-share track replacement for one room.
type Controller struct {
	roomID      string
	displayName string

	pub     Publisher
	tr      transport.Transport
	trCfg   transport.Config
	relay   transport.Relay
	camera  media.CaptureDevice
	display media.DisplayDevice
	events  Events

	sinks   *SinkRegistry
	chat    *ChatRelay
	tracker *MediaStateTracker

	log zerolog.Logger

	mu          sync.Mutex
	state       State
	sess        transport.Session
	peerID      string
	local       *media.Stream // current outgoing stream
	original    *media.Stream // camera stream parked during screen share
	screen      *media.Stream
	screenTrack media.Track
	sharing     bool
	conns       map[string]*Connection
	roster      map[string]*protocol.Participant
	rosterOrder []string
	preview     func(*media.Stream)
	onChange    func()
	left        bool

	quit chan struct{}
}

// Options bundles the controller's collaborators.
type Options struct {
	RoomID          string
	DisplayName     string
	Publisher       Publisher
	Transport       transport.Transport
	TransportConfig transport.Config
	Relay           transport.Relay
	Camera          media.CaptureDevice
	Display         media.DisplayDevice
	Events          Events
	Logger          zerolog.Logger
}

// NewController wires a controller; Join starts it.
func NewController(opts Options) *Controller {
	c := &Controller{
		roomID:      opts.RoomID,
		displayName: opts.DisplayName,
		pub:         opts.Publisher,
		tr:          opts.Transport,
		trCfg:       opts.TransportConfig,
		relay:       opts.Relay,
		camera:      opts.Camera,
		display:     opts.Display,
		events:      opts.Events,
		sinks:       NewSinkRegistry(),
		log:         opts.Logger,
		state:       StateIdle,
		conns:       make(map[string]*Connection),
		roster:      make(map[string]*protocol.Participant),
		quit:        make(chan struct{}),
	}
	c.chat = NewChatRelay(opts.Publisher)
	c.tracker = NewMediaStateTracker(opts.Publisher)
	return c
}

// Join acquires local media, opens the transport session and announces
// this peer to the room. On success the controller's event loop runs
// until Leave.
func (c *Controller) Join(ctx context.Context) error {
	c.setState(StateAwaitingLocalMedia)

	local, err := c.camera.Acquire(ctx, media.Constraints{Audio: true, Video: true})
	if err != nil {
		c.setState(StateIdle)
		return fmt.Errorf("%w: %v", ErrNoLocalMedia, err)
	}

	sess, err := c.tr.Open(ctx, c.trCfg, c.relay)
	if err != nil {
		local.Close()
		c.setState(StateIdle)
		return fmt.Errorf("open transport session: %w", err)
	}

	c.mu.Lock()
	c.local = local
	c.sess = sess
	c.peerID = sess.ID()
	c.mu.Unlock()

	sess.OnIncomingCall(c.handleIncoming)
	if c.display != nil {
		c.display.OnEnded(func() {
			if err := c.StopScreenShare(); err != nil {
				c.log.Error().Err(err).Msg("stop screen share after external end")
			}
		})
	}

	c.tracker.SetIdentity(c.roomID, c.peerID)
	c.chat.SetIdentity(c.roomID, c.peerID, c.displayName)

	if err := c.pub.JoinRoom(c.roomID, c.peerID, c.displayName); err != nil {
		sess.Close()
		local.Close()
		c.setState(StateIdle)
		return fmt.Errorf("announce join: %w", err)
	}

	c.setState(StateRegistered)
	go c.run()
	return nil
}

// run consumes signaling events until Leave or the connection drops.
func (c *Controller) run() {
	for {
		select {
		case <-c.quit:
			return

		case details, ok := <-c.events.RoomDetails:
			if !ok {
				return
			}
			c.onRoomDetails(details)

		case joined, ok := <-c.events.PeerJoined:
			if !ok {
				return
			}
			c.onPeerJoined(joined)

		case left, ok := <-c.events.PeerLeft:
			if !ok {
				return
			}
			c.onPeerLeft(left.PeerID)

		case state, ok := <-c.events.MediaState:
			if !ok {
				return
			}
			c.onRemoteMediaState(state)

		case share, ok := <-c.events.ScreenShare:
			if !ok {
				return
			}
			c.onRemoteScreenShare(share)

		case msg, ok := <-c.events.Chat:
			if !ok {
				return
			}
			c.chat.Receive(msg)

		case errMsg, ok := <-c.events.Errors:
			if !ok {
				return
			}
			c.log.Warn().Str("message", errMsg).Msg("server notice")
		}
	}
}

// onRoomDetails bootstraps the mesh: one outbound call per listed peer.
func (c *Controller) onRoomDetails(details protocol.RoomDetails) {
	for _, p := range details.Peers {
		if p.PeerID == c.peerID {
			continue
		}
		part := p
		c.mu.Lock()
		c.addRosterLocked(&part)
		c.mu.Unlock()
		c.connectToPeer(p.PeerID)
	}
	c.changed()
}

func (c *Controller) onPeerJoined(joined protocol.PeerJoined) {
	if joined.PeerID == c.peerID {
		return
	}
	c.mu.Lock()
	c.addRosterLocked(&protocol.Participant{
		PeerID:       joined.PeerID,
		Name:         joined.Name,
		VideoEnabled: true,
		AudioEnabled: true,
	})
	c.mu.Unlock()

	c.chat.SystemNotice(joined.Name + " joined the room")
	c.connectToPeer(joined.PeerID)
	c.changed()
}

// onPeerLeft closes the peer's connection in the same operation as its
// roster removal; removal applies even if no connection ever formed.
func (c *Controller) onPeerLeft(peerID string) {
	c.mu.Lock()
	conn := c.conns[peerID]
	delete(c.conns, peerID)
	name := peerID
	if p, ok := c.roster[peerID]; ok {
		name = p.Name
	}
	c.removeRosterLocked(peerID)
	c.updateStateLocked()
	c.mu.Unlock()

	if conn != nil && conn.call != nil {
		if err := conn.call.Close(); err != nil {
			c.log.Error().Err(err).Str("peer_id", peerID).Msg("close connection")
		}
	}
	c.sinks.Remove(peerID)
	c.chat.SystemNotice(name + " left the room")
	c.changed()
}

func (c *Controller) onRemoteMediaState(state protocol.MediaState) {
	c.mu.Lock()
	if p, ok := c.roster[state.PeerID]; ok {
		p.VideoEnabled = state.VideoEnabled
		p.AudioEnabled = state.AudioEnabled
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) onRemoteScreenShare(share protocol.ScreenShare) {
	c.mu.Lock()
	if p, ok := c.roster[share.PeerID]; ok {
		p.IsScreenSharing = share.IsScreenSharing
	}
	c.mu.Unlock()
	c.changed()
}

// connectToPeer places one outbound call unless a connection (in any
// stage) already exists. The placeholder insert and the existence check
// share the lock, so the inbound path cannot race a duplicate.
func (c *Controller) connectToPeer(peerID string) {
	c.mu.Lock()
	if _, exists := c.conns[peerID]; exists {
		c.mu.Unlock()
		return
	}
	placeholder := &Connection{PeerID: peerID}
	c.conns[peerID] = placeholder
	sess := c.sess
	stream := c.local
	c.mu.Unlock()

	if sess == nil || stream == nil {
		return
	}

	go func() {
		call, err := sess.Call(context.Background(), peerID, stream)
		if err != nil {
			// This peer's connection never forms; others are unaffected.
			c.log.Error().Err(err).Str("peer_id", peerID).Msg("call failed")
			c.mu.Lock()
			if c.conns[peerID] == placeholder {
				delete(c.conns, peerID)
			}
			c.mu.Unlock()
			return
		}
		c.adopt(placeholder, call)
	}()
}

// handleIncoming accepts a call with the current local stream. An offer
// for an already-established peer is a duplicate and is declined. When
// our own call to the same peer is still in flight, the side with the
// lexicographically larger id abandons its outbound attempt and answers;
// the smaller side declines and lets its outbound offer be answered
// remotely under the same rule.
func (c *Controller) handleIncoming(ic transport.IncomingCall) {
	peerID := ic.Peer()
	c.mu.Lock()
	if existing := c.conns[peerID]; existing != nil {
		if existing.call != nil || c.peerID < peerID {
			c.mu.Unlock()
			ic.Decline()
			return
		}
	}
	// Inserting a fresh placeholder orphans any in-flight outbound
	// attempt; adopt discards its late result by identity.
	placeholder := &Connection{PeerID: peerID}
	c.conns[peerID] = placeholder
	stream := c.local
	c.mu.Unlock()

	call, err := ic.Answer(stream)
	if err != nil {
		c.log.Error().Err(err).Str("peer_id", peerID).Msg("answer failed")
		c.mu.Lock()
		if c.conns[peerID] == placeholder {
			delete(c.conns, peerID)
		}
		c.mu.Unlock()
		return
	}
	c.adopt(placeholder, call)
}

// adopt finishes connection setup, unless the peer left while the call
// was in flight, in which case the late result is discarded.
func (c *Controller) adopt(placeholder *Connection, call transport.Call) {
	peerID := placeholder.PeerID
	c.mu.Lock()
	if c.conns[peerID] != placeholder {
		c.mu.Unlock()
		call.Close()
		return
	}
	placeholder.call = call
	c.updateStateLocked()
	c.mu.Unlock()

	call.OnStream(func(rs *transport.RemoteStream) {
		c.mu.Lock()
		if c.conns[peerID] == placeholder {
			placeholder.remote = rs
		}
		c.mu.Unlock()
		c.log.Debug().Str("peer_id", peerID).Str("device", call.RemoteDeviceName()).Msg("remote stream attached")
		c.sinks.Attach(peerID, rs)
	})
	c.changed()
}

// StartScreenShare swaps the outgoing video track on every connection
// for a display-capture track, without renegotiating.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	if c.display == nil {
		return fmt.Errorf("no display-capture device configured")
	}
	c.mu.Lock()
	if c.sharing {
		c.mu.Unlock()
		return nil
	}
	if c.local == nil {
		c.mu.Unlock()
		return ErrNoLocalMedia
	}
	c.mu.Unlock()

	screen, err := c.display.Acquire(ctx, media.Constraints{Video: true})
	if err != nil {
		return fmt.Errorf("acquire display: %w", err)
	}
	tracks := screen.Tracks(media.Video)
	if len(tracks) == 0 {
		screen.Close()
		return fmt.Errorf("display stream has no video track")
	}
	screenTrack := tracks[0]

	c.mu.Lock()
	if c.original == nil {
		c.original = c.local
	}
	// Keep microphone audio flowing to the local preview.
	for _, t := range c.original.Tracks(media.Audio) {
		screen.AddTrack(t)
	}
	c.local = screen
	c.screen = screen
	c.screenTrack = screenTrack
	c.sharing = true
	conns := c.establishedLocked()
	preview := c.preview
	c.mu.Unlock()

	for _, conn := range conns {
		if err := conn.call.ReplaceOutgoingTrack(media.Video, screenTrack); err != nil {
			c.log.Error().Err(err).Str("peer_id", conn.PeerID).Msg("replace video track")
		}
	}
	if preview != nil {
		preview(screen)
	}
	c.changed()
	return c.tracker.SetScreenSharing(true)
}

// StopScreenShare restores the camera track on every connection. It is
// called for the explicit toggle and for the display-capture stream
// ending on its own; both paths converge here.
func (c *Controller) StopScreenShare() error {
	c.mu.Lock()
	if !c.sharing {
		c.mu.Unlock()
		return nil
	}
	screenTrack := c.screenTrack
	original := c.original
	c.local = original
	c.screen = nil
	c.screenTrack = nil
	c.original = nil
	c.sharing = false
	conns := c.establishedLocked()
	preview := c.preview
	c.mu.Unlock()

	if screenTrack != nil {
		screenTrack.Stop()
	}

	var cameraTrack media.Track
	if original != nil {
		if tracks := original.Tracks(media.Video); len(tracks) > 0 {
			cameraTrack = tracks[0]
		}
	}
	if cameraTrack != nil {
		for _, conn := range conns {
			if err := conn.call.ReplaceOutgoingTrack(media.Video, cameraTrack); err != nil {
				c.log.Error().Err(err).Str("peer_id", conn.PeerID).Msg("restore video track")
			}
		}
	}
	if preview != nil && original != nil {
		preview(original)
	}
	c.changed()
	return c.tracker.SetScreenSharing(false)
}

// ToggleAudio flips the local microphone flag and publishes it.
func (c *Controller) ToggleAudio() (bool, error) {
	return c.tracker.ToggleAudio(c.localStream())
}

// ToggleVideo flips the local camera flag and publishes it; rejected
// while screen sharing.
func (c *Controller) ToggleVideo() (bool, error) {
	return c.tracker.ToggleVideo(c.localStream())
}

// Leave tears the session down: every connection, then the transport
// session, then the local capture, in that order on every exit path.
func (c *Controller) Leave() {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return
	}
	c.left = true
	conns := c.conns
	c.conns = make(map[string]*Connection)
	sess := c.sess
	local := c.local
	original := c.original
	peerID := c.peerID
	c.state = StateIdle
	c.mu.Unlock()

	close(c.quit)

	for _, conn := range conns {
		if conn.call != nil {
			conn.call.Close()
		}
	}
	if sess != nil {
		sess.Close()
	}
	if local != nil {
		local.Close()
	}
	if original != nil && original != local {
		original.Close()
	}
	if peerID != "" {
		if err := c.pub.LeaveRoom(c.roomID, peerID); err != nil {
			c.log.Error().Err(err).Msg("announce leave")
		}
	}
}

// SendChat relays a chat message with optimistic local echo.
func (c *Controller) SendChat(content string) error {
	return c.chat.Send(content)
}

// Chat returns the transcript.
func (c *Controller) Chat() *ChatRelay { return c.chat }

// Tracker returns the local media-state tracker.
func (c *Controller) Tracker() *MediaStateTracker { return c.tracker }

// Sinks returns the video sink registry.
func (c *Controller) Sinks() *SinkRegistry { return c.sinks }

// SetPreview registers the local preview sink; it is re-invoked when
// the outgoing stream changes (screen share on/off).
func (c *Controller) SetPreview(fn func(*media.Stream)) {
	c.mu.Lock()
	c.preview = fn
	stream := c.local
	c.mu.Unlock()
	if fn != nil && stream != nil {
		fn(stream)
	}
}

// OnChange registers a callback fired after roster or connection
// changes, for the view layer.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// PeerID returns the transport-assigned local peer id.
func (c *Controller) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// State returns the controller's lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionCount returns the number of established connections: the n
// in Active(n).
func (c *Controller) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.establishedLocked())
}

// Roster returns the remote participants in arrival order.
func (c *Controller) Roster() []protocol.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Participant, 0, len(c.rosterOrder))
	for _, id := range c.rosterOrder {
		if p, ok := c.roster[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (c *Controller) localStream() *media.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Controller) establishedLocked() []*Connection {
	var out []*Connection
	for _, conn := range c.conns {
		if conn.call != nil {
			out = append(out, conn)
		}
	}
	return out
}

func (c *Controller) addRosterLocked(p *protocol.Participant) {
	if _, exists := c.roster[p.PeerID]; exists {
		c.roster[p.PeerID].Name = p.Name
		return
	}
	c.roster[p.PeerID] = p
	c.rosterOrder = append(c.rosterOrder, p.PeerID)
}

func (c *Controller) removeRosterLocked(peerID string) {
	delete(c.roster, peerID)
	for i, id := range c.rosterOrder {
		if id == peerID {
			c.rosterOrder = append(c.rosterOrder[:i], c.rosterOrder[i+1:]...)
			break
		}
	}
}

// updateStateLocked moves between Registered and Active as connections
// come and go; it never returns to Idle while joined.
func (c *Controller) updateStateLocked() {
	if c.state == StateIdle || c.state == StateAwaitingLocalMedia {
		return
	}
	if len(c.establishedLocked()) > 0 {
		c.state = StateActive
	} else {
		c.state = StateRegistered
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
