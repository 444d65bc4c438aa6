// Package signaling implements the server side of the room protocol:
// the gateway hub that owns event routing and the per-connection client
// pumps. The hub is the single writer of the room registry.
package signaling

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sFinOe/Video-Conference-App/internal/metrics"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
	"github.com/sFinOe/Video-Conference-App/internal/registry"
)

type inbound struct {
	client *Client
	env    *protocol.Envelope
}

// Hub routes signaling events between connected clients. All routing and
// registry mutation happens on the single Run goroutine, so broadcasts
// for one room are serialized; the registry's own locking covers the
// read paths used elsewhere (metrics, health).
type Hub struct {
	registry *registry.Registry

	clients  map[*Client]struct{}
	byPeer   map[string]*Client
	register chan *Client
	unreg    chan *Client
	events   chan inbound
	quit     chan struct{}

	log zerolog.Logger
}

// NewHub creates a hub over the given registry.
func NewHub(reg *registry.Registry, log zerolog.Logger) *Hub {
	return &Hub{
		registry: reg,
		clients:  make(map[*Client]struct{}),
		byPeer:   make(map[string]*Client),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		events:   make(chan inbound, 64),
		quit:     make(chan struct{}),
		log:      log,
	}
}

// Register hands a new connection to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

// Unregister removes a disconnected client. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.quit:
	}
}

// Dispatch queues an inbound envelope for routing.
func (h *Hub) Dispatch(c *Client, env *protocol.Envelope) {
	select {
	case h.events <- inbound{client: c, env: env}:
	case <-h.quit:
	}
}

// Stop shuts the hub down and closes every client connection.
func (h *Hub) Stop() {
	close(h.quit)
}

// Run is the hub's event loop. It owns h.clients and h.byPeer and is the
// only goroutine that mutates the registry.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for c := range h.clients {
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Info().Str("remote", c.conn.RemoteAddr().String()).Msg("client connected")

		case c := <-h.unreg:
			h.drop(c)

		case ev := <-h.events:
			h.route(ev.client, ev.env)
		}
	}
}

// drop removes the client, applies the same registry effect as an
// explicit leave for every room it occupied, and notifies survivors.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closed = true
	if c.peerID != "" {
		if h.byPeer[c.peerID] == c {
			delete(h.byPeer, c.peerID)
		}
		h.announceLeave(c.peerID)
	}
	close(c.send)
	h.log.Info().Str("peer_id", c.peerID).Msg("client disconnected")
	h.updateGauges()
}

// announceLeave removes the peer from every room and broadcasts
// peer-left to the remaining members of each.
func (h *Hub) announceLeave(peerID string) {
	for _, dep := range h.registry.Leave(peerID) {
		env, err := protocol.NewEnvelope(protocol.EventPeerLeft, protocol.PeerLeft{PeerID: peerID})
		if err != nil {
			continue
		}
		h.sendToRoster(dep.Remaining, "", env)
		h.log.Info().Str("peer_id", peerID).Str("room_id", dep.RoomID).Msg("peer left room")
	}
}

func (h *Hub) route(c *Client, env *protocol.Envelope) {
	metrics.EventsTotal.WithLabelValues(string(env.Type)).Inc()

	switch env.Type {
	case protocol.EventJoinRoom:
		h.handleJoin(c, env)
	case protocol.EventLeaveRoom:
		h.handleLeave(c, env)
	case protocol.EventMediaState:
		h.handleMediaState(c, env)
	case protocol.EventScreenShare:
		h.handleScreenShare(c, env)
	case protocol.EventSendChat:
		h.handleChat(c, env)
	case protocol.EventRTCSignal:
		h.handleSignal(c, env)
	case protocol.EventRoomDetails, protocol.EventPeerJoined, protocol.EventPeerLeft,
		protocol.EventChatMessage, protocol.EventError:
		// Server-to-client kinds are never valid inbound.
		h.reject(c, env, "event not accepted from clients")
	default:
		h.reject(c, env, "unknown event type")
	}
}

// reject drops an invalid event: log, count, notify, no mutation.
func (h *Hub) reject(c *Client, env *protocol.Envelope, reason string) {
	metrics.EventsDropped.Inc()
	h.log.Warn().Str("type", string(env.Type)).Str("reason", reason).Msg("event dropped")
	if notice, err := protocol.NewEnvelope(protocol.EventError, protocol.ErrorNotice{Message: reason}); err == nil {
		c.enqueue(notice)
	}
}

func (h *Hub) handleJoin(c *Client, env *protocol.Envelope) {
	var req protocol.JoinRoom
	if err := env.DecodePayload(&req); err != nil || req.RoomID == "" || req.PeerID == "" {
		h.reject(c, env, "join-room requires roomId and peerId")
		return
	}

	if c.peerID == "" {
		c.peerID = req.PeerID
	}
	if prev, ok := h.byPeer[req.PeerID]; ok && prev != c {
		// Same transport id on a new socket: the old one is stale.
		h.log.Warn().Str("peer_id", req.PeerID).Msg("rebinding peer to new connection")
	}
	h.byPeer[req.PeerID] = c

	roster, isNew := h.registry.Join(req.RoomID, req.PeerID, req.Name)

	details, err := protocol.NewEnvelope(protocol.EventRoomDetails, protocol.RoomDetails{
		RoomID: req.RoomID,
		Peers:  roster,
	})
	if err == nil && !c.enqueue(details) {
		h.drop(c)
		return
	}

	if isNew {
		joined, err := protocol.NewEnvelope(protocol.EventPeerJoined, protocol.PeerJoined{
			PeerID: req.PeerID,
			Name:   req.Name,
		})
		if err == nil {
			h.broadcast(req.RoomID, req.PeerID, joined)
		}
	}

	h.log.Info().Str("peer_id", req.PeerID).Str("room_id", req.RoomID).Str("name", req.Name).Msg("peer joined room")
	h.updateGauges()
}

func (h *Hub) handleLeave(c *Client, env *protocol.Envelope) {
	var req protocol.LeaveRoom
	if err := env.DecodePayload(&req); err != nil || req.PeerID == "" {
		h.reject(c, env, "leave-room requires peerId")
		return
	}
	if c.peerID != req.PeerID {
		h.reject(c, env, "leave-room for a peer not owned by this connection")
		return
	}
	h.announceLeave(req.PeerID)
	h.updateGauges()
}

func (h *Hub) handleMediaState(c *Client, env *protocol.Envelope) {
	var req protocol.MediaState
	if err := env.DecodePayload(&req); err != nil || req.RoomID == "" || req.PeerID == "" {
		h.reject(c, env, "media-state-change requires roomId and peerId")
		return
	}

	video, audio := req.VideoEnabled, req.AudioEnabled
	if !h.registry.UpdateState(req.RoomID, req.PeerID, registry.StatePatch{
		VideoEnabled: &video,
		AudioEnabled: &audio,
	}) {
		// Unknown room or peer: invariant says treat as a no-op.
		return
	}

	out, err := protocol.NewEnvelope(protocol.EventMediaState, protocol.MediaState{
		PeerID:       req.PeerID,
		VideoEnabled: req.VideoEnabled,
		AudioEnabled: req.AudioEnabled,
	})
	if err == nil {
		h.broadcast(req.RoomID, req.PeerID, out)
	}
}

func (h *Hub) handleScreenShare(c *Client, env *protocol.Envelope) {
	var req protocol.ScreenShare
	if err := env.DecodePayload(&req); err != nil || req.RoomID == "" || req.PeerID == "" {
		h.reject(c, env, "screen-share-change requires roomId and peerId")
		return
	}

	sharing := req.IsScreenSharing
	if !h.registry.UpdateState(req.RoomID, req.PeerID, registry.StatePatch{
		IsScreenSharing: &sharing,
	}) {
		return
	}

	out, err := protocol.NewEnvelope(protocol.EventScreenShare, protocol.ScreenShare{
		PeerID:          req.PeerID,
		IsScreenSharing: req.IsScreenSharing,
	})
	if err == nil {
		h.broadcast(req.RoomID, req.PeerID, out)
	}
}

func (h *Hub) handleChat(c *Client, env *protocol.Envelope) {
	var req protocol.ChatMessage
	if err := env.DecodePayload(&req); err != nil || req.RoomID == "" || req.SenderID == "" || req.Content == "" {
		h.reject(c, env, "send-chat-message requires roomId, senderId and content")
		return
	}
	if !h.registry.Member(req.RoomID, req.SenderID) {
		h.reject(c, env, "sender is not a member of the room")
		return
	}

	// Sender-local timestamps are authoritative; stamp only if absent.
	if req.Timestamp == "" {
		req.Timestamp = protocol.FormatTimestamp(time.Now())
	}

	out, err := protocol.NewEnvelope(protocol.EventChatMessage, protocol.ChatMessage{
		SenderID:   req.SenderID,
		SenderName: req.SenderName,
		Content:    req.Content,
		Timestamp:  req.Timestamp,
	})
	if err == nil {
		h.broadcast(req.RoomID, req.SenderID, out)
	}
}

func (h *Hub) handleSignal(c *Client, env *protocol.Envelope) {
	var req protocol.RTCSignal
	if err := env.DecodePayload(&req); err != nil || req.RoomID == "" || req.SenderID == "" || req.TargetID == "" {
		h.reject(c, env, "rtc-signal requires roomId, senderId and targetId")
		return
	}
	if !h.registry.Member(req.RoomID, req.TargetID) {
		// Target already gone; in-flight negotiation dies quietly.
		h.log.Debug().Str("target_id", req.TargetID).Msg("rtc-signal for unknown target")
		return
	}
	target, ok := h.byPeer[req.TargetID]
	if !ok {
		return
	}

	out, err := protocol.NewEnvelope(protocol.EventRTCSignal, protocol.RTCSignal{
		SenderID: req.SenderID,
		TargetID: req.TargetID,
		Payload:  req.Payload,
	})
	if err == nil && !target.enqueue(out) {
		h.drop(target)
	}
}

// broadcast sends the envelope to every member of the room except the
// originator.
func (h *Hub) broadcast(roomID, exclude string, env *protocol.Envelope) {
	roster, ok := h.registry.Roster(roomID)
	if !ok {
		return
	}
	h.sendToRoster(roster, exclude, env)
}

func (h *Hub) sendToRoster(roster []protocol.Participant, exclude string, env *protocol.Envelope) {
	for _, p := range roster {
		if p.PeerID == exclude {
			continue
		}
		c, ok := h.byPeer[p.PeerID]
		if !ok {
			continue
		}
		if !c.enqueue(env) {
			h.drop(c)
		}
	}
}

func (h *Hub) updateGauges() {
	metrics.RoomsOpen.Set(float64(h.registry.RoomCount()))
	metrics.Participants.Set(float64(h.registry.ParticipantCount()))
}
