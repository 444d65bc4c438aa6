package sigclient

import (
	"github.com/rs/zerolog"

	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// Handler routes inbound envelopes to typed channels, one per event
// kind the server can send. The session controller selects on these.
type Handler struct {
	client *Client

	RoomDetails chan protocol.RoomDetails
	PeerJoined  chan protocol.PeerJoined
	PeerLeft    chan protocol.PeerLeft
	MediaState  chan protocol.MediaState
	ScreenShare chan protocol.ScreenShare
	Chat        chan protocol.ChatMessage
	Errors      chan string

	signals chan protocol.RTCSignal

	log zerolog.Logger
}

// NewHandler creates a handler over the client's incoming channel.
func NewHandler(client *Client, log zerolog.Logger) *Handler {
	return &Handler{
		client:      client,
		RoomDetails: make(chan protocol.RoomDetails, 1),
		PeerJoined:  make(chan protocol.PeerJoined, 8),
		PeerLeft:    make(chan protocol.PeerLeft, 8),
		MediaState:  make(chan protocol.MediaState, 8),
		ScreenShare: make(chan protocol.ScreenShare, 8),
		Chat:        make(chan protocol.ChatMessage, 32),
		Errors:      make(chan string, 4),
		signals:     make(chan protocol.RTCSignal, 32),
		log:         log,
	}
}

// Signals returns the channel of relayed transport negotiation frames.
// Together with the client's SendSignal it satisfies transport.Relay.
func (h *Handler) Signals() <-chan protocol.RTCSignal {
	return h.signals
}

// SendSignal forwards to the underlying client, so the handler alone
// can be handed to the transport as its relay.
func (h *Handler) SendSignal(sig protocol.RTCSignal) error {
	return h.client.SendSignal(sig)
}

// Start consumes incoming envelopes until the connection closes. Run it
// in its own goroutine.
func (h *Handler) Start() {
	defer h.closeAll()

	for env := range h.client.Incoming() {
		switch env.Type {
		case protocol.EventRoomDetails:
			var p protocol.RoomDetails
			if h.decode(env, &p) {
				h.RoomDetails <- p
			}
		case protocol.EventPeerJoined:
			var p protocol.PeerJoined
			if h.decode(env, &p) {
				h.PeerJoined <- p
			}
		case protocol.EventPeerLeft:
			var p protocol.PeerLeft
			if h.decode(env, &p) {
				h.PeerLeft <- p
			}
		case protocol.EventMediaState:
			var p protocol.MediaState
			if h.decode(env, &p) {
				h.MediaState <- p
			}
		case protocol.EventScreenShare:
			var p protocol.ScreenShare
			if h.decode(env, &p) {
				h.ScreenShare <- p
			}
		case protocol.EventChatMessage:
			var p protocol.ChatMessage
			if h.decode(env, &p) {
				h.Chat <- p
			}
		case protocol.EventRTCSignal:
			var p protocol.RTCSignal
			if h.decode(env, &p) {
				h.signals <- p
			}
		case protocol.EventError:
			var p protocol.ErrorNotice
			if h.decode(env, &p) {
				h.Errors <- p.Message
			}
		case protocol.EventJoinRoom, protocol.EventLeaveRoom, protocol.EventSendChat:
			// Client-to-server kinds never arrive here.
			h.log.Warn().Str("type", string(env.Type)).Msg("unexpected inbound event")
		default:
			h.log.Warn().Str("type", string(env.Type)).Msg("unknown inbound event")
		}
	}
}

func (h *Handler) decode(env *protocol.Envelope, v any) bool {
	if err := env.DecodePayload(v); err != nil {
		h.log.Error().Err(err).Str("type", string(env.Type)).Msg("malformed event payload")
		return false
	}
	return true
}

func (h *Handler) closeAll() {
	close(h.RoomDetails)
	close(h.PeerJoined)
	close(h.PeerLeft)
	close(h.MediaState)
	close(h.ScreenShare)
	close(h.Chat)
	close(h.Errors)
	close(h.signals)
}
