// Package protocol defines the signaling event vocabulary shared by the
// server gateway and the client. Every message on the wire is an Envelope
// carrying one of the closed set of event types below; adding or removing
// an event kind is a change to this package, checked at compile time by
// the exhaustive switches in the gateway and the client handler.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies one kind of signaling event.
type EventType string

// Client to server events.
const (
	EventJoinRoom    EventType = "join-room"
	EventLeaveRoom   EventType = "leave-room"
	EventSendChat    EventType = "send-chat-message"
	EventMediaState  EventType = "media-state-change"
	EventScreenShare EventType = "screen-share-change"
	EventRTCSignal   EventType = "rtc-signal"
)

// Server to client events. EventMediaState, EventScreenShare and
// EventRTCSignal travel both directions.
const (
	EventRoomDetails EventType = "room-details"
	EventPeerJoined  EventType = "peer-joined"
	EventPeerLeft    EventType = "peer-left"
	EventChatMessage EventType = "chat-message"
	EventError       EventType = "error"
)

// SystemSenderID is the sentinel sender for locally synthesized chat
// notices (peer joined/left). It is never transmitted.
const SystemSenderID = "system"

// Envelope is the wire frame for every signaling message.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Participant is a room member as seen in rosters and join announcements.
type Participant struct {
	PeerID          string `json:"peerId"`
	Name            string `json:"name"`
	VideoEnabled    bool   `json:"videoEnabled"`
	AudioEnabled    bool   `json:"audioEnabled"`
	IsScreenSharing bool   `json:"isScreenSharing,omitempty"`
}

// JoinRoom asks the server to add the peer to a room.
type JoinRoom struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
	Name   string `json:"name"`
}

// LeaveRoom is the explicit counterpart of a socket disconnect.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

// RoomDetails is unicast to a joining peer with the roster it must call.
// The roster never includes the joiner itself.
type RoomDetails struct {
	RoomID string        `json:"roomId"`
	Peers  []Participant `json:"peers"`
}

// PeerJoined is broadcast to the rest of the room when a peer joins.
type PeerJoined struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name"`
}

// PeerLeft is broadcast to the rest of every room the peer occupied.
type PeerLeft struct {
	PeerID string `json:"peerId"`
}

// MediaState announces a peer's audio/video enabled flags. RoomID is set
// only on the client-to-server leg.
type MediaState struct {
	RoomID       string `json:"roomId,omitempty"`
	PeerID       string `json:"peerId"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
}

// ScreenShare announces a peer's screen-sharing flag. RoomID is set only
// on the client-to-server leg.
type ScreenShare struct {
	RoomID          string `json:"roomId,omitempty"`
	PeerID          string `json:"peerId"`
	IsScreenSharing bool   `json:"isScreenSharing"`
}

// ChatMessage carries room chat. Timestamps are sender-local ISO-8601;
// the server relays them untouched and stamps only when absent.
type ChatMessage struct {
	RoomID     string `json:"roomId,omitempty"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// RTCSignal is an opaque transport negotiation frame (SDP or ICE)
// relayed to exactly one other peer in the same room.
type RTCSignal struct {
	RoomID   string          `json:"roomId,omitempty"`
	SenderID string          `json:"senderId"`
	TargetID string          `json:"targetId"`
	Payload  json.RawMessage `json:"payload"`
}

// ErrorNotice is a non-fatal validation notice from the server.
type ErrorNotice struct {
	Message string `json:"message"`
}

// NewEnvelope wraps a payload into a wire envelope.
func NewEnvelope(t EventType, payload any) (*Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Envelope{Type: t, Payload: b}, nil
}

// DecodePayload decodes the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Known reports whether t is part of the protocol.
func Known(t EventType) bool {
	switch t {
	case EventJoinRoom, EventLeaveRoom, EventSendChat, EventMediaState,
		EventScreenShare, EventRTCSignal, EventRoomDetails, EventPeerJoined,
		EventPeerLeft, EventChatMessage, EventError:
		return true
	}
	return false
}

// FormatTimestamp renders t in the wire timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp parses a wire timestamp, falling back to the zero time
// on malformed input so a bad peer clock never breaks the transcript.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
