package session

import (
	"errors"
	"sync"
	"time"

	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// transcriptLimit caps the in-memory transcript; nothing is persisted.
const transcriptLimit = 500

// ErrEmptyMessage rejects chat messages with no content.
var ErrEmptyMessage = errors.New("session: chat message content is empty")

// ChatPublisher relays an outbound chat message to the room.
type ChatPublisher interface {
	SendChat(protocol.ChatMessage) error
}

// ChatEntry is one line of the local transcript.
type ChatEntry struct {
	SenderID   string
	SenderName string
	Content    string
	At         time.Time
	System     bool
}

// ChatRelay keeps the local transcript and relays outbound messages.
// Sending echoes optimistically with the local timestamp, which is also
// the timestamp carried on the wire, so every participant shows the
// sender's clock.
type ChatRelay struct {
	pub ChatPublisher

	mu       sync.Mutex
	roomID   string
	selfID   string
	selfName string
	entries  []ChatEntry
	onUpdate func()
}

// NewChatRelay returns an empty transcript bound to the publisher.
func NewChatRelay(pub ChatPublisher) *ChatRelay {
	return &ChatRelay{pub: pub}
}

// SetIdentity binds the relay to the joined room and local identity.
func (c *ChatRelay) SetIdentity(roomID, peerID, name string) {
	c.mu.Lock()
	c.roomID = roomID
	c.selfID = peerID
	c.selfName = name
	c.mu.Unlock()
}

// OnUpdate registers a callback fired after every transcript change.
func (c *ChatRelay) OnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Send appends the message locally, then relays it to the room.
func (c *ChatRelay) Send(content string) error {
	if content == "" {
		return ErrEmptyMessage
	}

	now := time.Now()
	c.mu.Lock()
	msg := protocol.ChatMessage{
		RoomID:     c.roomID,
		SenderID:   c.selfID,
		SenderName: c.selfName,
		Content:    content,
		Timestamp:  protocol.FormatTimestamp(now),
	}
	c.appendLocked(ChatEntry{
		SenderID:   c.selfID,
		SenderName: c.selfName,
		Content:    content,
		At:         now,
	})
	c.mu.Unlock()

	c.notify()
	return c.pub.SendChat(msg)
}

// Receive appends a relayed message using the timestamp it carries.
func (c *ChatRelay) Receive(msg protocol.ChatMessage) {
	c.mu.Lock()
	c.appendLocked(ChatEntry{
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		At:         protocol.ParseTimestamp(msg.Timestamp),
	})
	c.mu.Unlock()
	c.notify()
}

// SystemNotice appends a locally synthesized membership notice. These
// never go on the wire; each client makes its own.
func (c *ChatRelay) SystemNotice(text string) {
	c.mu.Lock()
	c.appendLocked(ChatEntry{
		SenderID: protocol.SystemSenderID,
		Content:  text,
		At:       time.Now(),
		System:   true,
	})
	c.mu.Unlock()
	c.notify()
}

func (c *ChatRelay) appendLocked(e ChatEntry) {
	c.entries = append(c.entries, e)
	if len(c.entries) > transcriptLimit {
		c.entries = c.entries[len(c.entries)-transcriptLimit:]
	}
}

func (c *ChatRelay) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Entries returns a copy of the transcript.
func (c *ChatRelay) Entries() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
