// Package sigclient is the client side of the signaling protocol: a
// websocket connection to the gateway with read/write pumps, and a
// handler that fans inbound events out to typed channels.
package sigclient

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the websocket connection to the signaling server.
type Client struct {
	serverURL string
	conn      *websocket.Conn
	incoming  chan *protocol.Envelope
	outgoing  chan *protocol.Envelope
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewClient creates a signaling client for the given ws:// or wss:// URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *protocol.Envelope, 32),
		outgoing:  make(chan *protocol.Envelope, 32),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.incoming <- &env
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Incoming returns the channel of inbound envelopes.
func (c *Client) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

func (c *Client) send(t protocol.EventType, payload any) error {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling client closed")
	}
}

// JoinRoom announces this peer to a room.
func (c *Client) JoinRoom(roomID, peerID, name string) error {
	return c.send(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: roomID, PeerID: peerID, Name: name})
}

// LeaveRoom removes this peer from its rooms without disconnecting.
func (c *Client) LeaveRoom(roomID, peerID string) error {
	return c.send(protocol.EventLeaveRoom, protocol.LeaveRoom{RoomID: roomID, PeerID: peerID})
}

// PublishMediaState broadcasts the local audio/video flags.
func (c *Client) PublishMediaState(s protocol.MediaState) error {
	return c.send(protocol.EventMediaState, s)
}

// PublishScreenShare broadcasts the local screen-share flag.
func (c *Client) PublishScreenShare(s protocol.ScreenShare) error {
	return c.send(protocol.EventScreenShare, s)
}

// SendChat relays a chat message to the rest of the room.
func (c *Client) SendChat(m protocol.ChatMessage) error {
	return c.send(protocol.EventSendChat, m)
}

// SendSignal relays a transport negotiation frame to one peer.
func (c *Client) SendSignal(sig protocol.RTCSignal) error {
	return c.send(protocol.EventRTCSignal, sig)
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
