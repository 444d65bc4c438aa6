package signaling

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for SDP
	// payloads relayed through rtc-signal.
	maxMessageSize = 64 * 1024

	// Outbound buffer per client. A client that falls this far behind
	// gets disconnected rather than blocking the hub.
	sendBuffer = 256
)

// Client wraps a single websocket connection to the gateway.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// peerID is bound by the hub on the first join-room and is stable
	// for the connection's lifetime.
	peerID string

	// send is the buffered outbound queue drained by WritePump.
	send chan *protocol.Envelope

	// closed is set by the hub goroutine once send has been closed, so
	// events still queued from this client cannot write to it.
	closed bool

	log zerolog.Logger
}

// NewClient wires a freshly upgraded connection to the hub. The caller
// starts the pumps.
func NewClient(hub *Hub, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *protocol.Envelope, sendBuffer),
		log:  log,
	}
}

// enqueue hands an envelope to the client's writer, dropping the client
// if its buffer is full. Called only from the hub goroutine.
func (c *Client) enqueue(env *protocol.Envelope) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		c.log.Warn().Str("type", string(env.Type)).Msg("send buffer full, dropping client")
		return false
	}
}

// ReadPump pumps envelopes from the websocket to the hub. It runs in a
// per-connection goroutine; all reads happen here.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("unexpected close")
			}
			break
		}
		c.hub.Dispatch(c, &env)
	}
}

// WritePump pumps envelopes from the hub to the websocket and sends
// periodic pings. It runs in a per-connection goroutine; all writes
// happen here. It exits when the hub closes the send channel.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Error().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
