package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const metaChannelLabel = "meta"

// metaMessage is the msgpack-framed control message exchanged once per
// call on the meta data channel. It labels the stream the peer is
// sending so the UI can name tiles before any signaling-level roster
// update arrives.
type metaMessage struct {
	Kind       string `msgpack:"kind"`
	DeviceName string `msgpack:"deviceName"`
	StreamID   string `msgpack:"streamId"`
}

const metaKindHello = "hello"

// metaChannel wraps the per-call data channel.
type metaChannel struct {
	dc *webrtc.DataChannel

	mu         sync.Mutex
	remoteName string
	remoteSID  string
}

func (c *pionCall) bindMetaChannel(dc *webrtc.DataChannel, deviceName, streamID string) {
	m := &metaChannel{dc: dc}

	dc.OnOpen(func() {
		hello := metaMessage{Kind: metaKindHello, DeviceName: deviceName, StreamID: streamID}
		data, err := msgpack.Marshal(hello)
		if err != nil {
			return
		}
		_ = dc.Send(data)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var in metaMessage
		if err := msgpack.Unmarshal(msg.Data, &in); err != nil {
			return
		}
		if in.Kind != metaKindHello {
			return
		}
		m.mu.Lock()
		m.remoteName = in.DeviceName
		m.remoteSID = in.StreamID
		m.mu.Unlock()
	})

	c.mu.Lock()
	c.meta = m
	c.mu.Unlock()
}

// RemoteDeviceName returns the device name announced by the peer on the
// meta channel, or empty if none arrived yet.
func (c *pionCall) RemoteDeviceName() string {
	c.mu.Lock()
	m := c.meta
	c.mu.Unlock()
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteName
}
