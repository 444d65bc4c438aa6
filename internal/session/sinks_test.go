package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sFinOe/Video-Conference-App/internal/transport"
)

func collectingSink(count *atomic.Int32, last *atomic.Pointer[transport.RemoteStream]) Sink {
	return SinkFunc(func(rs *transport.RemoteStream) {
		count.Add(1)
		last.Store(rs)
	})
}

func TestSinkAttachWithMountedSink(t *testing.T) {
	reg := NewSinkRegistry()
	var count atomic.Int32
	var last atomic.Pointer[transport.RemoteStream]
	reg.SetSink("peer-b", collectingSink(&count, &last))

	rs := &transport.RemoteStream{}
	reg.Attach("peer-b", rs)

	assert.Equal(t, int32(1), count.Load())
	assert.Same(t, rs, last.Load())
}

func TestSinkMountDrainsPendingStream(t *testing.T) {
	reg := NewSinkRegistry()
	rs := &transport.RemoteStream{}
	reg.Attach("peer-b", rs)

	var count atomic.Int32
	var last atomic.Pointer[transport.RemoteStream]
	reg.SetSink("peer-b", collectingSink(&count, &last))

	assert.Equal(t, int32(1), count.Load(), "the sink mount resolves the parked stream")
	assert.Same(t, rs, last.Load())
}

func TestSinkNoDoubleDeliveryFromRetry(t *testing.T) {
	reg := NewSinkRegistry()
	reg.delay = 20 * time.Millisecond

	rs := &transport.RemoteStream{}
	reg.Attach("peer-b", rs)

	var count atomic.Int32
	var last atomic.Pointer[transport.RemoteStream]
	reg.SetSink("peer-b", collectingSink(&count, &last))
	require.Equal(t, int32(1), count.Load())

	// Let the scheduled retry fire; the stream must not arrive again.
	time.Sleep(3 * reg.delay)
	assert.Equal(t, int32(1), count.Load())
}

func TestSinkRemoveDropsPendingStream(t *testing.T) {
	reg := NewSinkRegistry()
	reg.delay = 20 * time.Millisecond

	reg.Attach("peer-b", &transport.RemoteStream{})
	reg.Remove("peer-b")

	var count atomic.Int32
	var last atomic.Pointer[transport.RemoteStream]
	reg.SetSink("peer-b", collectingSink(&count, &last))

	time.Sleep(3 * reg.delay)
	assert.Equal(t, int32(0), count.Load(), "removed peers deliver nothing")
}

func TestSinkMountAfterRetryWindowStillResolves(t *testing.T) {
	reg := NewSinkRegistry()
	reg.delay = 20 * time.Millisecond

	rs := &transport.RemoteStream{}
	reg.Attach("peer-b", rs)
	time.Sleep(3 * reg.delay)

	// The retry already fired with no sink mounted; the stream stays
	// parked and the next mount still picks it up.
	var count atomic.Int32
	var last atomic.Pointer[transport.RemoteStream]
	reg.SetSink("peer-b", collectingSink(&count, &last))
	assert.Equal(t, int32(1), count.Load())
}
