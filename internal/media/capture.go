package media

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

const (
	videoFrameInterval = 33 * time.Millisecond
	audioFrameInterval = 20 * time.Millisecond
)

// sampleTrack is a synthetic local track backed by a pion sample track.
// It produces silence/black frames at the kind's frame rate; disabling
// it pauses production, which remote peers observe as a frozen source.
type sampleTrack struct {
	id    string
	kind  TrackKind
	local *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool
	stop    chan struct{}
}

func newSampleTrack(kind TrackKind, streamID string) (*sampleTrack, error) {
	var codec webrtc.RTPCodecCapability
	switch kind {
	case Audio:
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	default:
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	id := uuid.New().String()
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &sampleTrack{
		id:      id,
		kind:    kind,
		local:   local,
		enabled: true,
		stop:    make(chan struct{}),
	}
	go t.produce()
	return t, nil
}

func (t *sampleTrack) produce() {
	interval := videoFrameInterval
	if t.kind == Audio {
		interval = audioFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			// Placeholder frame; a real device would capture here.
			_ = t.local.WriteSample(pionmedia.Sample{
				Data:     []byte{0x00},
				Duration: interval,
			})
		}
	}
}

func (t *sampleTrack) ID() string               { return t.id }
func (t *sampleTrack) Kind() TrackKind          { return t.kind }
func (t *sampleTrack) Local() webrtc.TrackLocal { return t.local }

func (t *sampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *sampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *sampleTrack) Stop() { t.stopIfLive() }

// stopIfLive reports whether this call performed the stop.
func (t *sampleTrack) stopIfLive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	close(t.stop)
	return true
}

// CameraMic is the synthetic camera/microphone device.
type CameraMic struct{}

// NewCameraMic returns the default capture device.
func NewCameraMic() *CameraMic { return &CameraMic{} }

// Acquire produces a stream with the requested track kinds.
func (d *CameraMic) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := NewStream("cam-" + uuid.New().String()[:8])
	if c.Audio {
		t, err := newSampleTrack(Audio, stream.ID())
		if err != nil {
			return nil, err
		}
		stream.AddTrack(t)
	}
	if c.Video {
		t, err := newSampleTrack(Video, stream.ID())
		if err != nil {
			stream.Close()
			return nil, err
		}
		stream.AddTrack(t)
	}
	return stream, nil
}

// Display is the synthetic screen-capture device. Revoke models the user
// ending the share from outside the application.
type Display struct {
	mu      sync.Mutex
	onEnded func()
	track   *sampleTrack
}

// NewDisplay returns a display-capture device.
func NewDisplay() *Display { return &Display{} }

// Acquire produces a screen video stream. Audio constraints are ignored;
// screen capture here is video only, matching the browser default.
func (d *Display) Acquire(ctx context.Context, _ Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := NewStream("screen-" + uuid.New().String()[:8])
	t, err := newSampleTrack(Video, stream.ID())
	if err != nil {
		return nil, err
	}
	stream.AddTrack(t)

	d.mu.Lock()
	d.track = t
	d.mu.Unlock()
	return stream, nil
}

// OnEnded registers the handler fired when sharing is revoked externally.
func (d *Display) OnEnded(fn func()) {
	d.mu.Lock()
	d.onEnded = fn
	d.mu.Unlock()
}

// Revoke stops the screen track and fires the ended handler, as if the
// user ended sharing from the OS chrome. Only the device's own track is
// stopped; tracks merged into the share stream by the caller are left
// running. A share already stopped from inside the application does not
// fire the handler again.
func (d *Display) Revoke() {
	d.mu.Lock()
	track := d.track
	fn := d.onEnded
	d.track = nil
	d.mu.Unlock()

	if track == nil || !track.stopIfLive() {
		return
	}
	if fn != nil {
		fn()
	}
}
