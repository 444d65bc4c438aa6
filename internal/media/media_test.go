package media

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTrack struct {
	id      string
	kind    TrackKind
	enabled bool
	stopped bool
}

func (t *stubTrack) ID() string               { return t.id }
func (t *stubTrack) Kind() TrackKind          { return t.kind }
func (t *stubTrack) Enabled() bool            { return t.enabled }
func (t *stubTrack) SetEnabled(e bool)        { t.enabled = e }
func (t *stubTrack) Stop()                    { t.stopped = true }
func (t *stubTrack) Local() webrtc.TrackLocal { return nil }

func TestStreamAddTrackDeduplicates(t *testing.T) {
	s := NewStream("s1")
	mic := &stubTrack{id: "mic", kind: Audio, enabled: true}

	s.AddTrack(mic)
	s.AddTrack(mic)
	s.AddTrack(&stubTrack{id: "mic", kind: Audio})

	assert.Len(t, s.AllTracks(), 1)
}

func TestStreamTracksByKind(t *testing.T) {
	s := NewStream("s1")
	s.AddTrack(&stubTrack{id: "mic", kind: Audio})
	s.AddTrack(&stubTrack{id: "cam", kind: Video})

	audio := s.Tracks(Audio)
	require.Len(t, audio, 1)
	assert.Equal(t, "mic", audio[0].ID())
	require.Len(t, s.Tracks(Video), 1)
}

func TestStreamSetEnabled(t *testing.T) {
	s := NewStream("s1")
	mic := &stubTrack{id: "mic", kind: Audio, enabled: true}
	cam := &stubTrack{id: "cam", kind: Video, enabled: true}
	s.AddTrack(mic)
	s.AddTrack(cam)

	assert.True(t, s.SetEnabled(Audio, false))
	assert.False(t, mic.enabled)
	assert.True(t, cam.enabled, "only the requested kind is affected")

	empty := NewStream("s2")
	assert.False(t, empty.SetEnabled(Video, false), "no tracks, nothing affected")
}

func TestStreamCloseStopsAllTracks(t *testing.T) {
	s := NewStream("s1")
	mic := &stubTrack{id: "mic", kind: Audio}
	cam := &stubTrack{id: "cam", kind: Video}
	s.AddTrack(mic)
	s.AddTrack(cam)

	s.Close()
	assert.True(t, mic.stopped)
	assert.True(t, cam.stopped)
}

func TestCameraMicAcquire(t *testing.T) {
	d := NewCameraMic()
	s, err := d.Acquire(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, s.Tracks(Audio), 1)
	assert.Len(t, s.Tracks(Video), 1)
	for _, tr := range s.AllTracks() {
		assert.True(t, tr.Enabled())
		assert.NotNil(t, tr.Local())
	}
}

func TestCameraMicAcquireHonorsConstraints(t *testing.T) {
	d := NewCameraMic()
	s, err := d.Acquire(context.Background(), Constraints{Video: true})
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.Tracks(Audio))
	assert.Len(t, s.Tracks(Video), 1)
}

func TestCameraMicAcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCameraMic().Acquire(ctx, Constraints{Audio: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisplayRevokeFiresEndedHandler(t *testing.T) {
	d := NewDisplay()
	s, err := d.Acquire(context.Background(), Constraints{Video: true})
	require.NoError(t, err)
	require.Len(t, s.Tracks(Video), 1)

	fired := false
	d.OnEnded(func() { fired = true })
	d.Revoke()

	assert.True(t, fired)

	// A second revoke with no live share is a no-op.
	fired = false
	d.Revoke()
	assert.False(t, fired, "handler fires only while a share is live")
}

func TestDisplayRevokeLeavesMergedTracksAlone(t *testing.T) {
	d := NewDisplay()
	s, err := d.Acquire(context.Background(), Constraints{Video: true})
	require.NoError(t, err)
	screen := s.Tracks(Video)[0].(*sampleTrack)

	// Callers merge microphone audio into the share stream; a revoke
	// must not reach it.
	mic, err := newSampleTrack(Audio, s.ID())
	require.NoError(t, err)
	s.AddTrack(mic)

	fired := false
	d.OnEnded(func() { fired = true })
	d.Revoke()

	assert.True(t, fired)
	assert.True(t, screen.stopped)
	assert.False(t, mic.stopped, "merged audio keeps running")
}

func TestDisplayRevokeAfterTrackStoppedIsNoop(t *testing.T) {
	d := NewDisplay()
	s, err := d.Acquire(context.Background(), Constraints{Video: true})
	require.NoError(t, err)

	// The application ends the share itself by stopping the track.
	s.Tracks(Video)[0].Stop()

	fired := false
	d.OnEnded(func() { fired = true })
	d.Revoke()
	assert.False(t, fired, "share already ended from inside the app")
}

func TestTrackStopIsIdempotent(t *testing.T) {
	tr, err := newSampleTrack(Audio, "s1")
	require.NoError(t, err)

	tr.Stop()
	tr.Stop()
	assert.Equal(t, Audio, tr.Kind())
}
