// Package media models local capture: streams of audio/video tracks
// with mutable enabled flags, and the capture devices that produce them.
// The session layer depends only on the interfaces here, not on where
// samples come from.
package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	Audio TrackKind = "audio"
	Video TrackKind = "video"
)

// Track is one local media source. Disabling a track pauses its output
// without detaching it from any consumer.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	Stop()
	// Local exposes the underlying transport-layer track for senders.
	Local() webrtc.TrackLocal
}

// Constraints selects which kinds of tracks a device should produce.
type Constraints struct {
	Audio bool
	Video bool
}

// CaptureDevice acquires a local media stream.
type CaptureDevice interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// DisplayDevice is a capture device for screen content: the same acquire
// shape plus a notification for when sharing ends outside our control
// (the user revoking it from the OS side).
type DisplayDevice interface {
	CaptureDevice
	OnEnded(func())
}

// Stream is an ordered set of local tracks shared by the local preview
// and every outbound call.
type Stream struct {
	mu     sync.Mutex
	id     string
	tracks []Track
}

// NewStream creates an empty stream with the given id.
func NewStream(id string) *Stream {
	return &Stream{id: id}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// AddTrack appends a track to the stream. Adding the same track twice is
// a no-op, which lets screen-share merge the original audio tracks in
// without bookkeeping.
func (s *Stream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing.ID() == t.ID() {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

// Tracks returns the stream's tracks of one kind.
func (s *Stream) Tracks(kind TrackKind) []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// AllTracks returns every track in the stream.
func (s *Stream) AllTracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// SetEnabled flips the enabled flag on every track of the given kind and
// reports whether any track was affected.
func (s *Stream) SetEnabled(kind TrackKind, enabled bool) bool {
	affected := false
	for _, t := range s.Tracks(kind) {
		t.SetEnabled(enabled)
		affected = true
	}
	return affected
}

// Close stops every track in the stream.
func (s *Stream) Close() {
	for _, t := range s.AllTracks() {
		t.Stop()
	}
}
