package session

import (
	"errors"
	"sync"

	"github.com/sFinOe/Video-Conference-App/internal/media"
	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// ErrSharing is returned when toggling camera video while a screen
// share is active; the two local states are mutually exclusive.
var ErrSharing = errors.New("session: camera toggle not allowed while screen sharing")

// StatePublisher publishes local media-state changes to the room.
type StatePublisher interface {
	PublishMediaState(protocol.MediaState) error
	PublishScreenShare(protocol.ScreenShare) error
}

// MediaStateTracker holds the local enabled flags and republishes every
// local change. Remote peers' flags live in the controller's roster;
// receiving a remote change never touches local state.
type MediaStateTracker struct {
	pub StatePublisher

	mu           sync.Mutex
	roomID       string
	peerID       string
	audioEnabled bool
	videoEnabled bool
	sharing      bool
}

// NewMediaStateTracker returns a tracker with both kinds enabled, the
// participant default.
func NewMediaStateTracker(pub StatePublisher) *MediaStateTracker {
	return &MediaStateTracker{pub: pub, audioEnabled: true, videoEnabled: true}
}

// SetIdentity binds the tracker to the joined room and assigned peer id.
func (t *MediaStateTracker) SetIdentity(roomID, peerID string) {
	t.mu.Lock()
	t.roomID = roomID
	t.peerID = peerID
	t.mu.Unlock()
}

// ToggleAudio flips the audio flag on every audio track of the stream
// and publishes the combined state. Returns the new audio flag.
func (t *MediaStateTracker) ToggleAudio(stream *media.Stream) (bool, error) {
	t.mu.Lock()
	t.audioEnabled = !t.audioEnabled
	state := t.stateLocked()
	enabled := t.audioEnabled
	t.mu.Unlock()

	if stream != nil {
		stream.SetEnabled(media.Audio, enabled)
	}
	return enabled, t.pub.PublishMediaState(state)
}

// ToggleVideo flips the video flag, unless a screen share is active.
func (t *MediaStateTracker) ToggleVideo(stream *media.Stream) (bool, error) {
	t.mu.Lock()
	if t.sharing {
		t.mu.Unlock()
		return t.videoEnabled, ErrSharing
	}
	t.videoEnabled = !t.videoEnabled
	state := t.stateLocked()
	enabled := t.videoEnabled
	t.mu.Unlock()

	if stream != nil {
		stream.SetEnabled(media.Video, enabled)
	}
	return enabled, t.pub.PublishMediaState(state)
}

// SetScreenSharing records and publishes the screen-share flag.
func (t *MediaStateTracker) SetScreenSharing(sharing bool) error {
	t.mu.Lock()
	t.sharing = sharing
	share := protocol.ScreenShare{RoomID: t.roomID, PeerID: t.peerID, IsScreenSharing: sharing}
	t.mu.Unlock()
	return t.pub.PublishScreenShare(share)
}

func (t *MediaStateTracker) stateLocked() protocol.MediaState {
	return protocol.MediaState{
		RoomID:       t.roomID,
		PeerID:       t.peerID,
		VideoEnabled: t.videoEnabled,
		AudioEnabled: t.audioEnabled,
	}
}

// Snapshot returns the current local flags.
func (t *MediaStateTracker) Snapshot() (videoEnabled, audioEnabled, sharing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoEnabled, t.audioEnabled, t.sharing
}
