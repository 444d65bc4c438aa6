// Package registry holds the authoritative in-memory map of rooms to
// participants. It is the single source of truth for membership; the
// gateway is its only writer.
package registry

import (
	"sync"

	"github.com/sFinOe/Video-Conference-App/internal/protocol"
)

// StatePatch is a partial update to a participant's media flags. Nil
// fields are left untouched.
type StatePatch struct {
	VideoEnabled    *bool
	AudioEnabled    *bool
	IsScreenSharing *bool
}

// Departure describes one room affected by a peer leaving: the room id
// and the roster that remains, so the gateway can notify the survivors.
type Departure struct {
	RoomID    string
	Remaining []protocol.Participant
}

type room struct {
	mu    sync.Mutex
	peers map[string]*protocol.Participant
	order []string // join order, for stable rosters
}

func (r *room) roster(exclude string) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(r.order))
	for _, id := range r.order {
		if id == exclude {
			continue
		}
		if p, ok := r.peers[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Registry maps room ids to participant sets. Membership changes
// (join/leave) serialize on the registry lock because they may create or
// delete rooms; per-participant state updates only contend within their
// own room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds the peer to the room, creating the room if absent, and
// returns the current roster excluding the joiner. Rejoining with a peer
// id already present does not create a second entry; it refreshes the
// display name only, and the second return reports whether the peer was
// actually new (callers suppress the peer-joined broadcast otherwise).
func (reg *Registry) Join(roomID, peerID, name string) ([]protocol.Participant, bool) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok {
		r = &room{peers: make(map[string]*protocol.Participant)}
		reg.rooms[roomID] = r
	}
	r.mu.Lock()
	reg.mu.Unlock()
	defer r.mu.Unlock()

	if p, exists := r.peers[peerID]; exists {
		p.Name = name
		return r.roster(peerID), false
	}

	r.peers[peerID] = &protocol.Participant{
		PeerID:       peerID,
		Name:         name,
		VideoEnabled: true,
		AudioEnabled: true,
	}
	r.order = append(r.order, peerID)
	return r.roster(peerID), true
}

// Leave removes the peer from every room it belongs to and deletes any
// room left empty. It returns one Departure per affected room.
func (reg *Registry) Leave(peerID string) []Departure {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var departed []Departure
	for roomID, r := range reg.rooms {
		r.mu.Lock()
		if _, ok := r.peers[peerID]; !ok {
			r.mu.Unlock()
			continue
		}
		delete(r.peers, peerID)
		for i, id := range r.order {
			if id == peerID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		remaining := r.roster("")
		empty := len(r.peers) == 0
		r.mu.Unlock()

		if empty {
			delete(reg.rooms, roomID)
		}
		departed = append(departed, Departure{RoomID: roomID, Remaining: remaining})
	}
	return departed
}

// UpdateState merges the patch into the matching participant. It is a
// no-op, reported as false, if the room or peer is unknown.
func (reg *Registry) UpdateState(roomID, peerID string, patch StatePatch) bool {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return false
	}
	if patch.VideoEnabled != nil {
		p.VideoEnabled = *patch.VideoEnabled
	}
	if patch.AudioEnabled != nil {
		p.AudioEnabled = *patch.AudioEnabled
	}
	if patch.IsScreenSharing != nil {
		p.IsScreenSharing = *patch.IsScreenSharing
	}
	return true
}

// Roster returns the room's participants in join order, or ok=false if
// the room does not exist.
func (reg *Registry) Roster(roomID string) ([]protocol.Participant, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster(""), true
}

// Member reports whether the peer currently belongs to the room.
func (reg *Registry) Member(roomID, peerID string) bool {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok = r.peers[peerID]
	return ok
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// ParticipantCount returns the number of participant entries across all
// rooms. A peer in two rooms counts twice.
func (reg *Registry) ParticipantCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	n := 0
	for _, r := range reg.rooms {
		r.mu.Lock()
		n += len(r.peers)
		r.mu.Unlock()
	}
	return n
}
