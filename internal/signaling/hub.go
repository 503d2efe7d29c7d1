// Package signaling pairs exactly two live peers per room and relays opaque
// signaling payloads between them. Message content is never inspected; the
// only contracts are capacity enforcement and at-most-the-other-member
// delivery.
package signaling

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ppah/verify-server-go/internal/audit"
)

// MaxRoomMembers caps room membership. A third join is refused, not queued.
const MaxRoomMembers = 2

type ControlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

var (
	roomFullMessage = ControlMessage{Type: "error", Message: "ROOM_FULL"}
	peerLeftMessage = ControlMessage{Type: "peer_left"}
)

type room struct {
	mu      sync.Mutex
	members []*Peer
}

// Hub manages signaling rooms. The hub mutex only guards the room map;
// membership is serialized per room, so a busy room never blocks another.
// Lock order is always hub then room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// Join admits a peer into a room, creating it on first join. The capacity
// check and the append happen under the room lock as one atomic step. A
// refused peer gets a ROOM_FULL message and a policy-violation close.
func (h *Hub) Join(roomID string, p *Peer) bool {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{}
		h.rooms[roomID] = r
	}
	r.mu.Lock()
	h.mu.Unlock()

	if len(r.members) >= MaxRoomMembers {
		r.mu.Unlock()
		log.Warn().Str("roomId", roomID).Str("peerId", p.ID).Msg("room full, refusing join")
		audit.Log(audit.Event{
			Type:   audit.EventRoomFull,
			RoomID: roomID,
		})
		p.Refuse(roomFullMessage, "room full")
		return false
	}

	r.members = append(r.members, p)
	count := len(r.members)
	r.mu.Unlock()

	audit.Log(audit.Event{
		Type:   audit.EventPeerJoined,
		RoomID: roomID,
	})
	log.Info().Str("roomId", roomID).Str("peerId", p.ID).Int("members", count).Msg("peer joined room")
	return true
}

// Leave removes a peer. The last member out deletes the room; a remaining
// member is told its peer left.
func (h *Hub) Leave(roomID string, p *Peer) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.mu.Lock()

	removed := false
	for i, member := range r.members {
		if member == p {
			r.members = append(r.members[:i], r.members[i+1:]...)
			removed = true
			break
		}
	}

	var remaining []*Peer
	if len(r.members) == 0 {
		delete(h.rooms, roomID)
	} else {
		remaining = append(remaining, r.members...)
	}
	r.mu.Unlock()
	h.mu.Unlock()

	if !removed {
		return
	}

	for _, member := range remaining {
		if err := member.SendJSON(peerLeftMessage); err != nil {
			log.Debug().Err(err).Str("roomId", roomID).Msg("peer_left notification dropped")
		}
	}

	audit.Log(audit.Event{
		Type:   audit.EventPeerLeft,
		RoomID: roomID,
	})
	log.Info().Str("roomId", roomID).Str("peerId", p.ID).Msg("peer left room")
}

// Relay forwards payload unmodified to every room member except sender.
// Delivery is best effort: a failed send is logged and never aborts
// delivery to the other member.
func (h *Hub) Relay(roomID string, sender *Peer, payload []byte) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	members := append([]*Peer(nil), r.members...)
	r.mu.Unlock()

	for _, member := range members {
		if member == sender {
			continue
		}
		if err := member.TrySend(payload); err != nil {
			log.Debug().Err(err).Str("roomId", roomID).Str("peerId", member.ID).Msg("relay send dropped")
		}
	}
}

// MemberCount reports current room occupancy; zero for unknown rooms.
func (h *Hub) MemberCount(roomID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// RoomCount reports how many rooms currently exist.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
