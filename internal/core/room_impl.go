package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory room.
// Every state change and the events it causes happen under one lock, so
// members observe events in the order the changes were made.
// It never closes adapter-owned resources.
type Room struct {
	id        domain.RoomID
	createdAt time.Time

	mu        sync.Mutex
	members   map[domain.MemberID]SignalConnection
	order     []domain.MemberID
	creator   domain.MemberID
	creatorFP domain.Fingerprint
	sharer    domain.MemberID
	closed    bool
}

// NewRoom creates a room holding only its creator and sends room-created to it.
func NewRoom(id domain.RoomID, creator domain.MemberID, fp domain.Fingerprint, conn SignalConnection, now time.Time) (*Room, PublishResult) {
	r := &Room{
		id:        id,
		createdAt: now,
		members:   make(map[domain.MemberID]SignalConnection, domain.MaxMembers),
		creator:   creator,
		creatorFP: fp,
	}
	r.add(creator, conn)

	var res PublishResult
	res.deliver(creator, conn, protocol.RoomCreated{RoomID: id, MemberID: creator})
	log.Info().Str("module", "core.room").Str("room", string(id)).Str("sid", string(creator)).Msg("room created")
	return r, res
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) Has(id domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) Stats() domain.RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked()
}

// Admit adds a member unless the room is full, replies room-joined to it and
// announces user-joined to everybody else.
func (r *Room) Admit(id domain.MemberID, conn SignalConnection) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res PublishResult
	if r.closed {
		return res, ErrRoomClosed
	}
	if _, ok := r.members[id]; !ok && len(r.members) >= domain.MaxMembers {
		return res, domain.ErrRoomFull
	}

	existing := r.othersLocked(id)
	r.add(id, conn)
	stats := r.statsLocked()

	res.deliver(id, conn, protocol.RoomJoined{
		RoomID:        r.id,
		MemberID:      id,
		ExistingUsers: existing,
		Stats:         stats,
		IsCreator:     r.creator == id,
	})
	r.broadcastLocked(&res, id, protocol.UserJoined{MemberID: id, Stats: stats})

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Int("members", len(r.members)).Msg("member added")
	return res, nil
}

// RejoinCreator re-admits the creator presenting the stored fingerprint. A
// stale connection of the creator still listed in the room is evicted and
// returned so the caller can detach it.
func (r *Room) RejoinCreator(id domain.MemberID, fp domain.Fingerprint, conn SignalConnection) (domain.MemberID, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res PublishResult
	if r.closed {
		return "", res, ErrRoomClosed
	}
	if fp == "" || fp != r.creatorFP {
		return "", res, domain.ErrRoomExists
	}

	var evicted domain.MemberID
	if old := r.creator; old != id {
		if _, ok := r.members[old]; ok {
			r.removeLocked(&res, old)
			evicted = old
		}
	}
	if _, ok := r.members[id]; !ok && len(r.members) >= domain.MaxMembers {
		return evicted, res, domain.ErrRoomFull
	}

	r.creator = id
	existing := r.othersLocked(id)
	r.add(id, conn)

	res.deliver(id, conn, protocol.RoomRejoined{
		RoomID:        r.id,
		MemberID:      id,
		ExistingUsers: existing,
		Stats:         r.statsLocked(),
	})
	r.broadcastLocked(&res, id, protocol.UserRejoined{MemberID: id, IsCreator: true})

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Str("evicted", string(evicted)).Msg("creator rejoined")
	return evicted, res, nil
}

// Remove drops a member, releasing the screen share slot it held. When the
// last member leaves the room is closed and empty is true.
func (r *Room) Remove(id domain.MemberID) (removed, empty bool, res PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false, r.closed, res
	}
	r.removeLocked(&res, id)
	if len(r.members) == 0 {
		r.closed = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Int("members", len(r.members)).Msg("member removed")
	return true, r.closed, res
}

// StartShare gives the screen share slot to id. A different previous holder
// is told to stop and the room hears it stopped before hearing who started.
func (r *Room) StartShare(id domain.MemberID) (domain.MemberID, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res PublishResult
	if _, ok := r.members[id]; !ok {
		return "", res, domain.ErrNotMember
	}

	var previous domain.MemberID
	if r.sharer != "" && r.sharer != id {
		previous = r.sharer
		if conn, ok := r.members[previous]; ok {
			res.deliver(previous, conn, protocol.ForceStopScreenShare{Reason: ReasonPreempted})
		}
		r.broadcastLocked(&res, id, protocol.ScreenShareStopped{RoomID: string(r.id), MemberID: previous})
	}
	r.sharer = id
	r.broadcastLocked(&res, id, protocol.ScreenShareStarted{RoomID: string(r.id), MemberID: id})

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Str("previous", string(previous)).Msg("screen share started")
	return previous, res, nil
}

// StopShare clears the slot only when id holds it.
func (r *Room) StopShare(id domain.MemberID) (bool, PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res PublishResult
	if r.sharer != id || id == "" {
		return false, res
	}
	r.sharer = ""
	r.broadcastLocked(&res, id, protocol.ScreenShareStopped{RoomID: string(r.id), MemberID: id})
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Msg("screen share stopped")
	return true, res
}

// Chat fans the message out to every member, sender included.
func (r *Room) Chat(msg protocol.ChatMessage) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res PublishResult
	if _, ok := r.members[msg.SenderID]; !ok {
		return res, domain.ErrNotMember
	}
	msg.RoomID = string(r.id)
	r.broadcastLocked(&res, "", msg)
	return res, nil
}

func (r *Room) add(id domain.MemberID, conn SignalConnection) {
	if _, ok := r.members[id]; !ok {
		r.order = append(r.order, id)
	}
	r.members[id] = conn
}

func (r *Room) removeLocked(res *PublishResult, id domain.MemberID) {
	delete(r.members, id)
	r.order = slices.DeleteFunc(r.order, func(m domain.MemberID) bool { return m == id })
	if r.sharer == id {
		r.sharer = ""
		r.broadcastLocked(res, id, protocol.ScreenShareStopped{RoomID: string(r.id), MemberID: id})
	}
	r.broadcastLocked(res, id, protocol.UserLeft{MemberID: id})
}

func (r *Room) broadcastLocked(res *PublishResult, from domain.MemberID, m protocol.Message) {
	for _, id := range r.order {
		if id == from {
			continue
		}
		res.deliver(id, r.members[id], m)
	}
}

func (r *Room) othersLocked(self domain.MemberID) []domain.MemberID {
	out := make([]domain.MemberID, 0, len(r.order))
	for _, id := range r.order {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func (r *Room) statsLocked() domain.RoomStats {
	var sharer *domain.MemberID
	if r.sharer != "" {
		id := r.sharer
		sharer = &id
	}
	return domain.RoomStats{
		RoomID:                r.id,
		MemberCount:           len(r.members),
		Members:               slices.Clone(r.order),
		CreatorID:             r.creator,
		ScreenSharingMemberID: sharer,
		CreatedAt:             r.createdAt,
	}
}
