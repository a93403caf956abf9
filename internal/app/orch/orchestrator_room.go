package orch

import (
	"errors"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// CreateRoom creates roomID with the caller as creator, or re-admits the
// caller as creator when it presents the fingerprint the room was created with.
// The caller leaves its current room only once roomID has accepted it.
func (o *Orchestrator) CreateRoom(id domain.MemberID, rawRoomID string, fp domain.Fingerprint) error {
	roomID, err := domain.ParseNewRoomID(rawRoomID)
	if err != nil {
		return err
	}
	if err := o.allow(id); err != nil {
		return err
	}
	conn, ok := o.Registry.Conn(id)
	if !ok {
		return domain.ErrNotInRoom
	}
	if fp.Explicit() {
		o.Registry.SetFingerprint(id, fp)
	}
	fp = o.Registry.Fingerprint(id)
	previous, _ := o.Registry.RoomOf(id)

	for {
		room, created, res := o.Rooms.Create(roomID, id, fp, conn)
		if created {
			o.moved(id, previous, roomID)
			o.applyPolicy(roomID, res)
			return nil
		}

		evicted, res, err := room.RejoinCreator(id, fp, conn)
		if errors.Is(err, core.ErrRoomClosed) {
			continue
		}
		if evicted != "" {
			o.Registry.RemoveRoom(evicted, roomID)
			log.Info().Str("module", "orch").Str("room", string(roomID)).Str("sid", string(evicted)).Msg("stale creator evicted")
		}
		if err == nil {
			o.moved(id, previous, roomID)
		}
		o.applyPolicy(roomID, res)
		return err
	}
}

// JoinRoom admits the caller to an existing room. A rejected join leaves the
// caller where it was.
func (o *Orchestrator) JoinRoom(id domain.MemberID, rawRoomID string, fp domain.Fingerprint) error {
	roomID, err := domain.ParseRoomID(rawRoomID)
	if err != nil {
		return err
	}
	if err := o.allow(id); err != nil {
		return err
	}
	conn, ok := o.Registry.Conn(id)
	if !ok {
		return domain.ErrNotInRoom
	}
	if fp.Explicit() {
		o.Registry.SetFingerprint(id, fp)
	}
	previous, _ := o.Registry.RoomOf(id)

	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	res, err := room.Admit(id, conn)
	if errors.Is(err, core.ErrRoomClosed) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("sid", string(id)).Str("room", string(roomID)).Msg("added to room")
	o.moved(id, previous, roomID)
	o.applyPolicy(roomID, res)
	return nil
}

// Leave removes the member from whatever room it is in. Idempotent.
func (o *Orchestrator) Leave(id domain.MemberID) {
	roomID, ok := o.Registry.RoomOf(id)
	if !ok {
		return
	}
	o.Registry.RemoveRoom(id, roomID)
	o.removeFrom(id, roomID)
}

// moved records next as the member's room and drops it from previous, which
// it has just left by entering next.
func (o *Orchestrator) moved(id domain.MemberID, previous, next domain.RoomID) {
	o.Registry.UpdateRoom(id, next)
	if previous == "" || previous == next {
		return
	}
	o.removeFrom(id, previous)
	log.Info().Str("module", "orch").Str("sid", string(id)).Str("from_room", string(previous)).Str("to_room", string(next)).Msg("kicked from room")
}

func (o *Orchestrator) removeFrom(id domain.MemberID, roomID domain.RoomID) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	removed, empty, res := room.Remove(id)
	if empty {
		o.Rooms.Delete(roomID, room)
	}
	if removed {
		log.Info().Str("module", "orch").Str("sid", string(id)).Str("room", string(roomID)).Msg("left room")
	}
	o.applyPolicy(roomID, res)
}

func (o *Orchestrator) allow(id domain.MemberID) error {
	if o.Limiter != nil && !o.Limiter.Allow(string(id)) {
		return domain.ErrTooManyAttempts
	}
	return nil
}
