package orch

import "github.com/dkeye/meshcall/internal/domain"

// StartShare hands the room's single screen share slot to the caller.
func (o *Orchestrator) StartShare(id domain.MemberID, rawRoomID string) error {
	roomID, ok := o.Registry.RoomOf(id)
	if !ok {
		return domain.ErrNotInRoom
	}
	if rawRoomID != "" && domain.RoomID(rawRoomID) != roomID {
		return domain.ErrNotMember
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.ErrNotInRoom
	}
	_, res, err := room.StartShare(id)
	o.applyPolicy(roomID, res)
	return err
}

// StopShare releases the slot; requests from anyone but the holder are ignored.
func (o *Orchestrator) StopShare(id domain.MemberID) bool {
	roomID, ok := o.Registry.RoomOf(id)
	if !ok {
		return false
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return false
	}
	stopped, res := room.StopShare(id)
	o.applyPolicy(roomID, res)
	return stopped
}
