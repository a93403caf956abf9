package app

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
	now   func() time.Time
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.RoomID]*core.Room),
		now:   time.Now,
	}
}

// Create returns the live room registered under id, or creates one with
// creator as its only member. created reports which of the two happened.
func (f *RoomManager) Create(
	id domain.RoomID,
	creator domain.MemberID,
	fp domain.Fingerprint,
	conn core.SignalConnection,
) (room *core.Room, created bool, res core.PublishResult) {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok && !room.Closed() {
		return room, false, res
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok && !room.Closed() {
		return room, false, res
	}
	room, res = core.NewRoom(id, creator, fp, conn, f.now())
	f.rooms[id] = room
	return room, true, res
}

// Get returns the live room registered under id.
func (f *RoomManager) Get(id domain.RoomID) (*core.Room, bool) {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if !ok || room.Closed() {
		return nil, false
	}
	return room, true
}

// Delete drops id only while it still maps to room, so a room recreated
// under the same id after the old one emptied is left alone.
func (f *RoomManager) Delete(id domain.RoomID, room *core.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[id]; ok && cur == room {
		delete(f.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted (empty)")
	}
}

func (f *RoomManager) List() []domain.RoomStats {
	f.mu.RLock()
	rooms := make([]*core.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]domain.RoomStats, 0, len(rooms))
	for _, r := range rooms {
		if st := r.Stats(); st.MemberCount > 0 {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, b domain.RoomStats) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (f *RoomManager) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}
