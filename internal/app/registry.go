package app

import (
	"context"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Room        domain.RoomID
	Fingerprint domain.Fingerprint
	Conn        core.SignalConnection
	Cancel      context.CancelFunc
}

// Registry maps connected members to their transport, their last presented
// fingerprint and the room they are in.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.MemberID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.MemberID]*sessionEntry),
	}
}

func (r *Registry) Bind(
	id domain.MemberID,
	conn core.SignalConnection,
	fp domain.Fingerprint,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{
		Fingerprint: fp,
		Conn:        conn,
		Cancel:      cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("bound signal")
}

// Unbind forgets the member together with its fingerprint mapping.
func (r *Registry) Unbind(id domain.MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unbind session")
}

func (r *Registry) Conn(id domain.MemberID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Fingerprint(id domain.MemberID) domain.Fingerprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Fingerprint
	}
	return ""
}

// SetFingerprint records the fingerprint presented on create/join. Empty
// values keep the previous one.
func (r *Registry) SetFingerprint(id domain.MemberID, fp domain.Fingerprint) {
	if fp == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.Fingerprint = fp
	}
}

func (r *Registry) RoomOf(id domain.MemberID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok || entry.Room == "" {
		return "", false
	}
	return entry.Room, true
}

func (r *Registry) UpdateRoom(id domain.MemberID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return false
	}
	entry.Room = room
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(room)).Msg("updated room")
	return true
}

// RemoveRoom clears the room association if the member is still in room.
func (r *Registry) RemoveRoom(id domain.MemberID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[id]; ok && entry.Room == room {
		entry.Room = ""
		log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(room)).Msg("removed room association")
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(id domain.MemberID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("canceled session")
	return true
}
