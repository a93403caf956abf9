package mesh

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/protocol"
)

// StartScreenShare switches every link to the screen track and announces it.
// The relay may answer another sharer with force-stop-screen-share.
func (m *Manager) StartScreenShare() error {
	m.mu.Lock()
	if m.room == "" {
		m.mu.Unlock()
		return ErrNotInRoom
	}
	if m.sharing {
		m.mu.Unlock()
		return nil
	}
	m.sharing = true
	room := m.room
	links := m.snapshotLocked()
	m.mu.Unlock()

	m.replaceVideo(links, true)
	m.send(protocol.ScreenShareStarted{RoomID: string(room)})
	return nil
}

// StopScreenShare restores the camera track. It is a no-op when not sharing.
func (m *Manager) StopScreenShare() {
	room, links, ok := m.stopSharing()
	if !ok {
		return
	}
	m.replaceVideo(links, false)
	if room != "" {
		m.send(protocol.ScreenShareStopped{RoomID: string(room)})
	}
}

// handleForceStop restores the camera without announcing it; the relay has
// already handed the slot to someone else.
func (m *Manager) handleForceStop(reason string) {
	_, links, ok := m.stopSharing()
	if ok {
		m.replaceVideo(links, false)
	}
	log.Info().Str("module", "mesh").Str("reason", reason).Msg("screen share preempted")
	if m.events.OnForceStop != nil {
		m.events.OnForceStop(reason)
	}
}

func (m *Manager) stopSharing() (room string, links []*link, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sharing {
		return "", nil, false
	}
	m.sharing = false
	return string(m.room), m.snapshotLocked(), true
}

func (m *Manager) snapshotLocked() []*link {
	out := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

func (m *Manager) replaceVideo(links []*link, screen bool) {
	for _, l := range links {
		if err := l.pc.ReplaceVideo(screen); err != nil {
			log.Warn().Err(newError("replace video", l.remote, err)).Str("module", "mesh").Msg("track replacement failed")
		}
	}
}
