package mesh

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
)

func (m *Manager) offer(l *link) {
	l.negMu.Lock()
	defer l.negMu.Unlock()
	if !m.isCurrent(l) {
		return
	}
	desc, err := l.pc.CreateOffer()
	if err != nil {
		m.negotiationFailed(l, newError("create offer", l.remote, err))
		return
	}
	m.sendFor(l, protocol.Offer{To: l.remote, SDP: protocol.SessionDescriptionFromPion(desc)})
}

func (m *Manager) handleOffer(from domain.MemberID, sdp protocol.SessionDescription) {
	l, err := m.ensureLink(from)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("link setup failed")
		return
	}
	m.tasks.Go(func() {
		l.negMu.Lock()
		defer l.negMu.Unlock()
		if !m.isCurrent(l) {
			return
		}
		if err := m.applyRemote(l, sdp); err != nil {
			m.negotiationFailed(l, err)
			return
		}
		answer, err := l.pc.CreateAnswer()
		if err != nil {
			m.negotiationFailed(l, newError("create answer", from, err))
			return
		}
		m.sendFor(l, protocol.Answer{To: from, SDP: protocol.SessionDescriptionFromPion(answer)})
	})
}

func (m *Manager) handleAnswer(from domain.MemberID, sdp protocol.SessionDescription) {
	m.mu.Lock()
	l, ok := m.links[from]
	m.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "mesh").Str("remote", string(from)).Msg("answer for unknown link")
		return
	}
	m.tasks.Go(func() {
		l.negMu.Lock()
		defer l.negMu.Unlock()
		if !m.isCurrent(l) {
			return
		}
		if l.pc.SignalingState() == webrtc.SignalingStateStable {
			log.Debug().Str("module", "mesh").Str("remote", string(from)).Msg("answer ignored in stable state")
			return
		}
		if err := m.applyRemote(l, sdp); err != nil {
			m.negotiationFailed(l, err)
		}
	})
}

// applyRemote sets the remote description and flushes queued candidates.
// The caller holds l.negMu, so candidates arriving meanwhile wait behind the
// flush and keep their order.
func (m *Manager) applyRemote(l *link, sdp protocol.SessionDescription) error {
	desc, err := sdp.ToPion()
	if err != nil {
		return newError("parse description", l.remote, err)
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return newError("set remote description", l.remote, err)
	}

	m.mu.Lock()
	l.remoteSet = true
	queued := m.pending.Take(l.remote)
	m.mu.Unlock()

	for _, c := range queued {
		m.addCandidate(l, c)
	}
	return nil
}

func (m *Manager) handleCandidate(from domain.MemberID, c webrtc.ICECandidateInit) {
	m.mu.Lock()
	l, ok := m.links[from]
	if !ok || !l.remoteSet {
		m.pending.Push(from, c)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	l.negMu.Lock()
	defer l.negMu.Unlock()
	if !m.isCurrent(l) {
		return
	}
	m.addCandidate(l, c)
}

func (m *Manager) addCandidate(l *link, c webrtc.ICECandidateInit) {
	if err := l.pc.AddICECandidate(c); err != nil {
		log.Warn().Err(newError("add candidate", l.remote, err)).Str("module", "mesh").Msg("candidate skipped")
	}
}

func (m *Manager) negotiationFailed(l *link, err error) {
	log.Error().Err(err).Str("module", "mesh").Msg("negotiation failed")
	m.mu.Lock()
	if !m.isCurrentLocked(l) {
		m.mu.Unlock()
		return
	}
	l.state = StateFailed
	m.detachLocked(l)
	m.mu.Unlock()
	m.finishRemoval(l, "negotiation failed")
}

// sendFor sends a description produced by l unless l was replaced or torn
// down while it was being produced.
func (m *Manager) sendFor(l *link, msg protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCurrentLocked(l) {
		log.Debug().Str("module", "mesh").Str("remote", string(l.remote)).Str("type", string(msg.Kind())).Msg("stale description dropped")
		return
	}
	m.send(msg)
}

func (m *Manager) isCurrentLocked(l *link) bool {
	cur, ok := m.links[l.remote]
	return ok && cur == l
}
