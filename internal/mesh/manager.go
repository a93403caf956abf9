package mesh

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
)

type Options struct {
	GracePeriod time.Duration
	Events      Events
}

// Manager owns the links of one participant. HandleMessage must be called
// from a single goroutine in the order messages arrive from the relay.
type Manager struct {
	signaler Signaler
	factory  ConnectionFactory
	grace    time.Duration
	events   Events

	tasks conc.WaitGroup

	mu          sync.Mutex
	self        domain.MemberID
	room        domain.RoomID
	creator     bool
	fingerprint domain.Fingerprint
	joined      bool // a create or join was requested and not left
	wantCreate  bool
	wantRoom    string
	sharing     bool
	links       map[domain.MemberID]*link
	pending     *CandidateBuffer
	nextGen     uint64
	closed      bool
}

func NewManager(s Signaler, f ConnectionFactory, opts Options) *Manager {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Manager{
		signaler: s,
		factory:  f,
		grace:    grace,
		events:   opts.Events,
		links:    make(map[domain.MemberID]*link),
		pending:  NewCandidateBuffer(),
	}
}

func (m *Manager) Self() domain.MemberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

func (m *Manager) Room() domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

func (m *Manager) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sharing
}

// Peers returns the current links ordered by nothing in particular.
func (m *Manager) Peers() []PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerInfo, 0, len(m.links))
	for id, l := range m.links {
		out = append(out, PeerInfo{Remote: id, State: l.state, Pending: m.pending.Len(id)})
	}
	return out
}

// CreateRoom asks the relay to create roomID. Sending it again with the same
// fingerprint re-admits this participant as the creator.
func (m *Manager) CreateRoom(roomID string, fp domain.Fingerprint) error {
	return m.request(roomID, fp, true)
}

func (m *Manager) JoinRoom(roomID string, fp domain.Fingerprint) error {
	return m.request(roomID, fp, false)
}

func (m *Manager) request(roomID string, fp domain.Fingerprint, create bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.joined = true
	m.wantCreate = create
	m.wantRoom = roomID
	m.fingerprint = fp
	m.mu.Unlock()

	if create {
		return m.signaler.Send(protocol.CreateRoom{RoomID: roomID, Fingerprint: fp})
	}
	return m.signaler.Send(protocol.JoinRoom{RoomID: roomID, Fingerprint: fp})
}

// Resume is called after the signaling connection was re-established. The
// old member id is gone on the relay, so every link is dropped and the last
// create or join request is sent again.
func (m *Manager) Resume() error {
	m.mu.Lock()
	if m.closed || !m.joined {
		m.mu.Unlock()
		return nil
	}
	create, roomID, fp := m.wantCreate, m.wantRoom, m.fingerprint
	if m.creator {
		create = true
		if m.room != "" {
			roomID = string(m.room)
		}
	}
	dropped := m.detachAllLocked()
	m.room = ""
	m.self = ""
	m.sharing = false
	m.mu.Unlock()

	m.closeLinks(dropped)
	log.Info().Str("module", "mesh").Str("room", roomID).Bool("creator", create).Msg("resuming session")
	return m.request(roomID, fp, create)
}

// SendChat posts text to the current room.
func (m *Manager) SendChat(text, senderName string) error {
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()
	if room == "" {
		return ErrNotInRoom
	}
	return m.signaler.Send(protocol.ChatMessage{RoomID: string(room), Text: text, SenderName: senderName})
}

// HandleMessage applies one envelope received from the relay.
func (m *Manager) HandleMessage(msg protocol.Message) {
	switch v := msg.(type) {
	case protocol.RoomCreated:
		m.enterRoom(v.RoomID, v.MemberID, true, nil)
	case protocol.RoomJoined:
		m.enterRoom(v.RoomID, v.MemberID, v.IsCreator, v.ExistingUsers)
	case protocol.RoomRejoined:
		m.enterRoom(v.RoomID, v.MemberID, true, v.ExistingUsers)
	case protocol.UserJoined:
		m.peerArrived(v.MemberID)
	case protocol.UserRejoined:
		m.peerArrived(v.MemberID)
	case protocol.UserLeft:
		m.removePeer(v.MemberID, "user left")
	case protocol.Offer:
		m.handleOffer(v.From, v.SDP)
	case protocol.Answer:
		m.handleAnswer(v.From, v.SDP)
	case protocol.ICECandidate:
		m.handleCandidate(v.From, v.Candidate.ToPion())
	case protocol.ChatMessage:
		if m.events.OnChat != nil {
			m.events.OnChat(v)
		}
	case protocol.ScreenShareStarted:
		if m.events.OnShareChanged != nil {
			m.events.OnShareChanged(v.MemberID, true)
		}
	case protocol.ScreenShareStopped:
		if m.events.OnShareChanged != nil {
			m.events.OnShareChanged(v.MemberID, false)
		}
	case protocol.ForceStopScreenShare:
		m.handleForceStop(v.Reason)
	case protocol.Error:
		log.Warn().Str("module", "mesh").Str("message", v.Message).Msg("relay error")
		if m.events.OnError != nil {
			m.events.OnError(v.Message)
		}
	case protocol.Pong:
	default:
		log.Debug().Str("module", "mesh").Str("type", string(msg.Kind())).Msg("ignored message")
	}
}

// enterRoom prepares links to everyone already present. The newcomer never
// offers; it waits for their offers. Links into a previous room are dropped.
func (m *Manager) enterRoom(room domain.RoomID, self domain.MemberID, creator bool, existing []domain.MemberID) {
	m.mu.Lock()
	var stale []*link
	if m.room != "" && m.room != room {
		stale = m.detachAllLocked()
		m.sharing = false
	}
	m.room = room
	m.self = self
	m.creator = creator
	m.mu.Unlock()

	for _, l := range stale {
		m.finishRemoval(l, "room changed")
	}

	log.Info().Str("module", "mesh").Str("room", string(room)).Str("sid", string(self)).Int("existing", len(existing)).Msg("entered room")
	for _, remote := range existing {
		if remote == self {
			continue
		}
		if _, err := m.ensureLink(remote); err != nil {
			log.Error().Err(err).Str("module", "mesh").Msg("link setup failed")
		}
	}
	if m.events.OnRoomJoined != nil {
		m.events.OnRoomJoined(room, self, creator)
	}
}

func (m *Manager) peerArrived(remote domain.MemberID) {
	if remote == m.Self() {
		return
	}
	l, err := m.ensureLink(remote)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("link setup failed")
		return
	}
	m.tasks.Go(func() { m.offer(l) })
}

// ensureLink returns the live link to remote, creating it if needed.
func (m *Manager) ensureLink(remote domain.MemberID) (*link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if l, ok := m.links[remote]; ok {
		return l, nil
	}

	m.nextGen++
	l := &link{remote: remote, gen: m.nextGen, state: StateNegotiating}
	pc, err := m.factory.NewConnection(remote, m.sharing, m.handlersFor(remote, l.gen))
	if err != nil {
		return nil, newError("create connection", remote, err)
	}
	l.pc = pc
	m.links[remote] = l
	log.Debug().Str("module", "mesh").Str("remote", string(remote)).Uint64("gen", l.gen).Msg("link created")
	return l, nil
}

func (m *Manager) handlersFor(remote domain.MemberID, gen uint64) LinkHandlers {
	return LinkHandlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			if !m.isCurrentGen(remote, gen) {
				return
			}
			m.send(protocol.ICECandidate{To: remote, Candidate: protocol.CandidateFromPion(c)})
		},
		OnTrack: func(kind webrtc.RTPCodecType) {
			m.onTrack(remote, gen, kind)
		},
		OnStateChange: func(s webrtc.PeerConnectionState) {
			m.onStateChange(remote, gen, s)
		},
	}
}

func (m *Manager) isCurrentGen(remote domain.MemberID, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[remote]
	return ok && l.gen == gen
}

func (m *Manager) isCurrent(l *link) bool {
	return m.isCurrentGen(l.remote, l.gen)
}

func (m *Manager) send(msg protocol.Message) {
	if err := m.signaler.Send(msg); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("type", string(msg.Kind())).Msg("send failed")
	}
}

func (m *Manager) onTrack(remote domain.MemberID, gen uint64, kind webrtc.RTPCodecType) {
	m.mu.Lock()
	l, ok := m.links[remote]
	if !ok || l.gen != gen {
		m.mu.Unlock()
		return
	}
	became := l.state == StateNegotiating
	if became {
		l.state = StateConnected
	}
	m.mu.Unlock()

	if m.events.OnTrack != nil {
		m.events.OnTrack(remote, kind)
	}
	if became && m.events.OnPeerConnected != nil {
		m.events.OnPeerConnected(remote)
	}
}

func (m *Manager) onStateChange(remote domain.MemberID, gen uint64, s webrtc.PeerConnectionState) {
	m.mu.Lock()
	l, ok := m.links[remote]
	if !ok || l.gen != gen {
		m.mu.Unlock()
		return
	}
	log.Debug().Str("module", "mesh").Str("remote", string(remote)).Str("state", s.String()).Msg("connection state")

	switch s {
	case webrtc.PeerConnectionStateConnected:
		l.stopTimerLocked()
		was := l.state
		l.state = StateConnected
		m.mu.Unlock()
		if was != StateConnected && m.events.OnPeerConnected != nil {
			m.events.OnPeerConnected(remote)
		}
	case webrtc.PeerConnectionStateDisconnected:
		l.state = StateDisconnected
		m.armGraceLocked(l)
		m.mu.Unlock()
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		l.state = StateFailed
		m.detachLocked(l)
		m.mu.Unlock()
		m.finishRemoval(l, s.String())
	default:
		m.mu.Unlock()
	}
}

func (m *Manager) armGraceLocked(l *link) {
	l.stopTimerLocked()
	seq := l.timerSeq
	remote, gen := l.remote, l.gen
	l.timer = time.AfterFunc(m.grace, func() { m.graceExpired(remote, gen, seq) })
}

func (m *Manager) graceExpired(remote domain.MemberID, gen, seq uint64) {
	m.mu.Lock()
	l, ok := m.links[remote]
	if !ok || l.gen != gen || l.timerSeq != seq || l.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.detachLocked(l)
	m.mu.Unlock()
	m.finishRemoval(l, "grace period expired")
}

func (m *Manager) removePeer(remote domain.MemberID, reason string) {
	m.mu.Lock()
	l, ok := m.links[remote]
	if !ok {
		m.pending.Drop(remote)
		m.mu.Unlock()
		return
	}
	m.detachLocked(l)
	m.mu.Unlock()
	m.finishRemoval(l, reason)
}

// detachLocked forgets l and its queued candidates. The connection itself is
// closed by finishRemoval outside the lock.
func (m *Manager) detachLocked(l *link) {
	l.stopTimerLocked()
	if cur, ok := m.links[l.remote]; ok && cur == l {
		delete(m.links, l.remote)
	}
	m.pending.Drop(l.remote)
}

func (m *Manager) detachAllLocked() []*link {
	out := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		l.stopTimerLocked()
		out = append(out, l)
	}
	clear(m.links)
	m.pending.Reset()
	return out
}

func (m *Manager) finishRemoval(l *link, reason string) {
	if err := l.pc.Close(); err != nil {
		log.Debug().Err(err).Str("module", "mesh").Str("remote", string(l.remote)).Msg("close failed")
	}
	log.Info().Str("module", "mesh").Str("remote", string(l.remote)).Str("reason", reason).Msg("link removed")
	if m.events.OnPeerRemoved != nil {
		m.events.OnPeerRemoved(l.remote)
	}
}

func (m *Manager) closeLinks(links []*link) {
	var wg conc.WaitGroup
	for _, l := range links {
		wg.Go(func() {
			if err := l.pc.Close(); err != nil {
				log.Debug().Err(err).Str("module", "mesh").Str("remote", string(l.remote)).Msg("close failed")
			}
		})
	}
	wg.Wait()
}

// Leave closes every link, stops every timer, clears every queue and tells
// the relay. Calling it again is a no-op.
func (m *Manager) Leave() {
	m.mu.Lock()
	if !m.joined && m.room == "" && len(m.links) == 0 {
		m.mu.Unlock()
		return
	}
	room := m.room
	links := m.detachAllLocked()
	m.room = ""
	m.creator = false
	m.sharing = false
	m.joined = false
	m.mu.Unlock()

	m.closeLinks(links)
	if room != "" {
		m.send(protocol.LeaveRoom{RoomID: string(room)})
	}
	log.Info().Str("module", "mesh").Str("room", string(room)).Int("links", len(links)).Msg("left room")
}

// Wait blocks until in-flight negotiations have finished.
func (m *Manager) Wait() {
	m.tasks.Wait()
}

// Close leaves the room and refuses further work.
func (m *Manager) Close() {
	m.Leave()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.tasks.Wait()
}

// Connection returns the live connection to remote.
func (m *Manager) Connection(remote domain.MemberID) (PeerConnection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[remote]
	if !ok {
		return nil, false
	}
	return l.pc, true
}
