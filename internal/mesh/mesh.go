// Package mesh keeps one peer connection per remote room member and drives
// their negotiation over the signaling relay.
//
// Members already in the room offer to a newcomer; the newcomer only answers.
// ICE candidates that arrive before a link has its remote description are
// queued per remote member and applied in arrival order afterwards. A link
// that reports disconnected gets a grace period to recover before it is torn
// down; a failed link is torn down at once.
package mesh

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
)

// DefaultGracePeriod is how long a disconnected link may take to recover.
const DefaultGracePeriod = 5 * time.Second

// PeerConnection is the transport to a single remote member.
// CreateOffer and CreateAnswer also apply the result as local description.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	// ReplaceVideo swaps the outgoing video between camera and screen.
	ReplaceVideo(screen bool) error
	Close() error
}

// LinkHandlers are installed on every connection the factory creates.
type LinkHandlers struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnTrack        func(kind webrtc.RTPCodecType)
	OnStateChange  func(webrtc.PeerConnectionState)
}

// ConnectionFactory creates a connection to remote with local media attached.
// When screen is true the screen track is sent instead of the camera.
type ConnectionFactory interface {
	NewConnection(remote domain.MemberID, screen bool, h LinkHandlers) (PeerConnection, error)
}

// Events reports what happens in the room. Nil callbacks are skipped.
// Callbacks may run on internal goroutines and must not block.
type Events struct {
	OnRoomJoined    func(room domain.RoomID, self domain.MemberID, creator bool)
	OnPeerConnected func(remote domain.MemberID)
	OnPeerRemoved   func(remote domain.MemberID)
	OnTrack         func(remote domain.MemberID, kind webrtc.RTPCodecType)
	OnChat          func(protocol.ChatMessage)
	OnShareChanged  func(member domain.MemberID, sharing bool)
	OnForceStop     func(reason string)
	OnError         func(message string)
}

type State int

const (
	StateNegotiating State = iota
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PeerInfo is a snapshot of one link.
type PeerInfo struct {
	Remote  domain.MemberID
	State   State
	Pending int
}
