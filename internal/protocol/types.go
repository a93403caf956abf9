// Package protocol defines the signaling envelopes exchanged between peers and
// the relay. Every event is one variant of the closed Message union and is
// decoded and validated once, at the transport boundary.
package protocol

import (
	"errors"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
)

type Type string

const (
	TypeCreateRoom           Type = "create-room"
	TypeJoinRoom             Type = "join-room"
	TypeRoomCreated          Type = "room-created"
	TypeRoomRejoined         Type = "room-rejoined"
	TypeRoomJoined           Type = "room-joined"
	TypeUserJoined           Type = "user-joined"
	TypeUserRejoined         Type = "user-rejoined"
	TypeUserLeft             Type = "user-left"
	TypeOffer                Type = "offer"
	TypeAnswer               Type = "answer"
	TypeICECandidate         Type = "ice-candidate"
	TypeChatMessage          Type = "chat-message"
	TypeScreenShareStarted   Type = "screen-share-started"
	TypeScreenShareStopped   Type = "screen-share-stopped"
	TypeForceStopScreenShare Type = "force-stop-screen-share"
	TypeLeaveRoom            Type = "leave-room"
	TypeError                Type = "error"
	TypePing                 Type = "ping"
	TypePong                 Type = "pong"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Envelope is the flat wire shape shared by every message kind. Only the
// fields relevant to Type are set; the rest stay empty and are omitted.
type Envelope struct {
	Type Type `json:"type"`

	RoomID      string             `json:"roomId,omitempty"`
	Fingerprint domain.Fingerprint `json:"fingerprint,omitempty"`
	MemberID    domain.MemberID    `json:"memberId,omitempty"`
	IsCreator   *bool              `json:"isCreator,omitempty"`

	ExistingUsers []domain.MemberID `json:"existingUsers,omitempty"`
	RoomStats     *domain.RoomStats `json:"roomStats,omitempty"`

	To        domain.MemberID     `json:"to,omitempty"`
	From      domain.MemberID     `json:"from,omitempty"`
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty"`

	ID         string          `json:"id,omitempty"`
	SenderID   domain.MemberID `json:"senderId,omitempty"`
	SenderName string          `json:"senderName,omitempty"`
	Text       string          `json:"text,omitempty"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`

	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Message is implemented only by the message kinds of this package.
type Message interface {
	Kind() Type
	envelope() Envelope
}

func boolPtr(b bool) *bool { return &b }
