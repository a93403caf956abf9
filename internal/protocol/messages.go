package protocol

import (
	"fmt"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
)

// Client requests.

type CreateRoom struct {
	RoomID      string
	Fingerprint domain.Fingerprint
}

type JoinRoom struct {
	RoomID      string
	Fingerprint domain.Fingerprint
}

type LeaveRoom struct {
	RoomID string
}

// Room membership events.

type RoomCreated struct {
	RoomID   domain.RoomID
	MemberID domain.MemberID
}

type RoomRejoined struct {
	RoomID        domain.RoomID
	MemberID      domain.MemberID
	ExistingUsers []domain.MemberID
	Stats         domain.RoomStats
}

type RoomJoined struct {
	RoomID        domain.RoomID
	MemberID      domain.MemberID
	ExistingUsers []domain.MemberID
	Stats         domain.RoomStats
	IsCreator     bool
}

type UserJoined struct {
	MemberID domain.MemberID
	Stats    domain.RoomStats
}

type UserRejoined struct {
	MemberID  domain.MemberID
	IsCreator bool
}

type UserLeft struct {
	MemberID domain.MemberID
}

// Negotiation envelopes. To is set on the way in, From on the way out.

type Offer struct {
	To   domain.MemberID
	From domain.MemberID
	SDP  SessionDescription
}

type Answer struct {
	To   domain.MemberID
	From domain.MemberID
	SDP  SessionDescription
}

type ICECandidate struct {
	To        domain.MemberID
	From      domain.MemberID
	Candidate Candidate
}

// ChatMessage travels client to server with RoomID, Text and an optional
// SenderName; the relay stamps ID, SenderID and Timestamp before fan out.
type ChatMessage struct {
	ID         string
	RoomID     string
	SenderID   domain.MemberID
	SenderName string
	Text       string
	Timestamp  time.Time
}

type ScreenShareStarted struct {
	RoomID   string
	MemberID domain.MemberID
}

type ScreenShareStopped struct {
	RoomID   string
	MemberID domain.MemberID
}

type ForceStopScreenShare struct {
	Reason string
}

type Error struct {
	Message string
}

type Ping struct{}

type Pong struct{}

func (CreateRoom) Kind() Type           { return TypeCreateRoom }
func (JoinRoom) Kind() Type             { return TypeJoinRoom }
func (LeaveRoom) Kind() Type            { return TypeLeaveRoom }
func (RoomCreated) Kind() Type          { return TypeRoomCreated }
func (RoomRejoined) Kind() Type         { return TypeRoomRejoined }
func (RoomJoined) Kind() Type           { return TypeRoomJoined }
func (UserJoined) Kind() Type           { return TypeUserJoined }
func (UserRejoined) Kind() Type         { return TypeUserRejoined }
func (UserLeft) Kind() Type             { return TypeUserLeft }
func (Offer) Kind() Type                { return TypeOffer }
func (Answer) Kind() Type               { return TypeAnswer }
func (ICECandidate) Kind() Type         { return TypeICECandidate }
func (ChatMessage) Kind() Type          { return TypeChatMessage }
func (ScreenShareStarted) Kind() Type   { return TypeScreenShareStarted }
func (ScreenShareStopped) Kind() Type   { return TypeScreenShareStopped }
func (ForceStopScreenShare) Kind() Type { return TypeForceStopScreenShare }
func (Error) Kind() Type                { return TypeError }
func (Ping) Kind() Type                 { return TypePing }
func (Pong) Kind() Type                 { return TypePong }

func (m CreateRoom) envelope() Envelope {
	return Envelope{Type: TypeCreateRoom, RoomID: m.RoomID, Fingerprint: m.Fingerprint}
}

func (m JoinRoom) envelope() Envelope {
	return Envelope{Type: TypeJoinRoom, RoomID: m.RoomID, Fingerprint: m.Fingerprint}
}

func (m LeaveRoom) envelope() Envelope {
	return Envelope{Type: TypeLeaveRoom, RoomID: m.RoomID}
}

func (m RoomCreated) envelope() Envelope {
	return Envelope{
		Type:      TypeRoomCreated,
		RoomID:    string(m.RoomID),
		MemberID:  m.MemberID,
		IsCreator: boolPtr(true),
	}
}

func (m RoomRejoined) envelope() Envelope {
	stats := m.Stats
	return Envelope{
		Type:          TypeRoomRejoined,
		RoomID:        string(m.RoomID),
		MemberID:      m.MemberID,
		ExistingUsers: m.ExistingUsers,
		RoomStats:     &stats,
		IsCreator:     boolPtr(true),
	}
}

func (m RoomJoined) envelope() Envelope {
	stats := m.Stats
	return Envelope{
		Type:          TypeRoomJoined,
		RoomID:        string(m.RoomID),
		MemberID:      m.MemberID,
		ExistingUsers: m.ExistingUsers,
		RoomStats:     &stats,
		IsCreator:     boolPtr(m.IsCreator),
	}
}

func (m UserJoined) envelope() Envelope {
	stats := m.Stats
	return Envelope{Type: TypeUserJoined, MemberID: m.MemberID, RoomStats: &stats}
}

func (m UserRejoined) envelope() Envelope {
	return Envelope{Type: TypeUserRejoined, MemberID: m.MemberID, IsCreator: boolPtr(m.IsCreator)}
}

func (m UserLeft) envelope() Envelope {
	return Envelope{Type: TypeUserLeft, MemberID: m.MemberID}
}

func (m Offer) envelope() Envelope {
	sdp := m.SDP
	return Envelope{Type: TypeOffer, To: m.To, From: m.From, SDP: &sdp}
}

func (m Answer) envelope() Envelope {
	sdp := m.SDP
	return Envelope{Type: TypeAnswer, To: m.To, From: m.From, SDP: &sdp}
}

func (m ICECandidate) envelope() Envelope {
	c := m.Candidate
	return Envelope{Type: TypeICECandidate, To: m.To, From: m.From, Candidate: &c}
}

func (m ChatMessage) envelope() Envelope {
	e := Envelope{
		Type:       TypeChatMessage,
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
	}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp
		e.Timestamp = &ts
	}
	return e
}

func (m ScreenShareStarted) envelope() Envelope {
	return Envelope{Type: TypeScreenShareStarted, RoomID: m.RoomID, MemberID: m.MemberID}
}

func (m ScreenShareStopped) envelope() Envelope {
	return Envelope{Type: TypeScreenShareStopped, RoomID: m.RoomID, MemberID: m.MemberID}
}

func (m ForceStopScreenShare) envelope() Envelope {
	return Envelope{Type: TypeForceStopScreenShare, Reason: m.Reason}
}

func (m Error) envelope() Envelope { return Envelope{Type: TypeError, Message: m.Message} }
func (Ping) envelope() Envelope    { return Envelope{Type: TypePing} }
func (Pong) envelope() Envelope    { return Envelope{Type: TypePong} }

// Decode converts a decoded envelope into its typed variant, rejecting
// envelopes that lack the fields their kind requires.
func (e Envelope) Decode() (Message, error) {
	switch e.Type {
	case TypeCreateRoom:
		return CreateRoom{RoomID: e.RoomID, Fingerprint: e.Fingerprint}, nil
	case TypeJoinRoom:
		return JoinRoom{RoomID: e.RoomID, Fingerprint: e.Fingerprint}, nil
	case TypeLeaveRoom:
		return LeaveRoom{RoomID: e.RoomID}, nil
	case TypeRoomCreated:
		if e.MemberID == "" || e.RoomID == "" {
			return nil, malformed(e.Type, "missing roomId/memberId")
		}
		return RoomCreated{RoomID: domain.RoomID(e.RoomID), MemberID: e.MemberID}, nil
	case TypeRoomRejoined:
		if e.MemberID == "" || e.RoomID == "" {
			return nil, malformed(e.Type, "missing roomId/memberId")
		}
		return RoomRejoined{
			RoomID:        domain.RoomID(e.RoomID),
			MemberID:      e.MemberID,
			ExistingUsers: e.ExistingUsers,
			Stats:         derefStats(e.RoomStats),
		}, nil
	case TypeRoomJoined:
		if e.MemberID == "" || e.RoomID == "" {
			return nil, malformed(e.Type, "missing roomId/memberId")
		}
		return RoomJoined{
			RoomID:        domain.RoomID(e.RoomID),
			MemberID:      e.MemberID,
			ExistingUsers: e.ExistingUsers,
			Stats:         derefStats(e.RoomStats),
			IsCreator:     e.IsCreator != nil && *e.IsCreator,
		}, nil
	case TypeUserJoined:
		if e.MemberID == "" {
			return nil, malformed(e.Type, "missing memberId")
		}
		return UserJoined{MemberID: e.MemberID, Stats: derefStats(e.RoomStats)}, nil
	case TypeUserRejoined:
		if e.MemberID == "" {
			return nil, malformed(e.Type, "missing memberId")
		}
		return UserRejoined{MemberID: e.MemberID, IsCreator: e.IsCreator != nil && *e.IsCreator}, nil
	case TypeUserLeft:
		if e.MemberID == "" {
			return nil, malformed(e.Type, "missing memberId")
		}
		return UserLeft{MemberID: e.MemberID}, nil
	case TypeOffer, TypeAnswer:
		if e.SDP == nil {
			return nil, malformed(e.Type, "missing sdp")
		}
		if e.SDP.Type != string(e.Type) {
			return nil, malformed(e.Type, fmt.Sprintf("sdp.type=%q", e.SDP.Type))
		}
		if e.To == "" && e.From == "" {
			return nil, malformed(e.Type, "missing to/from")
		}
		if e.Type == TypeOffer {
			return Offer{To: e.To, From: e.From, SDP: *e.SDP}, nil
		}
		return Answer{To: e.To, From: e.From, SDP: *e.SDP}, nil
	case TypeICECandidate:
		if e.Candidate == nil {
			return nil, malformed(e.Type, "missing candidate")
		}
		if e.To == "" && e.From == "" {
			return nil, malformed(e.Type, "missing to/from")
		}
		return ICECandidate{To: e.To, From: e.From, Candidate: *e.Candidate}, nil
	case TypeChatMessage:
		m := ChatMessage{
			ID:         e.ID,
			RoomID:     e.RoomID,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Text:       e.Text,
		}
		if e.Timestamp != nil {
			m.Timestamp = *e.Timestamp
		}
		return m, nil
	case TypeScreenShareStarted:
		return ScreenShareStarted{RoomID: e.RoomID, MemberID: e.MemberID}, nil
	case TypeScreenShareStopped:
		return ScreenShareStopped{RoomID: e.RoomID, MemberID: e.MemberID}, nil
	case TypeForceStopScreenShare:
		return ForceStopScreenShare{Reason: e.Reason}, nil
	case TypeError:
		if e.Message == "" {
			return nil, malformed(e.Type, "missing message")
		}
		return Error{Message: e.Message}, nil
	case TypePing:
		return Ping{}, nil
	case TypePong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, e.Type)
	}
}

func malformed(t Type, detail string) error {
	return fmt.Errorf("%w: %s %s", ErrMalformed, t, detail)
}

func derefStats(s *domain.RoomStats) domain.RoomStats {
	if s == nil {
		return domain.RoomStats{}
	}
	return *s
}
