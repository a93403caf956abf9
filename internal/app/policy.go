package app

import "github.com/dkeye/meshcall/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, member domain.MemberID) BackpressureAction
}

// SimplePolicy kicks slow members: a client that cannot keep up with
// signaling would miss negotiation envelopes anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.MemberID) BackpressureAction {
	return KickMember
}
