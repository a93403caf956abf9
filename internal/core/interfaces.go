package core

import (
	"errors"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
)

// ErrRoomClosed is returned by room operations that lost the race against the
// room's destruction. Callers treat the room as absent.
var ErrRoomClosed = errors.New("room closed")

// ReasonPreempted is sent to a sharer whose slot was taken by another member.
const ReasonPreempted = "Another user started sharing"

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(protocol.Message) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []domain.MemberID
}

func (p *PublishResult) deliver(id domain.MemberID, conn SignalConnection, m protocol.Message) {
	if err := conn.TrySend(m); err != nil {
		p.Dropped = append(p.Dropped, id)
		return
	}
	p.SendTo++
}
