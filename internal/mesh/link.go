package mesh

import (
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
)

// link is the state kept for one remote member. A link is never reused for
// a different connection: teardown removes it and a later negotiation
// creates a new one with a higher generation.
type link struct {
	remote domain.MemberID
	gen    uint64
	pc     PeerConnection

	// negMu serializes negotiation steps and candidate application.
	negMu sync.Mutex

	// Guarded by Manager.mu.
	state     State
	remoteSet bool
	timer     *time.Timer
	timerSeq  uint64
}

// stopTimerLocked cancels a pending grace timer. Bumping the sequence makes
// a callback that already fired a no-op.
func (l *link) stopTimerLocked() {
	l.timerSeq++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
