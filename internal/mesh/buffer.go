package mesh

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meshcall/internal/domain"
)

// CandidateBuffer holds remote ICE candidates per member until the link to
// that member has its remote description. It is not safe for concurrent use;
// the Manager guards it with its own mutex.
type CandidateBuffer struct {
	queues map[domain.MemberID][]webrtc.ICECandidateInit
}

func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{queues: make(map[domain.MemberID][]webrtc.ICECandidateInit)}
}

func (b *CandidateBuffer) Push(remote domain.MemberID, c webrtc.ICECandidateInit) {
	b.queues[remote] = append(b.queues[remote], c)
}

// Take removes and returns the queue for remote in arrival order.
func (b *CandidateBuffer) Take(remote domain.MemberID) []webrtc.ICECandidateInit {
	q := b.queues[remote]
	delete(b.queues, remote)
	return q
}

func (b *CandidateBuffer) Drop(remote domain.MemberID) {
	delete(b.queues, remote)
}

func (b *CandidateBuffer) Len(remote domain.MemberID) int {
	return len(b.queues[remote])
}

func (b *CandidateBuffer) Reset() {
	clear(b.queues)
}
