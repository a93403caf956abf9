package mesh

import (
	"errors"
	"fmt"

	"github.com/dkeye/meshcall/internal/domain"
)

var (
	ErrNotInRoom = errors.New("not in a room")
	ErrClosed    = errors.New("mesh manager closed")
)

// NegotiationError records which step failed for which remote member.
type NegotiationError struct {
	Op     string
	Remote domain.MemberID
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s with %s: %v", e.Op, e.Remote, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func newError(op string, remote domain.MemberID, err error) *NegotiationError {
	return &NegotiationError{Op: op, Remote: remote, Err: err}
}
