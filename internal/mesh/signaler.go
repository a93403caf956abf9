package mesh

import "github.com/dkeye/meshcall/internal/protocol"

//go:generate mockgen -source=signaler.go -destination=mocks/mock_signaler.go -package=mocks

// Signaler delivers envelopes to the relay.
type Signaler interface {
	Send(protocol.Message) error
}
