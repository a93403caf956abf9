package orch

import (
	"time"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties the registry of connected members to room state. It is
// the only place that moves members between rooms.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
	Limiter  *app.RoomRateLimiter

	Now   func() time.Time
	NewID func() string
}

func New(reg *app.Registry, rooms *app.RoomManager, policy app.Policy, limiter *app.RoomRateLimiter) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Limiter:  limiter,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// Connect registers a fresh signaling connection. The session cookie token
// becomes the fallback fingerprint used when create/join requests do not
// carry one.
func (o *Orchestrator) Connect(id domain.MemberID, conn core.SignalConnection, token string, cancel func()) {
	o.Registry.Bind(id, conn, domain.TokenFingerprint(token), cancel)
}

// Disconnect is Leave triggered by transport loss, plus forgetting the
// member's fingerprint mapping. Safe to call more than once.
func (o *Orchestrator) Disconnect(id domain.MemberID) {
	o.Leave(id)
	o.Registry.Unbind(id)
	if o.Limiter != nil {
		o.Limiter.Forget(string(id))
	}
}

// Kick disconnects a member and closes its transport.
func (o *Orchestrator) Kick(id domain.MemberID) {
	conn, ok := o.Registry.Conn(id)
	o.Registry.Cancel(id)
	o.Disconnect(id)
	if ok {
		conn.Close()
	}
	log.Warn().Str("module", "orch").Str("sid", string(id)).Msg("member kicked")
}

func (o *Orchestrator) applyPolicy(room domain.RoomID, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.Kick(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
			log.Debug().Str("module", "orch").Str("room", string(room)).Str("sid", string(slow)).Msg("frame dropped")
		}
	}
}
