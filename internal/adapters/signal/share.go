package signal

import (
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleShareStarted(id domain.MemberID, m protocol.ScreenShareStarted) {
	if err := ctl.Orch.StartShare(id, m.RoomID); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(id)).Msg("share start ignored")
	}
}

func (ctl *SignalWSController) handleShareStopped(id domain.MemberID) {
	if !ctl.Orch.StopShare(id) {
		log.Debug().Str("module", "signal").Str("sid", string(id)).Msg("share stop ignored")
	}
}
