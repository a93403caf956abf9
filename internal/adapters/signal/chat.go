package signal

import (
	"errors"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleChat(id domain.MemberID, conn *WsSignalConn, m protocol.ChatMessage) {
	err := ctl.Orch.BroadcastChat(id, m)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotInRoom), errors.Is(err, domain.ErrNotMember):
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(id)).Msg("chat ignored")
	default:
		ctl.sendError(conn, errorMessage(err, m.RoomID))
	}
}
