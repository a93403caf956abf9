package signal

import (
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleCreate(id domain.MemberID, conn *WsSignalConn, m protocol.CreateRoom) {
	log.Info().Str("module", "signal").Str("sid", string(id)).Str("room", m.RoomID).Msg("create")
	if err := ctl.Orch.CreateRoom(id, m.RoomID, m.Fingerprint); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(id)).Str("room", m.RoomID).Msg("create rejected")
		ctl.sendError(conn, errorMessage(err, m.RoomID))
	}
}

func (ctl *SignalWSController) handleJoin(id domain.MemberID, conn *WsSignalConn, m protocol.JoinRoom) {
	log.Info().Str("module", "signal").Str("sid", string(id)).Str("room", m.RoomID).Msg("join")
	if err := ctl.Orch.JoinRoom(id, m.RoomID, m.Fingerprint); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(id)).Str("room", m.RoomID).Msg("join rejected")
		ctl.sendError(conn, errorMessage(err, m.RoomID))
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(id domain.MemberID, m protocol.LeaveRoom) {
	log.Info().Str("module", "signal").Str("sid", string(id)).Str("room", m.RoomID).Msg("leave")
	ctl.Orch.Leave(id)
}
