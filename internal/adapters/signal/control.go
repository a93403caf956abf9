package signal

import "github.com/dkeye/meshcall/internal/protocol"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.send(conn, protocol.Pong{})
}
