package signal

import (
	"context"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case msg, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			data, err := c.codec.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("type", string(msg.Kind())).Msg("writePump marshal")
				continue
			}
			frameType := websocket.TextMessage
			if c.codec.Binary() {
				frameType = websocket.BinaryMessage
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump owns the member's lifetime: when it returns the member is
// disconnected from its room and forgotten.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.MemberID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(id)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
			ctl.handleSignal(id, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(id domain.MemberID, c *WsSignalConn, data []byte) {
	msg, err := c.codec.Unmarshal(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(id)).Msg("bad message")
		ctl.sendError(c, "Invalid message")
		return
	}

	switch m := msg.(type) {
	case protocol.CreateRoom:
		ctl.handleCreate(id, c, m)
	case protocol.JoinRoom:
		ctl.handleJoin(id, c, m)
	case protocol.LeaveRoom:
		ctl.handleLeave(id, m)
	case protocol.Offer:
		ctl.Orch.RelayOffer(id, m)
	case protocol.Answer:
		ctl.Orch.RelayAnswer(id, m)
	case protocol.ICECandidate:
		ctl.Orch.RelayCandidate(id, m)
	case protocol.ChatMessage:
		ctl.handleChat(id, c, m)
	case protocol.ScreenShareStarted:
		ctl.handleShareStarted(id, m)
	case protocol.ScreenShareStopped:
		ctl.handleShareStopped(id)
	case protocol.Ping:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(id)).Str("type", string(msg.Kind())).Msg("unexpected signal from client")
	}
}

func (ctl *SignalWSController) send(c *WsSignalConn, m protocol.Message) {
	if err := c.TrySend(m); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(m.Kind())).Msg("send failed")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, message string) {
	ctl.send(c, protocol.Error{Message: message})
}
