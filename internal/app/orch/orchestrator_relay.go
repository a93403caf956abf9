package orch

import (
	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) RelayOffer(from domain.MemberID, m protocol.Offer) {
	to := m.To
	m.To, m.From = "", from
	o.relay(from, to, m)
}

func (o *Orchestrator) RelayAnswer(from domain.MemberID, m protocol.Answer) {
	to := m.To
	m.To, m.From = "", from
	o.relay(from, to, m)
}

func (o *Orchestrator) RelayCandidate(from domain.MemberID, m protocol.ICECandidate) {
	to := m.To
	m.To, m.From = "", from
	o.relay(from, to, m)
}

// relay delivers m to a connected recipient; anything else is dropped silently.
func (o *Orchestrator) relay(from, to domain.MemberID, m protocol.Message) {
	if to == "" || to == from {
		return
	}
	conn, ok := o.Registry.Conn(to)
	if !ok {
		log.Debug().Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Str("type", string(m.Kind())).Msg("relay target gone")
		return
	}
	if err := conn.TrySend(m); err != nil {
		room, _ := o.Registry.RoomOf(to)
		if o.Policy != nil && o.Policy.OnBackPressure(room, to) == app.KickMember {
			o.Kick(to)
		}
	}
}

// BroadcastChat stamps the message and fans it out to the sender's room.
func (o *Orchestrator) BroadcastChat(from domain.MemberID, m protocol.ChatMessage) error {
	roomID, ok := o.Registry.RoomOf(from)
	if !ok {
		return domain.ErrNotInRoom
	}
	if m.RoomID != "" && domain.RoomID(m.RoomID) != roomID {
		return domain.ErrNotMember
	}
	text, err := domain.NormalizeChat(m.Text)
	if err != nil {
		return err
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.ErrNotInRoom
	}

	res, err := room.Chat(protocol.ChatMessage{
		ID:         o.NewID(),
		SenderID:   from,
		SenderName: domain.SenderName(from, m.SenderName),
		Text:       text,
		Timestamp:  o.Now().UTC(),
	})
	if err != nil {
		return err
	}
	o.applyPolicy(roomID, res)
	return nil
}
