package rtc

import (
	"context"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// TrackStats counts what a remote track delivered.
type TrackStats struct {
	Kind    string
	Packets uint64
	Bytes   uint64
	Lost    uint64
}

// sink drains one remote track. Media is not rendered; the packets are
// counted so the call can be observed from the terminal.
type sink struct {
	src *webrtc.TrackRemote

	packets atomic.Uint64
	bytes   atomic.Uint64
	lost    atomic.Uint64

	started bool
	lastSeq uint16
}

func newSink(src *webrtc.TrackRemote) *sink {
	return &sink{src: src}
}

// loop reads RTP packets from the source track until ctx ends or the track
// is closed.
func (s *sink) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("sink ctx done")
			return
		default:
		}
		pkt, _, err := s.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("sink read RTP stopped")
			return
		}
		s.account(pkt)
	}
}

func (s *sink) account(pkt *rtp.Packet) {
	s.packets.Add(1)
	s.bytes.Add(uint64(len(pkt.Payload)))
	if s.started {
		s.lost.Add(uint64(seqGap(s.lastSeq, pkt.SequenceNumber)))
	}
	s.started = true
	s.lastSeq = pkt.SequenceNumber
}

func (s *sink) stats() TrackStats {
	return TrackStats{
		Kind:    s.src.Kind().String(),
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
		Lost:    s.lost.Load(),
	}
}

// seqGap is the number of packets missing between last and cur. Reordered
// or duplicate packets count as no loss.
func seqGap(last, cur uint16) uint16 {
	d := cur - last
	if d == 0 || d >= 0x8000 {
		return 0
	}
	return d - 1
}

// requestKeyframe asks the sender of a video track for a full frame.
func requestKeyframe(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) error {
	return pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
}
