package rtc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	opusFrame      = 20 * time.Millisecond
	opusFrameTicks = 960
)

// opusSilence is a single 20ms opus frame carrying silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
)

// LocalMedia holds the outgoing tracks shared by every link. Audio and one of
// camera or screen are attached to each connection.
type LocalMedia struct {
	Audio  *webrtc.TrackLocalStaticRTP
	Camera *webrtc.TrackLocalStaticRTP
	Screen *webrtc.TrackLocalStaticRTP

	audioState atomic.Int32
}

func NewLocalMedia(streamID string) (*LocalMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	camera, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"camera", streamID,
	)
	if err != nil {
		return nil, err
	}
	screen, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"screen", streamID,
	)
	if err != nil {
		return nil, err
	}
	return &LocalMedia{Audio: audio, Camera: camera, Screen: screen}, nil
}

// Video returns the track sent as video.
func (m *LocalMedia) Video(screen bool) *webrtc.TrackLocalStaticRTP {
	if screen {
		return m.Screen
	}
	return m.Camera
}

func (m *LocalMedia) AudioState() TrackState {
	return TrackState(m.audioState.Load())
}

func (m *LocalMedia) SetMuted(muted bool) {
	if muted {
		m.audioState.Store(int32(TrackStateMuted))
		return
	}
	m.audioState.Store(int32(TrackStateOk))
}

// WriteAudio forwards pkt unless audio is muted.
func (m *LocalMedia) WriteAudio(pkt *rtp.Packet) error {
	if m.AudioState() == TrackStateMuted {
		return nil
	}
	return m.Audio.WriteRTP(pkt)
}

// PumpSilence keeps the audio track alive with silent opus frames until ctx
// is cancelled, so remote sides see a track without a capture device.
func (m *LocalMedia) PumpSilence(ctx context.Context) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, Marker: true},
		Payload: opusSilence,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := m.WriteAudio(pkt); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Msg("silence write failed")
		}
		pkt.SequenceNumber++
		pkt.Timestamp += opusFrameTicks
		pkt.Marker = false
	}
}
