package rtc

import (
	"context"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/mesh"
)

func WebRTCConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

// Factory builds peer connections that share one pion API and one set of
// local tracks.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	media  *LocalMedia
}

func NewFactory(stunServers []string, media *LocalMedia) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	s := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		config: WebRTCConfig(stunServers),
		media:  media,
	}, nil
}

func (f *Factory) NewConnection(remote domain.MemberID, screen bool, h mesh.LinkHandlers) (mesh.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, remote: remote, media: f.media}
	if err := c.attach(screen); err != nil {
		_ = pc.Close()
		return nil, err
	}
	c.start(h)
	return c, nil
}

// WebRTCConnection is the pion peer connection to one remote member.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.MemberID
	media  *LocalMedia
	video  *webrtc.RTPSender
	cancel context.CancelFunc

	mu    sync.Mutex
	sinks []*sink
}

func (c *WebRTCConnection) attach(screen bool) error {
	audio, err := c.pc.AddTrack(c.media.Audio)
	if err != nil {
		return err
	}
	video, err := c.pc.AddTrack(c.media.Video(screen))
	if err != nil {
		return err
	}
	c.video = video
	go drainRTCP(audio)
	go drainRTCP(video)
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) start(h mesh.LinkHandlers) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if h.OnStateChange != nil {
			h.OnStateChange(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && h.OnICECandidate != nil {
			h.OnICECandidate(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger := log.With().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Logger()
		logger.Info().Msg("OnTrack received")

		s := newSink(track)
		c.mu.Lock()
		c.sinks = append(c.sinks, s)
		c.mu.Unlock()

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			if err := requestKeyframe(c.pc, track); err != nil {
				logger.Debug().Err(err).Msg("keyframe request failed")
			}
		}
		if h.OnTrack != nil {
			h.OnTrack(track.Kind())
		}
		go s.loop(ctx, &logger)
	})
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *WebRTCConnection) ReplaceVideo(screen bool) error {
	return c.video.ReplaceTrack(c.media.Video(screen))
}

// Stats reports the remote tracks received so far.
func (c *WebRTCConnection) Stats() []TrackStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrackStats, 0, len(c.sinks))
	for _, s := range c.sinks {
		out = append(out, s.stats())
	}
	return out
}

func (c *WebRTCConnection) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	}
	return err
}
