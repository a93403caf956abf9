package rtc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meshcall/internal/mesh"
)

func TestLoggerFactoryScopes(t *testing.T) {
	var buf bytes.Buffer
	f := &LoggerFactory{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	l := f.NewLogger("ice")
	l.Warnf("candidate %d dropped", 3)
	l.Debug("hidden below trace")

	out := buf.String()
	assert.Contains(t, out, `"scope":"ice"`)
	assert.Contains(t, out, `"module":"pion"`)
	assert.Contains(t, out, "candidate 3 dropped")
	assert.NotContains(t, out, "hidden below trace")
}

func TestLocalMediaTracks(t *testing.T) {
	m, err := NewLocalMedia("stream")
	require.NoError(t, err)

	assert.Equal(t, webrtc.RTPCodecTypeAudio, m.Audio.Kind())
	assert.Equal(t, "camera", m.Video(false).ID())
	assert.Equal(t, "screen", m.Video(true).ID())
	assert.Equal(t, "stream", m.Screen.StreamID())
}

func TestMutedAudioDropsPackets(t *testing.T) {
	m, err := NewLocalMedia("stream")
	require.NoError(t, err)

	m.SetMuted(true)
	assert.Equal(t, TrackStateMuted, m.AudioState())
	assert.NoError(t, m.WriteAudio(&rtp.Packet{Header: rtp.Header{Version: 2}}))

	m.SetMuted(false)
	assert.Equal(t, TrackStateOk, m.AudioState())
}

func TestPumpSilenceStops(t *testing.T) {
	m, err := NewLocalMedia("stream")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.PumpSilence(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}

func TestSeqGap(t *testing.T) {
	cases := map[string]struct {
		last, cur uint16
		want      uint16
	}{
		"in order":  {last: 10, cur: 11, want: 0},
		"two lost":  {last: 10, cur: 13, want: 2},
		"wrap":      {last: 65535, cur: 1, want: 1},
		"reordered": {last: 10, cur: 9, want: 0},
		"duplicate": {last: 10, cur: 10, want: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, seqGap(tc.last, tc.cur))
		})
	}
}

func TestOfferAnswerBetweenConnections(t *testing.T) {
	media, err := NewLocalMedia("stream")
	require.NoError(t, err)
	f, err := NewFactory(nil, media)
	require.NoError(t, err)

	a, err := f.NewConnection("B", false, mesh.LinkHandlers{})
	require.NoError(t, err)
	defer a.Close()
	b, err := f.NewConnection("A", true, mesh.LinkHandlers{})
	require.NoError(t, err)
	defer b.Close()

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, a.SignalingState())

	require.NoError(t, b.SetRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, a.SetRemoteDescription(answer))

	assert.Equal(t, webrtc.SignalingStateStable, a.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, b.SignalingState())

	require.NoError(t, a.ReplaceVideo(true))
	require.NoError(t, b.ReplaceVideo(false))
	assert.Empty(t, a.(*WebRTCConnection).Stats())
}

func TestWebRTCConfig(t *testing.T) {
	assert.Empty(t, WebRTCConfig(nil).ICEServers)
	cfg := WebRTCConfig([]string{"stun:stun.l.google.com:19302"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}
