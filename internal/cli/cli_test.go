package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/dkeye/meshcall/internal/adapters/http"
	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/mesh"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type nopPC struct{ state webrtc.SignalingState }

func (p *nopPC) CreateOffer() (webrtc.SessionDescription, error) {
	p.state = webrtc.SignalingStateHaveLocalOffer
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}

func (p *nopPC) CreateAnswer() (webrtc.SessionDescription, error) {
	p.state = webrtc.SignalingStateStable
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}

func (p *nopPC) SetRemoteDescription(d webrtc.SessionDescription) error {
	if d.Type == webrtc.SDPTypeOffer {
		p.state = webrtc.SignalingStateHaveRemoteOffer
	} else {
		p.state = webrtc.SignalingStateStable
	}
	return nil
}

func (p *nopPC) AddICECandidate(webrtc.ICECandidateInit) error { return nil }
func (p *nopPC) SignalingState() webrtc.SignalingState        { return p.state }
func (p *nopPC) ReplaceVideo(bool) error                      { return nil }
func (p *nopPC) Close() error                                 { return nil }

type nopFactory struct{}

func (nopFactory) NewConnection(domain.MemberID, bool, mesh.LinkHandlers) (mesh.PeerConnection, error) {
	return &nopPC{state: webrtc.SignalingStateStable}, nil
}

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Mode:           "release",
		StaticPath:     t.TempDir(),
		ReadLimit:      65536,
		PingPeriod:     5 * time.Second,
		PongWait:       10 * time.Second,
		WriteWait:      2 * time.Second,
		SendBuffer:     16,
		Secret:         "test-secret",
		AllowedOrigins: []string{"*"},
	}
	o := orch.New(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(httpadapter.SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

type runningSession struct {
	out   *syncBuffer
	stdin *io.PipeWriter
	done  chan error
}

func startSession(t *testing.T, srv *httptest.Server, name, room string, create bool) *runningSession {
	t.Helper()
	cfg := &config.PeerConfig{
		ServerURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal",
		Codec:       "json",
		GracePeriod: time.Second,
		Name:        name,
	}
	out := &syncBuffer{}
	s, err := newSession(cfg, out, nopFactory{})
	require.NoError(t, err)

	r, w := io.Pipe()
	rs := &runningSession{out: out, stdin: w, done: make(chan error, 1)}
	go func() {
		rs.done <- s.Run(context.Background(), room, domain.Fingerprint("fp_"+name), create, r)
	}()
	t.Cleanup(func() { _ = w.Close() })
	return rs
}

func (rs *runningSession) waitFor(t *testing.T, text string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(rs.out.String(), text)
	}, 3*time.Second, 10*time.Millisecond, "output so far: %s", rs.out.String())
}

func (rs *runningSession) say(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(rs.stdin, line+"\n")
	require.NoError(t, err)
}

func (rs *runningSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func TestSessionChatAndLeave(t *testing.T) {
	srv := newRelay(t)

	alice := startSession(t, srv, "Alice", "room1", true)
	alice.waitFor(t, "joined room room1")
	assert.Contains(t, alice.out.String(), "(creator)")

	bob := startSession(t, srv, "Bob", "room1", false)
	bob.waitFor(t, "joined room room1")

	bob.say(t, "hello there")
	alice.waitFor(t, "Bob: hello there")
	bob.waitFor(t, "Bob: hello there")

	bob.say(t, "/share")
	alice.waitFor(t, "started screen share")

	bob.say(t, "/leave")
	require.NoError(t, bob.wait(t))
	alice.waitFor(t, " left")

	require.NoError(t, alice.stdin.Close())
	require.NoError(t, alice.wait(t))
}

func TestSessionJoinMissingRoom(t *testing.T) {
	srv := newRelay(t)

	s := startSession(t, srv, "Carol", "nowhere", false)
	err := s.wait(t)
	require.Error(t, err)
	assert.Equal(t, `Room "nowhere" not found.`, err.Error())
}

func TestSessionUnknownCommand(t *testing.T) {
	srv := newRelay(t)

	s := startSession(t, srv, "Dave", "room2", true)
	s.waitFor(t, "joined room room2")
	s.say(t, "/dance")
	s.waitFor(t, "unknown command /dance")
	s.say(t, "/peers")
	s.waitFor(t, "No peers.")
	s.say(t, "/quit")
	require.NoError(t, s.wait(t))
}

func TestRoomsURL(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:8080/api/ws/signal":               "http://localhost:8080/api/rooms",
		"wss://call.example.com/api/ws/signal?codec=json": "https://call.example.com/api/rooms",
	}
	for in, want := range cases {
		got, err := roomsURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := roomsURL("ftp://example.com")
	assert.Error(t, err)
}

func TestFetchAndRenderRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rooms":[{"roomId":"standup","memberCount":2,"members":["abcdef123","ghijkl456"],"creatorId":"abcdef123","screenSharingMemberId":"ghijkl456","createdAt":"2026-01-02T03:04:05Z"}]}`)
	}))
	defer srv.Close()

	rooms, err := fetchRooms(context.Background(), srv.Client(), srv.URL+"/api/rooms")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomID("standup"), rooms[0].RoomID)

	var buf bytes.Buffer
	renderRooms(&buf, rooms)
	out := buf.String()
	assert.Contains(t, out, "standup")
	assert.Contains(t, out, "2/10")
	assert.Contains(t, out, "abcdef")
	assert.Contains(t, out, "ghijkl")
}

func TestRenderNoRooms(t *testing.T) {
	var buf bytes.Buffer
	renderRooms(&buf, nil)
	assert.Equal(t, "No active rooms.\n", buf.String())
}

func TestFetchRoomsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fetchRooms(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "500")
}
