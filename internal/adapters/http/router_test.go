package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
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
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

type wsClient struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
}

func dial(t *testing.T, srv *httptest.Server, codec protocol.Codec) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal?codec=" + codec.Name()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn, codec: codec}
}

func (c *wsClient) send(m protocol.Message) {
	c.t.Helper()
	data, err := c.codec.Marshal(m)
	require.NoError(c.t, err)
	frame := websocket.TextMessage
	if c.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	require.NoError(c.t, c.conn.WriteMessage(frame, data))
}

// expect reads until a message of the given kind arrives.
func (c *wsClient) expect(kind protocol.Type) protocol.Message {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", kind, err)
		}
		m, err := c.codec.Unmarshal(data)
		require.NoError(c.t, err)
		if m.Kind() == kind {
			return m
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignalingScenario(t *testing.T) {
	srv, o := newTestServer(t)

	a := dial(t, srv, protocol.JSON)
	a.send(protocol.CreateRoom{RoomID: "abcd1234", Fingerprint: "fp-a"})
	created := a.expect(protocol.TypeRoomCreated).(protocol.RoomCreated)
	assert.Equal(t, domain.RoomID("abcd1234"), created.RoomID)

	b := dial(t, srv, protocol.MsgPack)
	b.send(protocol.JoinRoom{RoomID: "abcd1234"})
	joined := b.expect(protocol.TypeRoomJoined).(protocol.RoomJoined)
	assert.Equal(t, []domain.MemberID{created.MemberID}, joined.ExistingUsers)
	assert.Equal(t, 2, joined.Stats.MemberCount)

	userJoined := a.expect(protocol.TypeUserJoined).(protocol.UserJoined)
	assert.Equal(t, joined.MemberID, userJoined.MemberID)

	a.send(protocol.Offer{To: joined.MemberID, SDP: protocol.SessionDescription{Type: "offer", SDP: "v=0"}})
	offer := b.expect(protocol.TypeOffer).(protocol.Offer)
	assert.Equal(t, created.MemberID, offer.From)

	resp, err := http.Get(srv.URL + "/api/rooms/abcd1234")
	require.NoError(t, err)
	var stats domain.RoomStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, 2, stats.MemberCount)

	require.NoError(t, b.conn.Close())
	left := a.expect(protocol.TypeUserLeft).(protocol.UserLeft)
	assert.Equal(t, joined.MemberID, left.MemberID)

	require.Eventually(t, func() bool {
		room, ok := o.Rooms.Get("abcd1234")
		return ok && room.MemberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalingErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, protocol.JSON)

	c.send(protocol.CreateRoom{RoomID: "abc"})
	assert.Equal(t, "Room ID must be at least 4 characters", c.expect(protocol.TypeError).(protocol.Error).Message)

	c.send(protocol.JoinRoom{RoomID: " missing "})
	assert.Equal(t, `Room "missing" not found.`, c.expect(protocol.TypeError).(protocol.Error).Message)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))
	assert.Equal(t, "Invalid message", c.expect(protocol.TypeError).(protocol.Error).Message)

	c.send(protocol.Ping{})
	c.expect(protocol.TypePong)
}

func TestListRooms(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, protocol.JSON)
	c.send(protocol.CreateRoom{RoomID: "listed-room"})
	c.expect(protocol.TypeRoomCreated)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Rooms []domain.RoomStats `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Rooms, 1)
	assert.Equal(t, domain.RoomID("listed-room"), body.Rooms[0].RoomID)

	missing, err := http.Get(srv.URL + "/api/rooms/nothing-here")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestUnknownCodecRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/ws/signal?codec=xml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
