package signalclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meshcall/internal/protocol"
)

// relay is a test server that answers every ping envelope with a pong in
// the requested codec. flood, when set, is written right after the upgrade.
type relay struct {
	srv    *httptest.Server
	codecs chan string
	flood  int

	mu    sync.Mutex
	conns []*websocket.Conn
}

func pongServer(t *testing.T) *relay {
	t.Helper()
	return startRelay(t, 0)
}

func startRelay(t *testing.T, flood int) *relay {
	t.Helper()
	r := &relay{codecs: make(chan string, 4), flood: flood}
	up := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		codec, err := protocol.CodecByName(req.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		r.mu.Lock()
		r.conns = append(r.conns, conn)
		r.mu.Unlock()
		r.codecs <- codec.Name()

		frame := websocket.TextMessage
		if codec.Binary() {
			frame = websocket.BinaryMessage
		}
		pong, _ := codec.Marshal(protocol.Pong{})
		for i := 0; i < r.flood; i++ {
			if err := conn.WriteMessage(frame, pong); err != nil {
				return
			}
		}
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := codec.Unmarshal(data)
			if err != nil {
				continue
			}
			if _, ok := msg.(protocol.Ping); ok {
				if err := conn.WriteMessage(mt, pong); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

// drop closes every upgraded connection from the server side.
func (r *relay) drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		conn.Close()
	}
	r.conns = nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func receive(t *testing.T, in <-chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-in:
		require.True(t, ok, "connection closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPingPong(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSON, protocol.MsgPack} {
		t.Run(codec.Name(), func(t *testing.T) {
			r := pongServer(t)
			c, err := NewClient(wsURL(r.srv), codec)
			require.NoError(t, err)
			defer c.Close()

			in, err := c.Connect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, codec.Name(), <-r.codecs)

			require.NoError(t, c.Send(protocol.Ping{}))
			assert.Equal(t, protocol.Pong{}, receive(t, in))
		})
	}
}

func TestSendBeforeConnect(t *testing.T) {
	c, err := NewClient("ws://127.0.0.1:1/api/ws/signal", protocol.JSON)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(protocol.Ping{}), ErrNotConnected)
}

func TestCodecQuery(t *testing.T) {
	c, err := NewClient("ws://localhost:8080/api/ws/signal", protocol.MsgPack)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/ws/signal?codec=msgpack", c.URL())

	c, err = NewClient("ws://localhost:8080/api/ws/signal", protocol.JSON)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/ws/signal", c.URL())
}

func TestReconnectAfterServerDrop(t *testing.T) {
	r := pongServer(t)
	c, err := NewClient(wsURL(r.srv), protocol.JSON)
	require.NoError(t, err)
	defer c.Close()

	in, err := c.Connect(context.Background())
	require.NoError(t, err)
	<-r.codecs
	r.drop()

	select {
	case _, ok := <-in:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("incoming not closed after drop")
	}
	assert.Eventually(t, func() bool {
		return c.Send(protocol.Ping{}) == ErrNotConnected
	}, time.Second, 10*time.Millisecond)

	in, err = c.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Send(protocol.Ping{}))
	assert.Equal(t, protocol.Pong{}, receive(t, in))
}

func TestCloseEndsIncoming(t *testing.T) {
	r := pongServer(t)
	c, err := NewClient(wsURL(r.srv), protocol.JSON)
	require.NoError(t, err)

	in, err := c.Connect(context.Background())
	require.NoError(t, err)
	c.Close()
	c.Close()

	select {
	case _, ok := <-in:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("incoming not closed")
	}
	_, err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseWithUnreadMessages(t *testing.T) {
	r := startRelay(t, 2*sendBuffer)
	c, err := NewClient(wsURL(r.srv), protocol.JSON)
	require.NoError(t, err)

	in, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(in) == cap(in) }, 2*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked on a consumer that stopped reading")
	}

	n := 0
	for range in {
		n++
	}
	assert.Equal(t, sendBuffer, n)
}
