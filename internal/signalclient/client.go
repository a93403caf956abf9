// Package signalclient is the participant side of the signaling websocket.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/meshcall/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	ErrNotConnected = errors.New("signaling not connected")
	ErrBufferFull   = errors.New("signaling send buffer full")
)

// Client manages the WebSocket connection to the relay. It can be connected
// again after the previous connection ended; the cookie jar keeps the
// session cookie so the relay sees the same client token.
type Client struct {
	serverURL string
	codec     protocol.Codec
	dialer    websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	outgoing chan protocol.Message
	done     chan struct{}
	closed   bool
	pumps    conc.WaitGroup
}

func NewClient(serverURL string, codec protocol.Codec) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if codec.Name() != protocol.JSON.Name() {
		q := u.Query()
		q.Set("codec", codec.Name())
		u.RawQuery = q.Encode()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	d := *websocket.DefaultDialer
	d.Jar = jar
	return &Client{serverURL: u.String(), codec: codec, dialer: d}, nil
}

func (c *Client) URL() string { return c.serverURL }

// Connect dials the relay and returns the channel of decoded messages. The
// channel is closed when this connection ends.
func (c *Client) Connect(ctx context.Context) (<-chan protocol.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	incoming := make(chan protocol.Message, sendBuffer)
	outgoing := make(chan protocol.Message, sendBuffer)
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, ErrNotConnected
	}
	c.conn = conn
	c.outgoing = outgoing
	c.done = done
	c.pumps.Go(func() { c.readPump(conn, incoming, done) })
	c.pumps.Go(func() { c.writePump(conn, outgoing, done) })
	c.mu.Unlock()

	log.Info().Str("module", "signalclient").Str("url", c.serverURL).Str("codec", c.codec.Name()).Msg("connected")
	return incoming, nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump(conn *websocket.Conn, incoming chan<- protocol.Message, done chan struct{}) {
	defer func() {
		conn.Close()
		close(incoming)
		c.detach(conn, done)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signalclient").Msg("read failed")
			}
			return
		}
		msg, err := c.codec.Unmarshal(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signalclient").Msg("undecodable message")
			continue
		}
		select {
		case incoming <- msg:
		case <-done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump(conn *websocket.Conn, outgoing <-chan protocol.Message, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	frame := websocket.TextMessage
	if c.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	for {
		select {
		case msg := <-outgoing:
			data, err := c.codec.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("module", "signalclient").Str("type", string(msg.Kind())).Msg("encode failed")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(frame, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) detach(conn *websocket.Conn, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.outgoing = nil
	select {
	case <-done:
	default:
		close(done)
	}
	c.done = nil
}

// Send queues msg for the current connection without blocking.
func (c *Client) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrNotConnected
	}
	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close ends the current connection, refuses new ones and waits for the
// connection's pumps to exit.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()
	c.pumps.Wait()
}
