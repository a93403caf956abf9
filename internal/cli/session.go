package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/mesh"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/dkeye/meshcall/internal/signalclient"
)

const (
	reconnectAttempts = 5
	reconnectBackoff  = time.Second
)

// Session is one participant in one room: the signaling client, the mesh
// of peer connections and the terminal.
type Session struct {
	cfg    *config.PeerConfig
	client *signalclient.Client
	media  *rtc.LocalMedia
	mesh   *mesh.Manager

	outMu sync.Mutex
	out   io.Writer

	relayErrs chan string
}

func NewSession(cfg *config.PeerConfig, out io.Writer) (*Session, error) {
	media, err := rtc.NewLocalMedia("meshpeer-" + domain.NewMemberID().Short())
	if err != nil {
		return nil, err
	}
	factory, err := rtc.NewFactory(cfg.STUNServers, media)
	if err != nil {
		return nil, err
	}
	s, err := newSession(cfg, out, factory)
	if err != nil {
		return nil, err
	}
	s.media = media
	return s, nil
}

func newSession(cfg *config.PeerConfig, out io.Writer, factory mesh.ConnectionFactory) (*Session, error) {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	client, err := signalclient.NewClient(cfg.ServerURL, codec)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:       cfg,
		client:    client,
		out:       out,
		relayErrs: make(chan string, 8),
	}
	s.mesh = mesh.NewManager(client, factory, mesh.Options{
		GracePeriod: cfg.GracePeriod,
		Events:      s.events(),
	})
	return s, nil
}

func (s *Session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *Session) events() mesh.Events {
	return mesh.Events{
		OnRoomJoined: func(room domain.RoomID, self domain.MemberID, creator bool) {
			role := "member"
			if creator {
				role = "creator"
			}
			s.printf("* joined room %s as %s (%s)", room, self.Short(), role)
		},
		OnPeerConnected: func(remote domain.MemberID) {
			s.printf("* connected to %s", remote.Short())
		},
		OnPeerRemoved: func(remote domain.MemberID) {
			s.printf("* %s left", remote.Short())
		},
		OnTrack: func(remote domain.MemberID, kind webrtc.RTPCodecType) {
			log.Debug().Str("module", "cli").Str("remote", string(remote)).Str("kind", kind.String()).Msg("remote track")
		},
		OnChat: func(m protocol.ChatMessage) {
			s.printf("[%s] %s: %s", m.Timestamp.Local().Format(time.TimeOnly), m.SenderName, m.Text)
		},
		OnShareChanged: func(member domain.MemberID, sharing bool) {
			if sharing {
				s.printf("* %s started screen share", member.Short())
			} else {
				s.printf("* %s stopped screen share", member.Short())
			}
		},
		OnForceStop: func(reason string) {
			s.printf("* screen share stopped: %s", reason)
		},
		OnError: func(message string) {
			s.printf("! %s", message)
			select {
			case s.relayErrs <- message:
			default:
			}
		},
	}
}

// Run joins or creates roomID and serves the terminal until /leave, end of
// input, cancellation, or a relay error before the room was entered.
func (s *Session) Run(ctx context.Context, roomID string, fp domain.Fingerprint, create bool, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.shutdown()

	incoming, err := s.client.Connect(ctx)
	if err != nil {
		return err
	}
	if s.media != nil {
		go s.media.PumpSilence(ctx)
	}

	if create {
		err = s.mesh.CreateRoom(roomID, fp)
	} else {
		err = s.mesh.JoinRoom(roomID, fp)
	}
	if err != nil {
		return err
	}

	lines := readLines(in)
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-incoming:
			if !ok {
				incoming, err = s.reconnect(ctx)
				if err != nil {
					return err
				}
				continue
			}
			s.mesh.HandleMessage(msg)

		case message := <-s.relayErrs:
			if s.mesh.Room() == "" {
				return errors.New(message)
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := s.command(line); done {
				return nil
			}
		}
	}
}

func (s *Session) reconnect(ctx context.Context) (<-chan protocol.Message, error) {
	log.Warn().Str("module", "cli").Msg("signaling lost, reconnecting")
	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * reconnectBackoff):
		}
		incoming, err := s.client.Connect(ctx)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("module", "cli").Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		if err := s.mesh.Resume(); err != nil {
			return nil, err
		}
		s.printf("* reconnected")
		return incoming, nil
	}
	return nil, fmt.Errorf("signaling lost: %w", lastErr)
}

func (s *Session) shutdown() {
	s.mesh.Close()
	s.client.Close()
}

// command handles one line of input and reports whether the session ends.
func (s *Session) command(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd := strings.ToLower(line)
	switch cmd {
	case "/leave", "/quit":
		return true
	case "/share":
		if err := s.mesh.StartScreenShare(); err != nil {
			s.printf("! %v", err)
		}
	case "/unshare":
		s.mesh.StopScreenShare()
	case "/mute", "/unmute":
		if s.media != nil {
			s.media.SetMuted(cmd == "/mute")
		}
	case "/peers":
		s.renderPeers()
	default:
		if strings.HasPrefix(line, "/") {
			s.printf("! unknown command %s", line)
			return false
		}
		if err := s.mesh.SendChat(line, s.cfg.Name); err != nil {
			s.printf("! %v", err)
		}
	}
	return false
}

func (s *Session) renderPeers() {
	peers := s.mesh.Peers()
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if len(peers) == 0 {
		fmt.Fprintln(s.out, "No peers.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Peer", "State", "Queued", "Packets", "Lost"})
	for _, p := range peers {
		var packets, lost uint64
		if pc, ok := s.mesh.Connection(p.Remote); ok {
			if wc, ok := pc.(*rtc.WebRTCConnection); ok {
				for _, st := range wc.Stats() {
					packets += st.Packets
					lost += st.Lost
				}
			}
		}
		t.AppendRow(table.Row{p.Remote.Short(), p.State, p.Pending, packets, lost})
	}
	t.Render()
}

// readLines feeds input lines to a channel that is closed at end of input.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}
