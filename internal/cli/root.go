// Package cli implements the meshpeer command line participant.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/logging"
)

type options struct {
	v          *viper.Viper
	configFile string
}

// NewRootCmd builds the meshpeer command tree.
func NewRootCmd() *cobra.Command {
	o := &options{v: config.NewPeerViper()}

	root := &cobra.Command{
		Use:   "meshpeer",
		Short: "Join a meshcall room from the terminal",
		Long: `meshpeer is a command line participant for meshcall rooms. It speaks the
signaling protocol, keeps one WebRTC connection per remote member and relays
chat and screen share events to the terminal.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "peer config file (yaml)")
	pf.String("server", "", "signaling websocket URL")
	pf.String("codec", "", "wire codec: json or msgpack")
	pf.String("fingerprint", "", "creator fingerprint (default: persisted in fingerprint file)")
	pf.String("name", "", "display name used in chat")
	pf.String("log-level", "", "log level")
	_ = o.v.BindPFlag("server_url", pf.Lookup("server"))
	_ = o.v.BindPFlag("codec", pf.Lookup("codec"))
	_ = o.v.BindPFlag("fingerprint", pf.Lookup("fingerprint"))
	_ = o.v.BindPFlag("name", pf.Lookup("name"))
	_ = o.v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(newCallCmd(o, true), newCallCmd(o, false), newRoomsCmd(o))
	return root
}

// load reads the peer config and installs the logger.
func (o *options) load() (*config.PeerConfig, error) {
	cfg, err := config.LoadPeer(o.v, o.configFile)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, "console")
	return cfg, nil
}

// Execute runs meshpeer until the command finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
