package cli

import (
	"github.com/spf13/cobra"
)

func newCallCmd(o *options, create bool) *cobra.Command {
	use, short := "join <room-id>", "Join an existing room"
	if create {
		use, short = "create <room-id>", "Create a room, or rejoin it as its creator"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Type a line to send it as chat. Commands:
  /share     start screen share
  /unshare   stop screen share
  /peers     list connections
  /leave     leave the room and exit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			fp, err := cfg.ResolveFingerprint()
			if err != nil {
				return err
			}
			s, err := NewSession(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return s.Run(cmd.Context(), args[0], fp, create, cmd.InOrStdin())
		},
	}
}
