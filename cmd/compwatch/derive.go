package main

import (
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/lynx-chain/compwatch/internal/compdef"
	"github.com/lynx-chain/compwatch/internal/event"
	"github.com/lynx-chain/compwatch/internal/handle"
)

func newDeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive protocol constants",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "event <name>",
			Short: "Derive the discriminator for an event name",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				d := event.DeriveDiscriminator(args[0])
				cmd.Printf("%s\n", hex.EncodeToString(d[:]))
			},
		},
		&cobra.Command{
			Use:   "compdef <circuit>",
			Short: "Derive the computation-definition offset for a circuit name",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("%d\n", compdef.Offset(args[0]))
			},
		},
		&cobra.Command{
			Use:   "handle",
			Short: "Draw a fresh random request handle",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				h, err := handle.Random()
				if err != nil {
					return err
				}
				cmd.Printf("%#x\n", h)
				return nil
			},
		},
	)

	return cmd
}
