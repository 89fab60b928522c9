package main

import (
	"fmt"

	"github.com/RMahshie/powersweep/internal/instrument"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := instrument.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				log.Info().Msg("No serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
