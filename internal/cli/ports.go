package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/coreman2200/funtimes-scorelight/internal/audio"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := rtmididrv.New()
		if err != nil {
			return fmt.Errorf("rtmididrv: %w", err)
		}
		defer drv.Close()
		names, err := audio.OutputNames(drv)
		if err != nil {
			return err
		}
		for i, n := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, n)
		}
		return nil
	},
}
