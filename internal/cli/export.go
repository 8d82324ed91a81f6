package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-scorelight/internal/timeline"
)

var (
	exportOut   string
	exportTempo float64
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output .mid path (stdout when empty)")
	exportCmd.Flags().Float64Var(&exportTempo, "tempo", 0, "tempo written to the file (score tempo when 0)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export <score>",
	Short: "Write the score's timeline as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadScore(cmd, args[0])
		if err != nil {
			return err
		}
		bpm := exportTempo
		if bpm <= 0 {
			bpm = float64(cfg.DefaultBPM)
			if l.tempo.OK {
				bpm = float64(l.tempo.BPM)
			}
		}
		f, closeFn, err := stdoutOr(exportOut)
		if err != nil {
			return err
		}
		if err := timeline.WriteSMF(f, l.tl, bpm); err != nil {
			_ = closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}
		log.Info().Str("score", l.name).Float64("bpm", bpm).Int("notes", len(l.tl.Events)).Str("out", exportOut).Msg("exported")
		return nil
	},
}
