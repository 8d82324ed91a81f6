// Package cli holds the scorelight commands.
package cli

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-scorelight/internal/config"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scorelight",
	Short: "Play MusicXML scores on MIDI out and keyboard lights",
	Long: `scorelight reads MusicXML (.xml, .musicxml, .mxl), detects its tempo and
plays it at a live, adjustable tempo: notes go to a MIDI output, the keys
being played light up on an LED strip and on connected browser keyboards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

		c, err := config.Load(configPath)
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
			cfg = config.Default()
		case errors.Is(err, fs.ErrNotExist):
			return err
		default:
			log.Warn().Err(err).Str("path", configPath).Msg("config load failed; proceeding with defaults")
			cfg = config.Default()
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		lvl, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(lvl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scorelight.yaml", "path to the yaml config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace | debug | info | warn | error")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
