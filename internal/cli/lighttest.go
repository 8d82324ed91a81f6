package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-scorelight/internal/tests"
)

var (
	testInterval time.Duration
	testLights   string
)

func init() {
	lighttestCmd.Flags().DurationVar(&testInterval, "interval", 60*time.Millisecond, "time per frame")
	lighttestCmd.Flags().StringVar(&testLights, "lights", "", "light driver: spi | screen | sim")
	rootCmd.AddCommand(lighttestCmd)
}

var lighttestCmd = &cobra.Command{
	Use:       "lighttest [key_sweep|rgb_channels|octaves]",
	Short:     "Run a test pattern on the LED strip",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(tests.KeySweep), string(tests.RGBTest), string(tests.Octaves)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := tests.KeySweep
		if len(args) == 1 {
			k, err := tests.ParseKind(args[0])
			if err != nil {
				return err
			}
			kind = k
		}
		if cmd.Flags().Changed("lights") {
			cfg.Lights.Driver = testLights
		}
		kb, err := keyboardLayout(cfg.Lights)
		if err != nil {
			return err
		}
		strip, err := openStrip(cfg.Lights, kb)
		if err != nil {
			return err
		}
		defer strip.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info().Str("pattern", string(kind)).Int("keys", kb.Keys).Int("leds", kb.Count()).Msg("light test")
		if err := tests.Run(ctx, strip, kb, tests.Plan{Kind: kind}, testInterval); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
