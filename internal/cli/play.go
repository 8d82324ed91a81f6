package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-scorelight/internal/playback"
)

var playFlags playerFlags

func init() {
	playFlags.register(playCmd)
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <file|url|s3://bucket/key>",
	Short: "Play a score once (or looped) and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		playFlags.apply(cmd, cfg)
		p, err := newPlayer(cfg, playerOpts{})
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sc, err := p.sess.Load(ctx, args[0])
		if err != nil {
			return err
		}
		if !sc.Playable() {
			return playback.ErrEmptyTimeline
		}
		done := make(chan struct{})
		go func() {
			p.sess.Run(ctx, cfg.Playback.Tick())
			close(done)
		}()
		if err := p.sess.Play(); err != nil {
			return err
		}
		err = waitForEnd(ctx, p)
		stop()
		<-done
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("interrupted")
			return nil
		}
		return err
	},
}

func waitForEnd(ctx context.Context, p *player) error {
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	report := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-poll.C:
			st := p.sess.Status()
			if st.State == playback.Stopped {
				log.Info().Float64("beats", st.TotalBeats).Msg("finished")
				return nil
			}
			if now.Sub(report) >= time.Second {
				report = now
				log.Debug().Float64("beat", st.Position).Float64("progress", st.Progress).Msg("playing")
			}
		}
	}
}
