package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-scorelight/internal/httpapi"
	"github.com/coreman2200/funtimes-scorelight/internal/playback"
	"github.com/coreman2200/funtimes-scorelight/internal/ws"
)

var (
	serveFlags playerFlags
	serveAddr  string
	autoplay   bool
	fps        int
)

func init() {
	serveFlags.register(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().BoolVar(&autoplay, "autoplay", false, "start playing as soon as a score loads")
	serveCmd.Flags().IntVar(&fps, "fps", 30, "playhead frames per second on /ws/keys")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [score]",
	Short: "Run the player with its HTTP and websocket control surface",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serveFlags.apply(cmd, cfg)
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}

		hub := ws.NewHub(nil, nil, nil, fps)
		p, err := newPlayer(cfg, playerOpts{
			autoplay: autoplay,
			debounce: 120 * time.Millisecond,
			extra:    []playback.Lighting{hub},
		})
		if err != nil {
			return err
		}
		defer p.Close()
		hub.Session, hub.Input, hub.Head = p.sess, p.input, p.sched
		hub.Strip, hub.Keyboard = p.strip, p.kb

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go p.sess.Run(ctx, cfg.Playback.Tick())
		go hub.RunRedrawLoop(ctx)

		if len(args) == 1 {
			if _, err := p.sess.Load(ctx, args[0]); err != nil {
				log.Warn().Err(err).Msg("initial score not loaded")
			}
		}

		api := &httpapi.API{Session: p.sess, Input: p.input, Hub: hub}
		srv := &http.Server{
			Addr:         cfg.Addr,
			Handler:      api.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		errc := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.Addr).Str("audio", cfg.Audio.Driver).Str("lights", cfg.Lights.Driver).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		log.Info().Msg("shutting down")
		shut, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shut)
	},
}
