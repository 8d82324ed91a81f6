package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-scorelight/internal/audio"
	"github.com/coreman2200/funtimes-scorelight/internal/config"
	"github.com/coreman2200/funtimes-scorelight/internal/fetch"
	"github.com/coreman2200/funtimes-scorelight/internal/keyboard"
	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/layout"
	"github.com/coreman2200/funtimes-scorelight/internal/led"
	"github.com/coreman2200/funtimes-scorelight/internal/playback"
	"github.com/coreman2200/funtimes-scorelight/internal/session"
)

// playerFlags are shared by play and serve. They override the config file
// only when given.
type playerFlags struct {
	tempo     float64
	loop      bool
	transpose int
	audio     string
	port      string
	lights    string
}

func (p *playerFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&p.tempo, "tempo", 0, "live tempo in BPM (overrides the score's tempo)")
	fs.BoolVar(&p.loop, "loop", false, "loop playback")
	fs.IntVar(&p.transpose, "transpose", 0, "shift the lights by semitones; sound is unchanged")
	fs.StringVar(&p.audio, "audio", "", "audio driver: midi | log")
	fs.StringVar(&p.port, "port", "", "MIDI output port (substring match)")
	fs.StringVar(&p.lights, "lights", "", "light driver: spi | screen | sim")
}

func (p *playerFlags) apply(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("tempo") {
		c.TempoOverride = p.tempo
	}
	if fs.Changed("loop") {
		c.Loop = p.loop
	}
	if fs.Changed("transpose") {
		c.Transpose = p.transpose
	}
	if fs.Changed("audio") {
		c.Audio.Driver = p.audio
	}
	if fs.Changed("port") {
		c.Audio.Port = p.port
	}
	if fs.Changed("lights") {
		c.Lights.Driver = p.lights
	}
}

// player is everything a playing process owns.
type player struct {
	dev     *audio.Device
	strip   led.Driver
	kb      layout.Keyboard
	keys    *led.KeyLights
	sched   *playback.Scheduler
	sess    *session.Session
	input   *keyboard.Input
	closers []func() error
}

func (p *player) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			log.Debug().Err(err).Msg("close")
		}
	}
}

// audioOpener picks the sink the device opens on first use.
func audioOpener(c config.Audio) audio.Opener {
	if c.Driver != "midi" {
		return func() (audio.Sink, error) { return audio.NewLogSink(), nil }
	}
	return func() (audio.Sink, error) {
		drv, err := rtmididrv.New()
		if err != nil {
			return nil, fmt.Errorf("rtmididrv: %w", err)
		}
		sink, err := audio.OpenMIDI(drv, c.Port, c.Channel)
		if err != nil {
			drv.Close()
			return nil, err
		}
		log.Info().Str("port", sink.String()).Uint8("channel", c.Channel).Msg("MIDI out")
		return &driverSink{MIDISink: sink, drv: drv}, nil
	}
}

// driverSink closes the rtmidi driver along with its port.
type driverSink struct {
	*audio.MIDISink
	drv *rtmididrv.Driver
}

func (d *driverSink) Close() error {
	err := d.MIDISink.Close()
	d.drv.Close()
	return err
}

func keyboardLayout(c config.Lights) (layout.Keyboard, error) {
	first, err := keyrange.ParseNote(c.FirstKey)
	if err != nil {
		return layout.Keyboard{}, fmt.Errorf("lights.first_key: %w", err)
	}
	return layout.Keyboard{
		FirstIndex: first - keyrange.LayoutBase,
		Keys:       c.Keys,
		LEDsPerKey: c.LEDsPerKey,
		Rows:       c.Rows,
		Offset:     c.Offset,
		Reverse:    c.Reverse,
		Order:      layout.Serpentine{XFlipEveryRow: c.XFlipEvery},
	}, nil
}

func openStrip(c config.Lights, kb layout.Keyboard) (led.Driver, error) {
	switch strings.ToLower(c.Driver) {
	case "spi":
		s, err := led.OpenStrip(led.StripOpts{
			Port:       c.SPIPort,
			NumPixels:  kb.Count(),
			Freq:       physic.Frequency(c.FreqKHz) * physic.KiloHertz,
			ColorOrder: c.ColorOrder,
		})
		if err != nil {
			log.Warn().Err(err).Msg("no SPI strip, printing at the console")
			return led.NewScreen(kb.Count()), nil
		}
		log.Info().Str("strip", s.String()).Int("leds", kb.Count()).Msg("LED strip opened")
		return s, nil
	case "screen":
		return led.NewScreen(kb.Count()), nil
	case "sim", "":
		return led.NewSim(), nil
	}
	return nil, fmt.Errorf("unknown light driver %q", c.Driver)
}

func rangeOptions(c *config.Config) (keyrange.Options, error) {
	o := keyrange.DefaultOptions()
	o.Transpose = c.Transpose
	o.ForceFit = c.Range.Fit
	if c.Range.MinOctaves > 0 {
		o.MinOctaves = c.Range.MinOctaves
	}
	if c.Range.LowestEmittable > 0 {
		o.LowestEmittable = c.Range.LowestEmittable
	}
	if c.Range.Low == "" && c.Range.High == "" {
		return o, nil
	}
	lo, err := keyrange.ParseNote(c.Range.Low)
	if err != nil {
		return o, fmt.Errorf("range.low: %w", err)
	}
	hi, err := keyrange.ParseNote(c.Range.High)
	if err != nil {
		return o, fmt.Errorf("range.high: %w", err)
	}
	o.Override = &keyrange.Override{Low: lo, High: hi, Strict: c.Range.Strict}
	return o, nil
}

type playerOpts struct {
	autoplay bool
	debounce time.Duration
	// extra lighting collaborators, e.g. the websocket hub, get the same
	// light events as the strip.
	extra []playback.Lighting
}

// newPlayer wires the audio device, lights, scheduler and session.
func newPlayer(c *config.Config, po playerOpts) (*player, error) {
	p := &player{}
	ro, err := rangeOptions(c)
	if err != nil {
		return nil, err
	}
	p.kb, err = keyboardLayout(c.Lights)
	if err != nil {
		return nil, err
	}
	p.strip, err = openStrip(c.Lights, p.kb)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.strip.Close)

	color, err := led.ParseColor(c.Lights.Color)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("lights.color: %w", err)
	}
	p.keys = led.NewKeyLights(p.strip, p.kb, color.Scale(c.Lights.Brightness), c.Lights.WhiteCap)

	p.dev = audio.NewDevice(audioOpener(c.Audio))
	p.closers = append(p.closers, p.dev.Close)

	lights := append(playback.Lights{p.keys}, po.extra...)
	p.sched = playback.New(p.dev, lights, playback.Options{
		LeadIn:   c.Playback.LeadIn(),
		Velocity: c.Audio.Velocity,
		Loop:     c.Loop,
	})
	p.sess = session.New(session.Deps{
		Fetcher: fetch.New(fetch.Options{
			Timeout:  c.Fetch.Timeout(),
			S3Region: c.Fetch.S3Region,
		}),
		Scheduler: p.sched,
		Audio:     p.dev,
		Clear:     []func(){p.keys.Clear},
	}, session.Options{
		DefaultBPM:    c.DefaultBPM,
		TempoOverride: c.TempoOverride,
		Range:         ro,
		Autoplay:      po.autoplay,
		Debounce:      po.debounce,
	})
	p.input = keyboard.NewInput(p.dev, p.sess.Keymap, c.Audio.ManualVelocity)
	return p, nil
}
