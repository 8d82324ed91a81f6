package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Range struct {
	Low             string `yaml:"low,omitempty"` // note name or MIDI number
	High            string `yaml:"high,omitempty"`
	Strict          bool   `yaml:"strict"`
	Fit             bool   `yaml:"fit"` // ignore a strict override and fit to the score
	MinOctaves      int    `yaml:"min_octaves"`
	LowestEmittable int    `yaml:"lowest_emittable"`
}

type Audio struct {
	Driver         string  `yaml:"driver"` // "midi" | "log"
	Port           string  `yaml:"port,omitempty"`
	Channel        uint8   `yaml:"channel"`
	Velocity       float64 `yaml:"velocity"`
	ManualVelocity float64 `yaml:"manual_velocity"`
}

type Lights struct {
	Driver     string  `yaml:"driver"` // "spi" | "screen" | "sim"
	SPIPort    string  `yaml:"spi_port,omitempty"`
	FreqKHz    int     `yaml:"freq_khz"`
	ColorOrder string  `yaml:"color_order"`
	FirstKey   string  `yaml:"first_key"` // leftmost physical key
	Keys       int     `yaml:"keys"`
	LEDsPerKey int     `yaml:"leds_per_key"`
	Rows       int     `yaml:"rows"`
	Offset     int     `yaml:"offset"`
	Reverse    bool    `yaml:"reverse"`
	XFlipEvery bool    `yaml:"x_flip_every_row"`
	Color      string  `yaml:"color"`
	Brightness float64 `yaml:"brightness"`
	WhiteCap   float64 `yaml:"white_cap"`
}

type Playback struct {
	LeadInMs int `yaml:"lead_in_ms"`
	TickMs   int `yaml:"tick_ms"`
}

type Fetch struct {
	TimeoutS int    `yaml:"timeout_s"`
	S3Region string `yaml:"s3_region,omitempty"`
}

type Config struct {
	DefaultBPM    int     `yaml:"default_bpm"`
	TempoOverride float64 `yaml:"tempo_override,omitempty"`
	Loop          bool    `yaml:"loop"`
	Transpose     int     `yaml:"transpose"`
	Addr          string  `yaml:"addr"`
	LogLevel      string  `yaml:"log_level"`

	Range    Range    `yaml:"range"`
	Audio    Audio    `yaml:"audio"`
	Lights   Lights   `yaml:"lights"`
	Playback Playback `yaml:"playback"`
	Fetch    Fetch    `yaml:"fetch"`
}

func Default() *Config {
	return &Config{
		DefaultBPM: 100,
		Addr:       ":8080",
		LogLevel:   "info",
		Range: Range{
			MinOctaves:      2,
			LowestEmittable: 24,
		},
		Audio: Audio{
			Driver:         "log",
			Channel:        0,
			Velocity:       0.22,
			ManualVelocity: 0.7,
		},
		Lights: Lights{
			Driver:     "sim",
			FreqKHz:    2500,
			ColorOrder: "GRB",
			FirstKey:   "A0",
			Keys:       88,
			LEDsPerKey: 1,
			Rows:       1,
			Color:      "#2fa8ff",
			Brightness: 0.8,
			WhiteCap:   0.85,
		},
		Playback: Playback{LeadInMs: 30, TickMs: 2},
		Fetch:    Fetch{TimeoutS: 15},
	}
}

// Load reads path on top of Default, so a partial file keeps the defaults
// for every key it omits.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	if c.DefaultBPM < 1 {
		return fmt.Errorf("default_bpm must be >= 1, got %d", c.DefaultBPM)
	}
	if c.TempoOverride < 0 {
		return fmt.Errorf("tempo_override must not be negative")
	}
	if c.Audio.Channel > 15 {
		return fmt.Errorf("audio.channel must be 0..15, got %d", c.Audio.Channel)
	}
	switch c.Audio.Driver {
	case "midi", "log":
	default:
		return fmt.Errorf("audio.driver must be midi or log, got %q", c.Audio.Driver)
	}
	switch c.Lights.Driver {
	case "spi", "sim", "screen":
	default:
		return fmt.Errorf("lights.driver must be spi, screen or sim, got %q", c.Lights.Driver)
	}
	if c.Lights.Keys < 1 {
		return fmt.Errorf("lights.keys must be >= 1")
	}
	return nil
}

func (p Playback) LeadIn() time.Duration { return time.Duration(p.LeadInMs) * time.Millisecond }

func (p Playback) Tick() time.Duration {
	if p.TickMs <= 0 {
		return 2 * time.Millisecond
	}
	return time.Duration(p.TickMs) * time.Millisecond
}

func (f Fetch) Timeout() time.Duration {
	if f.TimeoutS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(f.TimeoutS) * time.Second
}
