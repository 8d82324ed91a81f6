package keyrange

import (
	"golang.org/x/exp/constraints"

	"github.com/coreman2200/funtimes-scorelight/internal/timeline"
)

const (
	octave  = 12
	maxMIDI = 127

	// LowestEmittable is the lowest pitch the keyboard can produce. Keyboard
	// index 0 is this pitch.
	LowestEmittable = 24
	// LayoutBase is the pitch of keyboard index 0.
	LayoutBase        = 24
	DefaultMinOctaves = 2
	DefaultPad        = 1
	// DefaultLow is where an empty keyboard sits before any score is loaded.
	DefaultLow = 60
)

// Window is an octave-aligned pitch range, both ends inclusive.
type Window struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (w Window) Octaves() int { return (w.High - w.Low + 1) / octave }

func (w Window) Keys() int { return w.High - w.Low + 1 }

func (w Window) Contains(pitch int) bool { return pitch >= w.Low && pitch <= w.High }

// LeftmostIndex is the keyboard index of the window's lowest key.
func (w Window) LeftmostIndex(base int) int {
	return max(0, w.Low-base)
}

// Override is a user-supplied keyboard range. A strict override replaces the
// fitted window; a loose one is merged with it.
type Override struct {
	Low    int  `json:"low" yaml:"low"`
	High   int  `json:"high" yaml:"high"`
	Strict bool `json:"strict" yaml:"strict"`
}

// Options control Fit. The zero value fits with no padding, one octave minimum
// and no floor; use DefaultOptions for the keyboard defaults.
type Options struct {
	Override        *Override
	ForceFit        bool
	MinOctaves      int
	LowestEmittable int
	Pad             int
	// Transpose shifts the fitted pitches for display only.
	Transpose int
}

func DefaultOptions() Options {
	return Options{
		MinOctaves:      DefaultMinOctaves,
		LowestEmittable: LowestEmittable,
		Pad:             DefaultPad,
	}
}

// Fit computes the keyboard window for tl.
func Fit(tl timeline.Timeline, o Options) Window {
	lo, hi, ok := tl.PitchRange()
	if !ok {
		if o.Override != nil {
			return o.window(o.Override.Low, o.Override.High)
		}
		return o.window(DefaultLow, DefaultLow)
	}
	if o.Override != nil && o.Override.Strict && !o.ForceFit {
		return o.window(o.Override.Low, o.Override.High)
	}

	lo = max(o.LowestEmittable, lo+o.Transpose-o.Pad)
	hi = min(maxMIDI, hi+o.Transpose+o.Pad)
	if o.Override != nil && !o.Override.Strict {
		lo = min(lo, o.Override.Low)
		hi = max(hi, o.Override.High)
	}
	return o.window(lo, hi)
}

// FitRoll fits the true, untransposed pitches of tl for a timeline view.
func FitRoll(tl timeline.Timeline) Window {
	o := Options{MinOctaves: DefaultMinOctaves, Pad: DefaultPad}
	lo, hi, ok := tl.PitchRange()
	if !ok {
		return o.window(DefaultLow, DefaultLow)
	}
	return o.window(lo-o.Pad, hi+o.Pad)
}

func (o Options) window(lo, hi int) Window {
	if lo > hi {
		lo, hi = hi, lo
	}
	lo = clamp(lo, o.LowestEmittable, maxMIDI)
	hi = clamp(hi, lo, maxMIDI)

	low := floorDiv(lo, octave) * octave
	top := ceilDiv(hi+1, octave) * octave
	octaves := max(max(o.MinOctaves, 1), (top-low)/octave)
	return Window{Low: low, High: low + octaves*octave - 1}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}
