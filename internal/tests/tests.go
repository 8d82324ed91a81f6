package tests

import (
	"context"
	"fmt"
	"time"

	"github.com/coreman2200/funtimes-scorelight/internal/layout"
)

// Kind names a built-in light test pattern.
type Kind string

const (
	None     Kind = ""
	KeySweep Kind = "key_sweep"
	RGBTest  Kind = "rgb_channels"
	Octaves  Kind = "octaves"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KeySweep, RGBTest, Octaves:
		return k, nil
	}
	return None, fmt.Errorf("tests: unknown pattern %q", s)
}

type Plan struct{ Kind Kind }

type Runner struct {
	plan Plan
	step int
}

func NewRunner(plan Plan) *Runner { return &Runner{plan: plan} }
func (r *Runner) Kind() Kind      { return r.plan.Kind }

// Step fills rgb with the next frame; returns false when complete.
func (r *Runner) Step(kb layout.Keyboard, rgb []byte) bool {
	for i := range rgb {
		rgb[i] = 0
	}
	switch r.plan.Kind {
	case KeySweep:
		if r.step >= kb.Keys {
			return false
		}
		paint(rgb, kb.Pixels(kb.FirstIndex+r.step), 255, 255, 255)
	case RGBTest:
		if r.step >= 3 {
			return false
		}
		for i := 0; i+2 < len(rgb); i += 3 {
			rgb[i+r.step] = 255
		}
	case Octaves:
		// one frame per octave, C to B, by keyboard index (index 0 is a C)
		lo := floorDiv(kb.FirstIndex, 12) + r.step
		if lo*12 > kb.FirstIndex+kb.Keys-1 {
			return false
		}
		for x := lo * 12; x < lo*12+12; x++ {
			paint(rgb, kb.Pixels(x), 0, 255, 255)
		}
	default:
		return false
	}
	r.step++
	return true
}

func paint(rgb []byte, pixels []int, r, g, b byte) {
	for _, p := range pixels {
		if p*3+2 >= len(rgb) {
			continue
		}
		rgb[p*3+0], rgb[p*3+1], rgb[p*3+2] = r, g, b
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && (a < 0) {
		q--
	}
	return q
}

// Writer is the frame sink a test pattern runs against.
type Writer interface {
	Write(rgb []byte) error
}

// Run steps the plan every interval until it completes or ctx ends, then
// writes a blank frame.
func Run(ctx context.Context, w Writer, kb layout.Keyboard, plan Plan, every time.Duration) error {
	r := NewRunner(plan)
	rgb := make([]byte, kb.Count()*3)
	t := time.NewTicker(every)
	defer t.Stop()
	for r.Step(kb, rgb) {
		if err := w.Write(rgb); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			clear(rgb)
			_ = w.Write(rgb)
			return ctx.Err()
		case <-t.C:
		}
	}
	return w.Write(rgb)
}
