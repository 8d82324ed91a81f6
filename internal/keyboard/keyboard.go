// Package keyboard handles manual key input. Presses go straight to the
// audio device and never through the playback scheduler.
package keyboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
)

var ErrBadKey = errors.New("keyboard: bad key reference")

// KeyRef names a key either by pitch or by keyboard index.
type KeyRef struct {
	Pitch *int `json:"pitch,omitempty"`
	Index *int `json:"index,omitempty"`
}

func Pitch(p int) KeyRef { return KeyRef{Pitch: &p} }
func Index(i int) KeyRef { return KeyRef{Index: &i} }

func (r KeyRef) String() string {
	switch {
	case r.Pitch != nil:
		return fmt.Sprintf("pitch %d", *r.Pitch)
	case r.Index != nil:
		return fmt.Sprintf("index %d", *r.Index)
	}
	return "none"
}

// ParseRef decodes {"pitch":60} or {"index":36}.
func ParseRef(b []byte) (KeyRef, error) {
	var r KeyRef
	if err := json.Unmarshal(b, &r); err != nil {
		return KeyRef{}, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	return r, nil
}

// Resolve turns the reference into a sounding pitch. This is the only place
// an index becomes a pitch.
func (r KeyRef) Resolve(km keyrange.Keymap) (int, error) {
	var p int
	switch {
	case r.Pitch != nil && r.Index != nil:
		return 0, fmt.Errorf("%w: both pitch and index", ErrBadKey)
	case r.Pitch != nil:
		p = *r.Pitch
	case r.Index != nil:
		p = km.Pitch(*r.Index)
	default:
		return 0, fmt.Errorf("%w: empty", ErrBadKey)
	}
	if p < 0 || p > 127 {
		return 0, fmt.Errorf("%w: pitch %d out of range", ErrBadKey, p)
	}
	return p, nil
}

// Voices is the part of the audio device manual input uses.
type Voices interface {
	Resume() error
	PlayPitch(pitch int, velocity float64) error
	ReleasePitch(pitch int) error
}

type Input struct {
	voices   Voices
	keymap   func() keyrange.Keymap
	velocity float64
}

const DefaultVelocity = 0.7

func NewInput(v Voices, keymap func() keyrange.Keymap, velocity float64) *Input {
	if velocity <= 0 {
		velocity = DefaultVelocity
	}
	return &Input{voices: v, keymap: keymap, velocity: velocity}
}

// Press is a user gesture, so it resumes the audio device first.
func (in *Input) Press(ref KeyRef) (int, error) {
	p, err := ref.Resolve(in.keymap())
	if err != nil {
		return 0, err
	}
	if err := in.voices.Resume(); err != nil {
		return p, err
	}
	log.Debug().Int("pitch", p).Str("ref", ref.String()).Msg("key press")
	return p, in.voices.PlayPitch(p, in.velocity)
}

func (in *Input) Release(ref KeyRef) (int, error) {
	p, err := ref.Resolve(in.keymap())
	if err != nil {
		return 0, err
	}
	return p, in.voices.ReleasePitch(p)
}

// TestTone sounds pitch for d, or until ctx ends.
func (in *Input) TestTone(ctx context.Context, pitch int, d time.Duration) error {
	if _, err := in.Press(Pitch(pitch)); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	_, err := in.Release(Pitch(pitch))
	return err
}
