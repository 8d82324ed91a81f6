package playback

import (
	"errors"
	"time"

	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
)

var (
	ErrEmptyTimeline = errors.New("playback: timeline has no notes")
	ErrBusy          = errors.New("playback: already playing")
	ErrInvalidTempo  = errors.New("playback: tempo must be positive")
)

// State enumerates scheduler states.
type State string

const (
	Idle      State = "idle"
	Scheduled State = "scheduled"
	Playing   State = "playing"
	Stopped   State = "stopped"
)

func (s State) Active() bool { return s == Scheduled || s == Playing }

// Kind of a scheduled command.
type Kind int

const (
	AudioOn Kind = iota
	AudioOff
	LightOn
	LightOff
	// PassEnd closes a pass: it restarts from beat 0 when looping, stops otherwise.
	PassEnd
)

func (k Kind) String() string {
	switch k {
	case AudioOn:
		return "audio-on"
	case AudioOff:
		return "audio-off"
	case LightOn:
		return "light-on"
	case LightOff:
		return "light-off"
	case PassEnd:
		return "pass-end"
	}
	return "unknown"
}

// Command is one future action of a pass. Commands carry the generation of
// the pass that created them; a stale generation makes the command a no-op.
type Command struct {
	Kind  Kind
	Pitch int
	At    time.Time
	Gen   uint64

	seq uint64
}

// Audio is the sound side of scheduled playback.
type Audio interface {
	ScheduleOnset(pitch int, at time.Time, velocity float64) error
	ScheduleRelease(pitch int, at time.Time) error
	SilenceAll()
}

// Lighting receives keyboard indices, never pitches.
type Lighting interface {
	Light(indices []int)
	Dim(indices []int)
}

// Hooks are optional observers. They run after the scheduler lock is released.
type Hooks struct {
	OnState func(State)
	OnPass  func(gen uint64, fromBeat, bpm float64)
}

type Options struct {
	LeadIn   time.Duration
	Velocity float64
	Keymap   keyrange.Keymap
	Loop     bool
	Now      func() time.Time
	Hooks    Hooks
}

const (
	DefaultLeadIn   = 30 * time.Millisecond
	DefaultVelocity = 0.22
	DefaultTick     = 2 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.LeadIn <= 0 {
		o.LeadIn = DefaultLeadIn
	}
	if o.Velocity <= 0 {
		o.Velocity = DefaultVelocity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Keymap.Window.Keys() <= 0 {
		o.Keymap = keyrange.NewKeymap(keyrange.Fit(emptyTimeline, keyrange.DefaultOptions()), 0)
	}
	return o
}
