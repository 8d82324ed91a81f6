package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/timeline"
	"github.com/coreman2200/funtimes-scorelight/internal/transport"
)

var emptyTimeline timeline.Timeline

// Scheduler turns a beat timeline into timed audio and light commands at a
// live tempo. Commands wait in a fire-time queue and are executed by Tick.
//
//	Idle -> Scheduled -> Playing -> Stopped
//	                        \-> (loop) -> Scheduled
type Scheduler struct {
	mu     sync.Mutex
	audio  Audio
	lights Lighting
	opts   Options

	state State
	gen   uint64
	seq   uint64
	queue cmdQueue

	tl       timeline.Timeline
	bpm      float64
	origin   time.Time
	fromBeat float64
	clock    transport.Clock

	// lit counts the scheduled notes holding each pitch's light.
	lit        map[int]int
	audioErred uint64

	// Light and dim calls are collected under mu and delivered in order after
	// it is released, so a slow lighting collaborator never holds up Tick or
	// Stop. Whichever caller finds out idle drains it.
	emit     []func()
	outMu    sync.Mutex
	out      []func()
	draining bool

	pending []func()
}

func New(audio Audio, lights Lighting, opts Options) *Scheduler {
	return &Scheduler{
		audio:  audio,
		lights: lights,
		opts:   opts.withDefaults(),
		state:  Idle,
		lit:    map[int]int{},
	}
}

// with runs fn under the lock, then delivers the light calls and hooks fn
// queued.
func (s *Scheduler) with(fn func()) {
	s.mu.Lock()
	fn()
	pending := s.pending
	s.pending = nil
	drain := s.handOff()
	s.mu.Unlock()
	if drain {
		s.drain()
	}
	for _, h := range pending {
		h()
	}
}

// handOff moves queued light calls to out. Caller holds s.mu, which keeps
// out in the same order as the critical sections that produced it.
func (s *Scheduler) handOff() bool {
	if len(s.emit) == 0 {
		return false
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	s.out = append(s.out, s.emit...)
	s.emit = nil
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

func (s *Scheduler) drain() {
	for {
		s.outMu.Lock()
		batch := s.out
		s.out = nil
		if len(batch) == 0 {
			s.draining = false
			s.outMu.Unlock()
			return
		}
		s.outMu.Unlock()
		for _, f := range batch {
			f()
		}
	}
}

func (s *Scheduler) light(indices []int, on bool) {
	if s.lights == nil || len(indices) == 0 {
		return
	}
	l := s.lights
	if on {
		s.emit = append(s.emit, func() { l.Light(indices) })
		return
	}
	s.emit = append(s.emit, func() { l.Dim(indices) })
}

func (s *Scheduler) setState(st State) {
	if s.state == st {
		return
	}
	log.Debug().Str("from", string(s.state)).Str("to", string(st)).Uint64("gen", s.gen).Msg("playback state")
	s.state = st
	if h := s.opts.Hooks.OnState; h != nil {
		s.pending = append(s.pending, func() { h(st) })
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Tempo is the live tempo of the last pass or Retempo.
func (s *Scheduler) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// Position is the beat under the playhead. The redraw loop reads it; it never
// changes scheduler state.
func (s *Scheduler) Position() float64 {
	return s.clock.Position(s.opts.Now())
}

func (s *Scheduler) Progress() float64 {
	return s.clock.Progress(s.opts.Now())
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) Loop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Loop
}

// Start schedules a full pass of tl at bpm beginning one lead-in from now.
func (s *Scheduler) Start(tl timeline.Timeline, bpm float64) error {
	var err error
	s.with(func() {
		switch {
		case s.state.Active():
			err = ErrBusy
		case tl.Empty():
			err = ErrEmptyTimeline
		case bpm <= 0:
			err = fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
		default:
			s.tl = tl
			s.bpm = bpm
			s.schedule(s.opts.Now(), 0)
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("playback not started")
	}
	return err
}

// schedule replaces the queue with a new pass starting at fromBeat.
func (s *Scheduler) schedule(now time.Time, fromBeat float64) {
	s.gen++
	s.queue = s.queue[:0]
	s.origin = now.Add(s.opts.LeadIn)
	s.fromBeat = fromBeat
	scale := 60 / s.bpm

	at := func(beat float64) time.Time {
		return s.origin.Add(time.Duration((beat - fromBeat) * scale * float64(time.Second)))
	}
	events := s.tl.From(fromBeat)
	for _, e := range events {
		on, off := at(e.Start), at(e.End)
		s.push(AudioOn, e.Pitch, on)
		s.push(LightOn, e.Pitch, on)
		s.push(AudioOff, e.Pitch, off)
		s.push(LightOff, e.Pitch, off)
	}
	s.push(PassEnd, 0, at(s.tl.TotalBeats))

	s.clock.Start(s.origin, fromBeat, s.bpm, s.tl.TotalBeats, s.opts.Loop)
	s.setState(Scheduled)
	log.Info().
		Uint64("gen", s.gen).
		Float64("from_beat", fromBeat).
		Float64("bpm", s.bpm).
		Int("notes", len(events)).
		Msg("pass scheduled")
	if h := s.opts.Hooks.OnPass; h != nil {
		gen, bpm := s.gen, s.bpm
		s.pending = append(s.pending, func() { h(gen, fromBeat, bpm) })
	}
}

func (s *Scheduler) push(k Kind, pitch int, at time.Time) {
	s.seq++
	s.queue.push(Command{Kind: k, Pitch: pitch, At: at, Gen: s.gen, seq: s.seq})
}

// Tick fires every command due at now, in fire-time order.
func (s *Scheduler) Tick(now time.Time) {
	s.with(func() {
		if s.state == Scheduled && !now.Before(s.origin) {
			s.setState(Playing)
		}
		for {
			c, ok := s.queue.peek()
			if !ok || c.At.After(now) {
				return
			}
			s.queue.pop()
			// halt and schedule truncate the queue, so a superseded pass is
			// already gone; this only guards commands queued by a bug.
			if c.Gen != s.gen {
				continue
			}
			s.fire(c)
		}
	})
}

func (s *Scheduler) fire(c Command) {
	switch c.Kind {
	case AudioOn:
		s.audioErr(s.audio.ScheduleOnset(c.Pitch, c.At, s.opts.Velocity))
	case AudioOff:
		s.audioErr(s.audio.ScheduleRelease(c.Pitch, c.At))
	case LightOn:
		s.lit[c.Pitch]++
		if s.lit[c.Pitch] == 1 {
			s.showPitch(c.Pitch, true)
		}
	case LightOff:
		n := s.lit[c.Pitch]
		if n == 0 {
			return
		}
		if n == 1 {
			delete(s.lit, c.Pitch)
			s.showPitch(c.Pitch, false)
			return
		}
		s.lit[c.Pitch] = n - 1
	case PassEnd:
		if s.opts.Loop {
			s.halt(c.At)
			s.schedule(c.At, 0)
			return
		}
		s.queue = s.queue[:0]
		s.lit = map[int]int{}
		s.clock.Stop(c.At)
		s.setState(Stopped)
		log.Info().Uint64("gen", s.gen).Msg("pass finished")
	}
}

func (s *Scheduler) audioErr(err error) {
	if err == nil || s.audioErred == s.gen {
		return
	}
	s.audioErred = s.gen
	log.Warn().Err(err).Uint64("gen", s.gen).Msg("audio command failed")
}

func (s *Scheduler) showPitch(pitch int, on bool) {
	if idx, ok := s.opts.Keymap.Index(pitch); ok {
		s.light([]int{idx}, on)
	}
}

// halt invalidates the pass and clears sound and lights.
func (s *Scheduler) halt(now time.Time) {
	s.gen++
	s.queue = s.queue[:0]
	s.lit = map[int]int{}
	s.clock.Stop(now)
	s.audio.SilenceAll()
	s.light(s.opts.Keymap.Indices(), false)
}

// Stop cancels every outstanding command, silences all voices and dims every
// key of the window. It is safe in any state.
func (s *Scheduler) Stop() {
	s.with(func() {
		s.halt(s.opts.Now())
		if s.state != Idle {
			s.setState(Stopped)
		}
	})
}

// Retempo changes the live tempo. A running pass is stopped and rescheduled
// from the current beat at the new tempo; notes already sounding are struck
// again for their remaining length.
func (s *Scheduler) Retempo(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
	}
	s.with(func() {
		old := s.bpm
		s.bpm = bpm
		if !s.state.Active() {
			return
		}
		now := s.opts.Now()
		pos := s.clock.Position(now)
		if pos >= s.tl.TotalBeats {
			pos = 0
		}
		s.halt(now)
		s.schedule(now, pos)
		log.Info().Float64("from", old).Float64("to", bpm).Float64("beat", pos).Msg("retempo")
	})
	return nil
}

// SetLoop takes effect at the end of the current pass.
func (s *Scheduler) SetLoop(on bool) {
	s.with(func() {
		s.opts.Loop = on
		s.clock.SetLoop(on)
	})
}

// SetKeymap moves lights currently on to their keys under k.
func (s *Scheduler) SetKeymap(k keyrange.Keymap) {
	s.with(func() {
		var off, on []int
		for p := range s.lit {
			if idx, ok := s.opts.Keymap.Index(p); ok {
				off = append(off, idx)
			}
			if idx, ok := k.Index(p); ok {
				on = append(on, idx)
			}
		}
		s.light(off, false)
		s.light(on, true)
		s.opts.Keymap = k
	})
}

func (s *Scheduler) Keymap() keyrange.Keymap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Keymap
}

// Run drives Tick from a ticker until ctx is done.
func (s *Scheduler) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultTick
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.Tick(s.opts.Now())
		}
	}
}
