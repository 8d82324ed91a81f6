package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrSuspended = errors.New("audio: device suspended")
	ErrClosed    = errors.New("audio: device closed")
)

// Sink is a note output: a MIDI port, a logger, a test recorder.
type Sink interface {
	NoteOn(pitch, velocity uint8) error
	NoteOff(pitch uint8) error
	Close() error
}

// Opener creates the sink the first time the device is used.
type Opener func() (Sink, error)

// State of the device lifecycle.
type State string

const (
	Unopened  State = "unopened"
	Running   State = "running"
	Suspended State = "suspended"
	Failed    State = "failed"
	Closed    State = "closed"
)

// Device is the one audio handle of the process. Scheduled playback and
// manual key input both go through it, so they share one voice table.
//
// Manual voices are monophonic per pitch. Scheduled voices are counted per
// pitch so overlapping repeats release independently. A pitch gets its
// note-off once no voice of either kind holds it.
type Device struct {
	mu        sync.Mutex
	open      Opener
	sink      Sink
	state     State
	openErr   error
	manual    map[int]bool
	scheduled map[int]int
}

func NewDevice(open Opener) *Device {
	return &Device{
		open:      open,
		state:     Unopened,
		manual:    map[int]bool{},
		scheduled: map[int]int{},
	}
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Resume is the explicit user gesture: it opens the sink if that has not
// happened (or failed before) and lifts a suspension.
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case Closed:
		return ErrClosed
	case Suspended:
		d.state = Running
		return nil
	case Failed:
		d.openErr = nil
		d.state = Unopened
	}
	return d.ensure()
}

// Suspend silences everything and drops further notes until Resume.
func (d *Device) Suspend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Running {
		return
	}
	d.silence()
	d.state = Suspended
}

// ensure opens the sink once. A failed open is remembered and only retried by Resume.
func (d *Device) ensure() error {
	switch d.state {
	case Running:
		return nil
	case Suspended:
		return ErrSuspended
	case Closed:
		return ErrClosed
	case Failed:
		return d.openErr
	}
	sink, err := d.open()
	if err != nil {
		d.state = Failed
		d.openErr = fmt.Errorf("audio: open: %w", err)
		log.Warn().Err(err).Msg("audio device unavailable")
		return d.openErr
	}
	d.sink = sink
	d.state = Running
	log.Info().Msg("audio device opened")
	return nil
}

// PlayPitch sounds a manual voice. A pitch already held manually is ignored.
func (d *Device) PlayPitch(pitch int, velocity float64) error {
	if !validPitch(pitch) {
		return fmt.Errorf("audio: pitch %d out of range", pitch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.manual[pitch] {
		return nil
	}
	if err := d.ensure(); err != nil {
		return err
	}
	d.manual[pitch] = true
	return d.sink.NoteOn(uint8(pitch), midiVelocity(velocity))
}

// ReleasePitch ends a manual voice. Releasing a pitch that is not held is a no-op.
func (d *Device) ReleasePitch(pitch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.manual[pitch] {
		return nil
	}
	delete(d.manual, pitch)
	return d.release(pitch)
}

// ScheduleOnset starts a scheduled voice that was due at at.
func (d *Device) ScheduleOnset(pitch int, at time.Time, velocity float64) error {
	if !validPitch(pitch) {
		return fmt.Errorf("audio: pitch %d out of range", pitch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensure(); err != nil {
		return err
	}
	if late := time.Since(at); late > 20*time.Millisecond {
		log.Debug().Int("pitch", pitch).Dur("late", late).Msg("late onset")
	}
	d.scheduled[pitch]++
	return d.sink.NoteOn(uint8(pitch), midiVelocity(velocity))
}

// ScheduleRelease ends one scheduled voice of pitch.
func (d *Device) ScheduleRelease(pitch int, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.scheduled[pitch]
	if n == 0 {
		return nil
	}
	if n == 1 {
		delete(d.scheduled, pitch)
	} else {
		d.scheduled[pitch] = n - 1
	}
	return d.release(pitch)
}

func (d *Device) release(pitch int) error {
	if d.manual[pitch] || d.scheduled[pitch] > 0 || d.state != Running {
		return nil
	}
	return d.sink.NoteOff(uint8(pitch))
}

// SilenceAll drops every voice, manual and scheduled, and sweeps a note-off
// over all 128 pitches.
func (d *Device) SilenceAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silence()
}

func (d *Device) silence() {
	d.manual = map[int]bool{}
	d.scheduled = map[int]int{}
	if d.state != Running {
		return
	}
	for p := 0; p <= 127; p++ {
		if err := d.sink.NoteOff(uint8(p)); err != nil {
			log.Debug().Err(err).Int("pitch", p).Msg("note off sweep")
			return
		}
	}
}

// Sounding reports whether any voice holds pitch.
func (d *Device) Sounding(pitch int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manual[pitch] || d.scheduled[pitch] > 0
}

// Voices counts held voices.
func (d *Device) Voices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.manual)
	for _, c := range d.scheduled {
		n += c
	}
	return n
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return nil
	}
	d.silence()
	var err error
	if d.sink != nil {
		err = d.sink.Close()
	}
	d.sink = nil
	d.state = Closed
	return err
}

func validPitch(p int) bool { return p >= 0 && p <= 127 }

// midiVelocity maps a 0..1 gain onto 1..127.
func midiVelocity(v float64) uint8 {
	n := int(math.Round(v * 127))
	if n < 1 {
		return 1
	}
	if n > 127 {
		return 127
	}
	return uint8(n)
}
