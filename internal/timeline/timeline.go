package timeline

import (
	"math"
	"time"
)

// NoteEvent is one sounding note. Start and End are in quarter-note beats.
type NoteEvent struct {
	Pitch int     `json:"pitch"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (e NoteEvent) Beats() float64 { return e.End - e.Start }

// Timeline is the tempo-independent result of one extraction. Events are
// ordered by Start; it is never mutated after Extract returns.
type Timeline struct {
	Events     []NoteEvent `json:"events"`
	TotalBeats float64     `json:"total_beats"`
}

func (t Timeline) Empty() bool { return len(t.Events) == 0 }

// Seconds estimates the wall-clock length of the timeline at bpm.
func (t Timeline) Seconds(bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	return t.TotalBeats * 60 / bpm
}

// BeatDuration converts beats to a duration at bpm.
func BeatDuration(beats, bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(beats * 60 / bpm * float64(time.Second))
}

// PitchRange returns the lowest and highest pitch in the timeline.
func (t Timeline) PitchRange() (lo, hi int, ok bool) {
	if t.Empty() {
		return 0, 0, false
	}
	lo, hi = math.MaxInt, math.MinInt
	for _, e := range t.Events {
		if e.Pitch < lo {
			lo = e.Pitch
		}
		if e.Pitch > hi {
			hi = e.Pitch
		}
	}
	return lo, hi, true
}

// From returns the part of the timeline still sounding at or after beat.
// Notes already under way are clipped to start at beat.
func (t Timeline) From(beat float64) []NoteEvent {
	if beat <= 0 {
		return t.Events
	}
	out := make([]NoteEvent, 0, len(t.Events))
	for _, e := range t.Events {
		if e.End <= beat {
			continue
		}
		if e.Start < beat {
			e.Start = beat
		}
		out = append(out, e)
	}
	return out
}
