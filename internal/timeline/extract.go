package timeline

import (
	"sort"

	"github.com/coreman2200/funtimes-scorelight/internal/score"
)

const defaultVoice = "1"

type tieKey struct {
	voice string
	pitch int
}

// partCursor carries the per-part state of one extraction. Nothing in it
// outlives Extract.
type partCursor struct {
	divisions float64
	voice     string
	cursors   map[string]float64
	lastStart map[string]float64
	ties      map[tieKey]int
	events    []NoteEvent
}

func newPartCursor() *partCursor {
	return &partCursor{
		divisions: 1,
		voice:     defaultVoice,
		cursors:   map[string]float64{},
		lastStart: map[string]float64{},
		ties:      map[tieKey]int{},
	}
}

// ExtractMarkup parses MusicXML markup and extracts its timeline.
func ExtractMarkup(markup []byte) (Timeline, error) {
	doc, err := score.Parse(markup)
	if err != nil {
		return Timeline{}, err
	}
	return Extract(doc), nil
}

// Extract walks every part independently and merges the resulting notes into
// one timeline ordered by start beat. Notes with equal starts keep document order.
func Extract(doc *score.Document) Timeline {
	var events []NoteEvent
	for _, part := range doc.Parts {
		pc := newPartCursor()
		for i, m := range part.Measures {
			if i > 0 {
				pc.alignVoices()
			}
			for _, ev := range m.Events {
				pc.apply(ev)
			}
		}
		events = append(events, pc.events...)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Start < events[j].Start })

	tl := Timeline{Events: events}
	for _, e := range events {
		if e.End > tl.TotalBeats {
			tl.TotalBeats = e.End
		}
	}
	return tl
}

// alignVoices moves every voice up to the furthest point reached in the part,
// so a voice that sat out a backup enters the next measure on the barline.
// It runs between measures only; inside a measure a cursor moves by its own
// durations, forwards and backups.
func (pc *partCursor) alignVoices() {
	furthest := 0.0
	for _, c := range pc.cursors {
		if c > furthest {
			furthest = c
		}
	}
	for v := range pc.cursors {
		pc.cursors[v] = furthest
	}
}

func (pc *partCursor) beats(duration float64) float64 {
	return duration / pc.divisions
}

func (pc *partCursor) voiceOf(ev score.Event) string {
	if ev.Voice != "" {
		pc.voice = ev.Voice
	}
	return pc.voice
}

func (pc *partCursor) apply(ev score.Event) {
	switch ev.Kind {
	case score.KindAttributes:
		if ev.Divisions > 0 {
			pc.divisions = ev.Divisions
		}
	case score.KindBackup:
		v := pc.voiceOf(ev)
		c := pc.cursors[v] - pc.beats(ev.Duration)
		if c < 0 {
			c = 0
		}
		pc.cursors[v] = c
	case score.KindForward:
		v := pc.voiceOf(ev)
		pc.cursors[v] += pc.beats(ev.Duration)
	case score.KindNote:
		pc.note(ev)
	}
}

func (pc *partCursor) note(ev score.Event) {
	v := defaultVoice
	if ev.Voice != "" {
		v = ev.Voice
	}
	pc.voice = v
	dur := pc.beats(ev.Duration)
	cur := pc.cursors[v]

	if ev.Note.Chord {
		start, ok := pc.lastStart[v]
		if !ok {
			start = cur
		}
		pc.sound(ev.Note, v, start, start+dur)
		return
	}

	if !ev.Note.Rest {
		pc.sound(ev.Note, v, cur, cur+dur)
	}
	pc.lastStart[v] = cur
	pc.cursors[v] = cur + dur
}

func (pc *partCursor) sound(n score.Note, voice string, start, end float64) {
	if n.Pitch == nil {
		return
	}
	pitch, ok := n.Pitch.MIDI()
	if !ok {
		return
	}
	key := tieKey{voice: voice, pitch: pitch}

	if n.TieStop {
		if idx, open := pc.ties[key]; open {
			if end > pc.events[idx].End {
				pc.events[idx].End = end
			}
			if !n.TieStart {
				delete(pc.ties, key)
			}
			return
		}
	}

	if end <= start {
		return
	}
	pc.events = append(pc.events, NoteEvent{Pitch: pitch, Start: start, End: end})
	if n.TieStart {
		pc.ties[key] = len(pc.events) - 1
	}
}
