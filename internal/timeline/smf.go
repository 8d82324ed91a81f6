package timeline

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerQuarter = 960
	exportVelocity  = 100
)

type stamped struct {
	tick  uint32
	on    bool
	pitch uint8
	seq   int
}

// WriteSMF writes the timeline as a format 1 Standard MIDI File with a tempo
// track followed by one note track on channel 0.
func WriteSMF(w io.Writer, tl Timeline, bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("export: invalid tempo %v", bpm)
	}
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tempoTrack smf.Track
	tempoTrack.Add(0, smf.MetaMeter(4, 4))
	tempoTrack.Add(0, smf.MetaTempo(bpm))
	tempoTrack.Close(0)
	if err := s.Add(tempoTrack); err != nil {
		return fmt.Errorf("export: tempo track: %w", err)
	}

	msgs := make([]stamped, 0, len(tl.Events)*2)
	for i, e := range tl.Events {
		p := uint8(e.Pitch)
		msgs = append(msgs,
			stamped{tick: toTicks(e.Start), on: true, pitch: p, seq: i},
			stamped{tick: toTicks(e.End), on: false, pitch: p, seq: i},
		)
	}
	// Releases sort ahead of attacks on the same tick so repeated pitches re-strike.
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		if msgs[i].on != msgs[j].on {
			return !msgs[i].on
		}
		return msgs[i].seq < msgs[j].seq
	})

	var track smf.Track
	var last uint32
	for _, m := range msgs {
		delta := m.tick - last
		if m.on {
			track.Add(delta, midi.NoteOn(0, m.pitch, exportVelocity))
		} else {
			track.Add(delta, midi.NoteOff(0, m.pitch))
		}
		last = m.tick
	}
	track.Close(0)
	if err := s.Add(track); err != nil {
		return fmt.Errorf("export: note track: %w", err)
	}

	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}

func toTicks(beats float64) uint32 {
	return uint32(math.Round(beats * ticksPerQuarter))
}
