package score

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EventKind tags the measure children the timeline cares about.
type EventKind int

const (
	KindAttributes EventKind = iota
	KindNote
	KindBackup
	KindForward
)

func (k EventKind) String() string {
	switch k {
	case KindAttributes:
		return "attributes"
	case KindNote:
		return "note"
	case KindBackup:
		return "backup"
	case KindForward:
		return "forward"
	}
	return "unknown"
}

// Document is the subset of a partwise MusicXML score needed to build a timeline.
type Document struct {
	Parts []Part `xml:"part"`
}

type Part struct {
	ID       string    `xml:"id,attr"`
	Measures []Measure `xml:"measure"`
}

// Measure keeps its children in document order; element order carries the
// cursor arithmetic so it cannot be split into per-tag slices.
type Measure struct {
	Number string
	Events []Event
}

type Event struct {
	Kind EventKind
	// Divisions is the declared ticks per quarter (attributes only), 0 when absent or invalid.
	Divisions float64
	// Duration in divisions for notes, backups and forwards. 0 when absent or invalid.
	Duration float64
	// Voice is the declared voice id, "" when not declared.
	Voice string
	Note  Note
}

type Note struct {
	Rest     bool
	Chord    bool
	Pitch    *Pitch
	TieStart bool
	TieStop  bool
}

type Pitch struct {
	Step   string
	Alter  float64
	Octave string
}

var semitones = map[string]int{"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11}

// MIDI returns the MIDI note number, or false if the step or octave is unusable
// or the result falls outside 0..127.
func (p Pitch) MIDI() (int, bool) {
	semi, ok := semitones[strings.ToUpper(strings.TrimSpace(p.Step))]
	if !ok {
		return 0, false
	}
	oct, err := strconv.Atoi(strings.TrimSpace(p.Octave))
	if err != nil {
		return 0, false
	}
	alter := 0
	if !math.IsNaN(p.Alter) && !math.IsInf(p.Alter, 0) {
		alter = int(math.Round(p.Alter))
	}
	n := 12*(oct+1) + semi + alter
	if n < 0 || n > 127 {
		return 0, false
	}
	return n, true
}

type rawPitch struct {
	Step   string `xml:"step"`
	Alter  string `xml:"alter"`
	Octave string `xml:"octave"`
}

type rawTie struct {
	Type string `xml:"type,attr"`
}

type rawNote struct {
	Chord    *struct{} `xml:"chord"`
	Rest     *struct{} `xml:"rest"`
	Pitch    *rawPitch `xml:"pitch"`
	Duration string    `xml:"duration"`
	Voice    string    `xml:"voice"`
	Ties     []rawTie  `xml:"tie"`
}

type rawShift struct {
	Duration string `xml:"duration"`
	Voice    string `xml:"voice"`
}

type rawAttributes struct {
	Divisions string `xml:"divisions"`
}

func (m *Measure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "number" {
			m.Number = a.Value
		}
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			ev, keep, err := decodeChild(d, t)
			if err != nil {
				return err
			}
			if keep {
				m.Events = append(m.Events, ev)
			}
		case xml.EndElement:
			return nil
		}
	}
}

func decodeChild(d *xml.Decoder, t xml.StartElement) (Event, bool, error) {
	switch t.Name.Local {
	case "attributes":
		var a rawAttributes
		if err := d.DecodeElement(&a, &t); err != nil {
			return Event{}, false, err
		}
		div := number(a.Divisions)
		if div <= 0 {
			div = 0
		}
		return Event{Kind: KindAttributes, Divisions: div}, true, nil
	case "backup", "forward":
		var s rawShift
		if err := d.DecodeElement(&s, &t); err != nil {
			return Event{}, false, err
		}
		kind := KindBackup
		if t.Name.Local == "forward" {
			kind = KindForward
		}
		return Event{Kind: kind, Duration: nonNegative(number(s.Duration)), Voice: strings.TrimSpace(s.Voice)}, true, nil
	case "note":
		var n rawNote
		if err := d.DecodeElement(&n, &t); err != nil {
			return Event{}, false, err
		}
		return noteEvent(n), true, nil
	}
	return Event{}, false, d.Skip()
}

func noteEvent(n rawNote) Event {
	ev := Event{
		Kind:     KindNote,
		Duration: nonNegative(number(n.Duration)),
		Voice:    strings.TrimSpace(n.Voice),
		Note: Note{
			Rest:  n.Rest != nil,
			Chord: n.Chord != nil,
		},
	}
	if n.Pitch != nil && !ev.Note.Rest {
		ev.Note.Pitch = &Pitch{
			Step:   n.Pitch.Step,
			Alter:  number(n.Pitch.Alter),
			Octave: n.Pitch.Octave,
		}
	}
	for _, tie := range n.Ties {
		switch strings.TrimSpace(tie.Type) {
		case "start":
			ev.Note.TieStart = true
		case "stop":
			ev.Note.TieStop = true
		}
	}
	return ev
}

// number parses a markup numeral; anything unusable reads as 0.
func number(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

// Parse decodes MusicXML markup. A .mxl container must be unpacked with Markup first.
func Parse(markup []byte) (*Document, error) {
	var doc Document
	dec := xml.NewDecoder(bytes.NewReader(markup))
	dec.CharsetReader = CharsetReader
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarkup, err)
	}
	return &doc, nil
}
