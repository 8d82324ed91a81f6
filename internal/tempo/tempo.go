package tempo

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/coreman2200/funtimes-scorelight/internal/score"
)

// Source reports which directive produced a tempo.
type Source string

const (
	None      Source = "none"
	Sound     Source = "sound"
	Metronome Source = "metronome"
)

// Result is the outcome of tempo detection. BPM is only meaningful when OK.
type Result struct {
	BPM    int
	OK     bool
	Source Source
}

var beatUnits = map[string]float64{
	"whole":   4,
	"half":    2,
	"quarter": 1,
	"eighth":  0.5,
	"8th":     0.5,
	"16th":    0.25,
	"32nd":    0.125,
	"64th":    0.0625,
}

// BeatUnitQuarters converts a notated beat unit with n dots into quarter notes.
// Unknown units count as a quarter.
func BeatUnitQuarters(unit string, dots int) float64 {
	base, ok := beatUnits[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		base = 1
	}
	factor := 1.0
	for k := 1; k <= dots; k++ {
		factor += math.Pow(0.5, float64(k))
	}
	return base * factor
}

type metronome struct {
	BeatUnits []string   `xml:"beat-unit"`
	Dots      []struct{} `xml:"beat-unit-dot"`
	PerMinute string     `xml:"per-minute"`
}

func (m metronome) bpm() (int, bool) {
	perMinute, err := strconv.ParseFloat(strings.TrimSpace(m.PerMinute), 64)
	if err != nil || math.IsNaN(perMinute) || math.IsInf(perMinute, 0) || perMinute <= 0 {
		return 0, false
	}
	if len(m.BeatUnits) == 0 || strings.TrimSpace(m.BeatUnits[0]) == "" {
		return 0, false
	}
	return atLeastOne(perMinute * BeatUnitQuarters(m.BeatUnits[0], len(m.Dots))), true
}

func atLeastOne(f float64) int {
	n := int(math.Round(f))
	if n < 1 {
		return 1
	}
	return n
}

// Detect finds the nominal tempo of a MusicXML document. The first sound
// element carrying a tempo attribute wins when its value is usable; otherwise
// the first metronome mark inside a direction-type decides. Only those two
// candidates are ever examined.
func Detect(markup []byte) Result {
	dec := xml.NewDecoder(bytes.NewReader(markup))
	dec.Strict = false
	dec.CharsetReader = score.CharsetReader

	var (
		met       *metronome
		soundSeen bool
		parent    []string
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) && met == nil {
				return Result{Source: None}
			}
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sound":
				if soundSeen {
					break
				}
				if v, ok := attr(t, "tempo"); ok {
					soundSeen = true
					f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
					if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0 {
						return Result{BPM: atLeastOne(f), OK: true, Source: Sound}
					}
				}
			case "metronome":
				if met == nil && len(parent) > 0 && parent[len(parent)-1] == "direction-type" {
					var m metronome
					if err := dec.DecodeElement(&m, &t); err != nil {
						return Result{Source: None}
					}
					met = &m
					continue
				}
			}
			parent = append(parent, t.Name.Local)
		case xml.EndElement:
			if len(parent) > 0 {
				parent = parent[:len(parent)-1]
			}
		}
	}
	if met != nil {
		if bpm, ok := met.bpm(); ok {
			return Result{BPM: bpm, OK: true, Source: Metronome}
		}
	}
	return Result{Source: None}
}

func attr(t xml.StartElement, name string) (string, bool) {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
