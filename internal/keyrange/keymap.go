package keyrange

import (
	"fmt"
	"strconv"
	"strings"
)

// Keymap translates between sounding pitches and keyboard indices. Transpose
// only moves lights; pitches resolved from an index are the key's own pitch.
type Keymap struct {
	Window    Window `json:"window"`
	Base      int    `json:"base"`
	Transpose int    `json:"transpose"`
}

func NewKeymap(w Window, transpose int) Keymap {
	return Keymap{Window: w, Base: LayoutBase, Transpose: transpose}
}

// Index returns the light index for a sounding pitch and whether that key is
// inside the window.
func (k Keymap) Index(pitch int) (int, bool) {
	shown := pitch + k.Transpose
	return shown - k.Base, k.Window.Contains(shown)
}

// Pitch returns the pitch of the key at index.
func (k Keymap) Pitch(index int) int {
	return k.Base + index
}

// Indices lists every key index of the window, lowest first.
func (k Keymap) Indices() []int {
	out := make([]int, 0, k.Window.Keys())
	for p := k.Window.Low; p <= k.Window.High; p++ {
		out = append(out, p-k.Base)
	}
	return out
}

var noteNames = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// ParseNote reads a MIDI number ("60") or a note name with octave ("C4",
// "F#3", "Bb2"), where C4 is 60.
func ParseNote(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty note")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > maxMIDI {
			return 0, fmt.Errorf("note %d out of range", n)
		}
		return n, nil
	}
	semi, ok := noteNames[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("bad note name %q", s)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			semi++
		} else {
			semi--
		}
		rest = rest[1:]
	}
	oct, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("bad octave in %q", s)
	}
	n := (oct+1)*octave + semi
	if n < 0 || n > maxMIDI {
		return 0, fmt.Errorf("note %q out of range", s)
	}
	return n, nil
}
