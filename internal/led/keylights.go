package led

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-scorelight/internal/layout"
)

// KeyLights renders lit keyboard indices onto an LED strip. It satisfies
// playback.Lighting.
type KeyLights struct {
	mu       sync.Mutex
	drv      Driver
	kb       layout.Keyboard
	color    Color
	whiteCap float64
	lit      map[int]bool
	frame    []byte
	errs     int
}

func NewKeyLights(drv Driver, kb layout.Keyboard, c Color, whiteCap float64) *KeyLights {
	return &KeyLights{
		drv:      drv,
		kb:       kb,
		color:    c,
		whiteCap: whiteCap,
		lit:      map[int]bool{},
		frame:    make([]byte, kb.Count()*3),
	}
}

func (k *KeyLights) Light(indices []int) { k.set(indices, true) }
func (k *KeyLights) Dim(indices []int)   { k.set(indices, false) }

// Clear dims every key, including ones lit outside the current window.
func (k *KeyLights) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lit = map[int]bool{}
	k.flush()
}

func (k *KeyLights) SetColor(c Color) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.color = c
	k.flush()
}

// Lit returns the indices currently lit, unordered.
func (k *KeyLights) Lit() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]int, 0, len(k.lit))
	for i := range k.lit {
		out = append(out, i)
	}
	return out
}

func (k *KeyLights) set(indices []int, on bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	changed := false
	for _, i := range indices {
		if !k.kb.Has(i) || k.lit[i] == on {
			continue
		}
		if on {
			k.lit[i] = true
		} else {
			delete(k.lit, i)
		}
		changed = true
	}
	if changed {
		k.flush()
	}
}

// flush rebuilds the frame and writes it. Caller holds k.mu.
func (k *KeyLights) flush() {
	for i := range k.frame {
		k.frame[i] = 0
	}
	px := k.color.RGB()
	for idx := range k.lit {
		for _, p := range k.kb.Pixels(idx) {
			k.frame[p*3+0] = px.R
			k.frame[p*3+1] = px.G
			k.frame[p*3+2] = px.B
		}
	}
	applyWhiteCap(k.frame, k.whiteCap)
	if k.drv == nil {
		return
	}
	if err := k.drv.Write(k.frame); err != nil {
		k.errs++
		// one line per burst of failures
		if k.errs == 1 || k.errs%100 == 0 {
			log.Warn().Err(err).Int("failures", k.errs).Msg("led write failed")
		}
		return
	}
	k.errs = 0
}
