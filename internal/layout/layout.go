package layout

// Serpentine holds row flip behavior for strips folded back over the keys.
type Serpentine struct {
	XFlipEveryRow bool
}

// Keyboard describes how LEDs sit over a physical keyboard. Keys are
// addressed by keyboard index (index 0 is MIDI 24); FirstIndex is the
// index of the leftmost physical key.
type Keyboard struct {
	FirstIndex int
	Keys       int
	LEDsPerKey int
	Rows       int
	Offset     int // LEDs before the first key (level shifter, spare pixels)
	Reverse    bool
	Order      Serpentine
}

func (k Keyboard) norm() Keyboard {
	if k.LEDsPerKey < 1 {
		k.LEDsPerKey = 1
	}
	if k.Rows < 1 {
		k.Rows = 1
	}
	if k.Keys < 0 {
		k.Keys = 0
	}
	if k.Offset < 0 {
		k.Offset = 0
	}
	return k
}

// Count is the strip length needed for the layout.
func (k Keyboard) Count() int {
	k = k.norm()
	return k.Offset + k.Rows*k.Keys*k.LEDsPerKey
}

// Has reports whether a keyboard index lands on a physical key.
func (k Keyboard) Has(index int) bool {
	x := index - k.FirstIndex
	return x >= 0 && x < k.Keys
}

// Index maps key column x, row y and sub-LED n to a linear LED index.
func (k Keyboard) Index(x, y, n int) int {
	k = k.norm()
	if k.Reverse {
		x = k.Keys - 1 - x
	}
	if y%2 == 1 && k.Order.XFlipEveryRow {
		x = k.Keys - 1 - x
		n = k.LEDsPerKey - 1 - n
	}
	perRow := k.Keys * k.LEDsPerKey
	return k.Offset + y*perRow + x*k.LEDsPerKey + n
}

// Pixels lists every LED that belongs to the key at a keyboard index, or nil
// when the key is not on the strip.
func (k Keyboard) Pixels(index int) []int {
	if !k.Has(index) {
		return nil
	}
	k = k.norm()
	x := index - k.FirstIndex
	out := make([]int, 0, k.Rows*k.LEDsPerKey)
	for y := 0; y < k.Rows; y++ {
		for n := 0; n < k.LEDsPerKey; n++ {
			out = append(out, k.Index(x, y, n))
		}
	}
	return out
}

// Piano88 is a full piano, A0 to C8, one LED per key.
func Piano88() Keyboard {
	return Keyboard{FirstIndex: 21 - 24, Keys: 88, LEDsPerKey: 1, Rows: 1}
}
