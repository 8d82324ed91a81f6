package led

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// MaxBrightness caps the effective alpha applied to a color.
const MaxBrightness uint8 = 200

const (
	alphaOffset uint8 = 0x18
	redOffset   uint8 = 0x10
	greenOffset uint8 = 0x08
	blueOffset  uint8 = 0x0
)

// Color is a packed 0xAARRGGBB value.
type Color uint32

const (
	Off        Color = 0x00000000
	DefaultLit Color = 0xFF2FA8FF
)

func setChannel(c uint32, n uint8, off uint8) uint32 {
	mask := uint32(0xFF) << off
	return (c &^ mask) | uint32(n)<<off
}

func channel(c uint32, off uint8) uint8 {
	return uint8((c >> off) & 0xFF)
}

func (c Color) R() uint8 { return channel(uint32(c), redOffset) }
func (c Color) G() uint8 { return channel(uint32(c), greenOffset) }
func (c Color) B() uint8 { return channel(uint32(c), blueOffset) }
func (c Color) A() uint8 { return channel(uint32(c), alphaOffset) }

func (c Color) WithA(a uint8) Color { return Color(setChannel(uint32(c), a, alphaOffset)) }

// RGB applies alpha as brightness, capped at MaxBrightness.
func (c Color) RGB() color.NRGBA {
	a := float64(min(c.A(), MaxBrightness)) / 255.0
	return color.NRGBA{
		R: uint8(math.Round(float64(c.R()) * a)),
		G: uint8(math.Round(float64(c.G()) * a)),
		B: uint8(math.Round(float64(c.B()) * a)),
		A: 255,
	}
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R(), c.G(), c.B())
}

// ParseColor accepts "#rrggbb" or "#aarrggbb". Missing alpha means opaque.
func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return Off, fmt.Errorf("led: bad color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Off, fmt.Errorf("led: bad color %q: %w", s, err)
	}
	if len(h) == 6 {
		v |= 0xFF000000
	}
	return Color(v), nil
}

// Scale multiplies brightness by f in [0,1].
func (c Color) Scale(f float64) Color {
	f = math.Max(0, math.Min(1, f))
	return c.WithA(uint8(math.Round(float64(c.A()) * f)))
}

// applyWhiteCap clamps per-LED RGB so r+g+b <= whiteCap*3*255.
func applyWhiteCap(rgb []byte, whiteCap float64) {
	if whiteCap <= 0 || whiteCap >= 1 {
		return
	}
	limit := whiteCap * 3.0 * 255.0
	for i := 0; i+2 < len(rgb); i += 3 {
		s := float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
		if s <= limit {
			continue
		}
		scale := limit / s
		rgb[i] = byte(math.Round(float64(rgb[i]) * scale))
		rgb[i+1] = byte(math.Round(float64(rgb[i+1]) * scale))
		rgb[i+2] = byte(math.Round(float64(rgb[i+2]) * scale))
	}
}
