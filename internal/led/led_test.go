package led

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/funtimes-scorelight/internal/layout"
)

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), c.A())
	assert.Equal(t, uint8(0xff), c.R())
	assert.Equal(t, uint8(0x80), c.G())
	assert.Equal(t, uint8(0x00), c.B())
	assert.Equal(t, "#ff8000", c.String())

	c, err = ParseColor("80112233")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A())

	_, err = ParseColor("#12")
	assert.Error(t, err)
	_, err = ParseColor("#gg0000")
	assert.Error(t, err)
}

func TestColorBrightnessCap(t *testing.T) {
	full := Color(0xFFFFFFFF).RGB()
	assert.Equal(t, uint8(200), full.R)
	half := Color(0xFFFFFFFF).Scale(0.5).RGB()
	assert.Equal(t, uint8(128), half.G)
}

func TestWhiteCap(t *testing.T) {
	rgb := []byte{255, 255, 255, 10, 10, 10}
	applyWhiteCap(rgb, 0.5)
	assert.Equal(t, []byte{128, 128, 128, 10, 10, 10}, rgb)

	rgb = []byte{255, 255, 255}
	applyWhiteCap(rgb, 1)
	assert.Equal(t, []byte{255, 255, 255}, rgb)
}

func TestKeyLights(t *testing.T) {
	sim := NewSim()
	kb := layout.Keyboard{FirstIndex: 10, Keys: 3, LEDsPerKey: 2}
	kl := NewKeyLights(sim, kb, Color(0xFF0A141E), 0)

	kl.Light([]int{11, 99})
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 8, 16, 24, 8, 16, 24, 0, 0, 0, 0, 0, 0}, sim.Frame())
	assert.Equal(t, []int{11}, kl.Lit())

	writes := sim.Writes()
	kl.Light([]int{11})
	assert.Equal(t, writes, sim.Writes(), "no change, no frame")

	kl.Dim([]int{11})
	assert.Equal(t, make([]byte, 18), sim.Frame())

	kl.Light([]int{10, 12})
	kl.Clear()
	assert.Empty(t, kl.Lit())
	assert.Equal(t, make([]byte, 18), sim.Frame())
}

func TestByteOrder(t *testing.T) {
	o, err := byteOrder("")
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 1, 2}, o)

	o, err = byteOrder("RGB")
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 0, 2}, o)

	_, err = byteOrder("RGX")
	assert.Error(t, err)
}

func TestStripOverSPIRecorder(t *testing.T) {
	var buf bytes.Buffer
	port := spitest.NewRecordRaw(&buf)
	s, err := NewStrip(port, StripOpts{NumPixels: 2})
	require.NoError(t, err)
	assert.Equal(t, "nrzled{recordraw}", s.String())

	assert.Error(t, s.Write([]byte{1, 2, 3}))
	require.NoError(t, s.Write([]byte{255, 0, 0, 0, 0, 255}))
	assert.NotZero(t, buf.Len())

	require.NoError(t, s.Close())
	assert.Error(t, s.Write([]byte{0, 0, 0, 0, 0, 0}))
	require.NoError(t, s.Close())
}

func TestStripRejectsBadOpts(t *testing.T) {
	port := &spitest.Playback{Playback: conntest.Playback{DontPanic: true}}
	_, err := NewStrip(port, StripOpts{NumPixels: -1})
	assert.Error(t, err)
	_, err = NewStrip(port, StripOpts{NumPixels: 1, ColorOrder: "RG"})
	assert.Error(t, err)
}

func TestScreenStrip(t *testing.T) {
	s := NewScreen(3)
	assert.NotEmpty(t, s.String())
	assert.Error(t, s.Write([]byte{1}))
	require.NoError(t, s.Close())
}
