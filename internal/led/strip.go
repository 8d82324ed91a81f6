package led

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"
)

// RefreshRate is the WS2812 bit rate; the SPI clock runs at three times it
// plus some slack so every NRZ bit is three SPI bits.
const RefreshRate physic.Frequency = 800

func DefaultFreq() physic.Frequency {
	return ((RefreshRate * 3) + 100) * physic.KiloHertz
}

// StripOpts configure a WS2812 strip on an SPI port.
type StripOpts struct {
	Port       string // spireg name, "" for the first port
	NumPixels  int
	Freq       physic.Frequency
	ColorOrder string // byte order the strip expects, "GRB" when empty
}

// pixels is a periph device taking raw RGB pixel streams: nrzled on SPI or
// the ANSI console screen.
type pixels interface {
	io.Writer
	Halt() error
	String() string
}

// Strip drives WS2812 LEDs through periph's nrzled encoder, or prints them
// to the console.
type Strip struct {
	mu     sync.Mutex
	dev    pixels
	closer interface{ Close() error }
	count  int
	order  [3]int
	buf    []byte
}

// OpenStrip initializes the host drivers and opens the named SPI port.
func OpenStrip(o StripOpts) (*Strip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("led: host init: %w", err)
	}
	p, err := spireg.Open(o.Port)
	if err != nil {
		return nil, fmt.Errorf("led: open spi %q: %w", o.Port, err)
	}
	s, err := NewStrip(p, o)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	s.closer = p
	return s, nil
}

// NewStrip wraps an already open SPI port.
func NewStrip(p spi.Port, o StripOpts) (*Strip, error) {
	if o.NumPixels < 0 {
		return nil, fmt.Errorf("led: invalid LED count: %d", o.NumPixels)
	}
	if o.Freq == 0 {
		o.Freq = DefaultFreq()
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: o.NumPixels,
		Channels:  3,
		Freq:      o.Freq,
	})
	if err != nil {
		return nil, fmt.Errorf("led: nrzled: %w", err)
	}
	order, err := byteOrder(o.ColorOrder)
	if err != nil {
		return nil, err
	}
	return &Strip{dev: d, count: o.NumPixels, order: order, buf: make([]byte, o.NumPixels*3)}, nil
}

// NewScreen prints n pixels to the terminal instead of driving hardware.
func NewScreen(n int) *Strip {
	return &Strip{dev: screen.New(n), count: n, order: [3]int{0, 1, 2}, buf: make([]byte, n*3)}
}

// byteOrder maps an order like "GRB" to source offsets in an RGB triplet.
// nrzled already emits GRB, so "GRB" is the identity.
func byteOrder(order string) ([3]int, error) {
	if order == "" {
		order = "GRB"
	}
	if len(order) != 3 {
		return [3]int{}, fmt.Errorf("led: bad color order %q", order)
	}
	pos := map[byte]int{'R': 0, 'G': 1, 'B': 2}
	// nrzled sends byte 1 first, then 0, then 2.
	wire := [3]int{1, 0, 2}
	var out [3]int
	for i := 0; i < 3; i++ {
		src, ok := pos[order[i]]
		if !ok {
			return [3]int{}, fmt.Errorf("led: bad color order %q", order)
		}
		out[wire[i]] = src
	}
	return out, nil
}

func (s *Strip) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("led: strip closed")
	}
	if len(rgb) != s.count*3 {
		return fmt.Errorf("led: rgb length %d does not match count %d", len(rgb), s.count)
	}
	for i := 0; i < s.count; i++ {
		px := rgb[i*3 : i*3+3]
		s.buf[i*3+0] = px[s.order[0]]
		s.buf[i*3+1] = px[s.order[1]]
		s.buf[i*3+2] = px[s.order[2]]
	}
	if _, err := s.dev.Write(s.buf); err != nil {
		return fmt.Errorf("led: write: %w", err)
	}
	return nil
}

func (s *Strip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Halt()
	s.dev = nil
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Strip) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return "nrzled{closed}"
	}
	return s.dev.String()
}
