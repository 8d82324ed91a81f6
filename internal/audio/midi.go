package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var ErrNoPort = errors.New("audio: no MIDI output port")

// port is the part of a drivers.Out the sink needs.
type port interface {
	Send(data []byte) error
	Close() error
	String() string
}

// MIDISink writes note on/off to one MIDI output port on one channel.
type MIDISink struct {
	mu      sync.Mutex
	out     port
	channel uint8
}

func newMIDISink(out port, channel uint8) *MIDISink {
	return &MIDISink{out: out, channel: channel & 0x0f}
}

// OpenMIDI opens the output port of drv whose name contains name, or the first
// port when name is empty.
func OpenMIDI(drv drivers.Driver, name string, channel uint8) (*MIDISink, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("audio: list outputs: %w", err)
	}
	var found drivers.Out
	for _, o := range outs {
		if name == "" || strings.Contains(strings.ToLower(o.String()), strings.ToLower(name)) {
			found = o
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w matching %q", ErrNoPort, name)
	}
	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", found.String(), err)
	}
	return newMIDISink(found, channel), nil
}

// OutputNames lists the output ports of drv.
func OutputNames(drv drivers.Driver) ([]string, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(outs))
	for _, o := range outs {
		names = append(names, o.String())
	}
	return names, nil
}

func (m *MIDISink) NoteOn(pitch, velocity uint8) error {
	return m.send(midi.NoteOn(m.channel, pitch, velocity))
}

func (m *MIDISink) NoteOff(pitch uint8) error {
	return m.send(midi.NoteOff(m.channel, pitch))
}

func (m *MIDISink) send(msg midi.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.out.Send(msg); err != nil {
		return fmt.Errorf("audio: send %s to %s: %w", msg.String(), m.out.String(), err)
	}
	return nil
}

func (m *MIDISink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.Close()
}

func (m *MIDISink) String() string { return m.out.String() }
