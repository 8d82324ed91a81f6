package led

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Driver abstracts an LED output sink.
type Driver interface {
	// Write pushes an RGB frame to hardware. len(rgb) must be 3*N.
	Write(rgb []byte) error
	// Close releases resources.
	Close() error
}

// Sim keeps the last frame in memory instead of driving hardware.
type Sim struct {
	mu     sync.Mutex
	last   []byte
	writes int
}

func NewSim() *Sim { return &Sim{} }

func (s *Sim) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = append(s.last[:0], rgb...)
	s.writes++
	log.Trace().Int("bytes", len(rgb)).Int("writes", s.writes).Msg("sim frame")
	return nil
}

func (s *Sim) Close() error { return nil }

// Frame returns a copy of the last frame written.
func (s *Sim) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
