package transport

import (
	"math"
	"sync"
	"time"
)

// Clock tracks the beat position of the running pass for the playhead. It is
// a pure function of wall time and the last Start; nothing is scheduled here.
type Clock struct {
	mu       sync.RWMutex
	playing  bool
	origin   time.Time
	fromBeat float64
	bpm      float64
	total    float64
	loop     bool
	stopped  float64
}

// Start anchors beat fromBeat at origin. Beats before origin read as fromBeat.
func (c *Clock) Start(origin time.Time, fromBeat, bpm, totalBeats float64, loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = bpm > 0
	c.origin = origin
	c.fromBeat = fromBeat
	c.bpm = bpm
	c.total = totalBeats
	c.loop = loop
}

// Stop freezes the position where it is.
func (c *Clock) Stop(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		c.stopped = c.position(now)
	}
	c.playing = false
}

// SetLoop changes wrapping for the running pass.
func (c *Clock) SetLoop(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = loop
}

// Reset returns the clock to beat 0.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing, c.origin, c.fromBeat, c.bpm, c.total, c.loop, c.stopped = false, time.Time{}, 0, 0, 0, false, 0
}

func (c *Clock) Playing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playing
}

// Position is the current beat: fromBeat plus elapsed seconds times bpm/60,
// wrapped by the total when looping and clamped to it otherwise.
func (c *Clock) Position(now time.Time) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.playing {
		return c.stopped
	}
	return c.position(now)
}

func (c *Clock) position(now time.Time) float64 {
	elapsed := now.Sub(c.origin).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	beat := c.fromBeat + elapsed*c.bpm/60
	if c.total <= 0 {
		return beat
	}
	if c.loop {
		return math.Mod(beat, c.total)
	}
	return math.Min(beat, c.total)
}

// Progress is Position as a fraction of the total, 0 when there is nothing loaded.
func (c *Clock) Progress(now time.Time) float64 {
	pos := c.Position(now)
	c.mu.RLock()
	total := c.total
	c.mu.RUnlock()
	if total <= 0 {
		return 0
	}
	return pos / total
}
