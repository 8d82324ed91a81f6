package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockPosition(t *testing.T) {
	t0 := time.Unix(1000, 0)
	var c Clock
	assert.Zero(t, c.Position(t0))
	assert.False(t, c.Playing())

	c.Start(t0, 0, 120, 8, false)
	assert.True(t, c.Playing())
	assert.Equal(t, 0.0, c.Position(t0.Add(-time.Second)), "before origin")
	assert.InDelta(t, 2.0, c.Position(t0.Add(time.Second)), 1e-9)
	assert.InDelta(t, 0.25, c.Progress(t0.Add(time.Second)), 1e-9)
	assert.Equal(t, 8.0, c.Position(t0.Add(10*time.Second)), "clamped at the end")

	c.Stop(t0.Add(1500 * time.Millisecond))
	assert.False(t, c.Playing())
	assert.InDelta(t, 3.0, c.Position(t0.Add(time.Hour)), 1e-9)

	c.Reset()
	assert.Zero(t, c.Position(t0))
	assert.False(t, c.Playing())

	c.Start(t0, 0, 60, 4, false)
	assert.InDelta(t, 1.0, c.Position(t0.Add(time.Second)), 1e-9, "usable after reset")
}

func TestClockLoopsAndResumes(t *testing.T) {
	t0 := time.Unix(1000, 0)
	var c Clock
	c.Start(t0, 0, 60, 4, true)
	assert.InDelta(t, 1.0, c.Position(t0.Add(5*time.Second)), 1e-9)

	c.Start(t0, 3, 60, 4, false)
	assert.InDelta(t, 3.5, c.Position(t0.Add(500*time.Millisecond)), 1e-9)
	assert.Zero(t, (&Clock{}).Progress(t0))
}
