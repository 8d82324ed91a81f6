package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scorelight.yaml")
	require.NoError(t, os.WriteFile(p, []byte("default_bpm: 72\nrange:\n  low: C3\n  strict: true\n"), 0644))

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 72, c.DefaultBPM)
	assert.Equal(t, "C3", c.Range.Low)
	assert.True(t, c.Range.Strict)
	assert.Equal(t, 2, c.Range.MinOctaves)
	assert.Equal(t, 0.7, c.Audio.ManualVelocity)
	assert.Equal(t, 30*time.Millisecond, c.Playback.LeadIn())
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.yaml")
	c := Default()
	c.Loop = true
	c.Lights.Driver = "spi"
	require.NoError(t, Save(p, c))
	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"bpm":     "default_bpm: 0\n",
		"channel": "audio:\n  channel: 16\n",
		"driver":  "lights:\n  driver: pwm\n",
		"yaml":    "default_bpm: [\n",
	} {
		p := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		_, err := Load(p)
		assert.Error(t, err, name)
	}
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestDurationsFallBack(t *testing.T) {
	assert.Equal(t, 2*time.Millisecond, Playback{}.Tick())
	assert.Equal(t, 15*time.Second, Fetch{}.Timeout())
}
