package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-scorelight/internal/config"
	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/led"
)

const etude = `<score-partwise><part id="P1"><measure number="1">
  <attributes><divisions>4</divisions></attributes>
  <direction><direction-type><metronome><beat-unit>half</beat-unit><per-minute>40</per-minute></metronome></direction-type></direction>
  <note><pitch><step>A</step><octave>3</octave></pitch><duration>4</duration></note>
  <note><pitch><step>C</step><alter>1</alter><octave>5</octave></pitch><duration>8</duration></note>
</measure></part></score-partwise>`

func TestRangeOptions(t *testing.T) {
	c := config.Default()
	o, err := rangeOptions(c)
	require.NoError(t, err)
	assert.Nil(t, o.Override)
	assert.Equal(t, keyrange.DefaultOptions().MinOctaves, o.MinOctaves)

	c.Range.Low, c.Range.High, c.Range.Strict = "C3", "72", true
	c.Transpose = -2
	o, err = rangeOptions(c)
	require.NoError(t, err)
	assert.Equal(t, &keyrange.Override{Low: 48, High: 72, Strict: true}, o.Override)
	assert.Equal(t, -2, o.Transpose)

	c.Range.High = "Q9"
	_, err = rangeOptions(c)
	assert.Error(t, err)
}

func TestKeyboardLayoutFromConfig(t *testing.T) {
	kb, err := keyboardLayout(config.Default().Lights)
	require.NoError(t, err)
	assert.Equal(t, -3, kb.FirstIndex)
	assert.Equal(t, 88, kb.Count())
}

func TestPlayerFlagsOnlyOverrideWhenSet(t *testing.T) {
	var pf playerFlags
	cmd := &cobra.Command{Use: "x"}
	pf.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--tempo", "90", "--audio", "midi"}))

	c := config.Default()
	c.Loop = true
	pf.apply(cmd, c)
	assert.Equal(t, 90.0, c.TempoOverride)
	assert.Equal(t, "midi", c.Audio.Driver)
	assert.True(t, c.Loop)
}

func TestNewPlayerSim(t *testing.T) {
	p, err := newPlayer(config.Default(), playerOpts{})
	require.NoError(t, err)
	defer p.Close()
	_, ok := p.strip.(*led.Sim)
	assert.True(t, ok)

	sc, err := p.sess.LoadBytes("etude.xml", []byte(etude))
	require.NoError(t, err)
	assert.Equal(t, 80, sc.Nominal)
}

func TestInspectAndExport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "etude.xml")
	require.NoError(t, os.WriteFile(src, []byte(etude), 0644))
	mid := filepath.Join(dir, "etude.mid")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", filepath.Join(dir, "none.yaml"), "inspect", src})
	err := rootCmd.Execute()
	assert.Error(t, err, "an explicit config path must exist")

	conf := filepath.Join(dir, "scorelight.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("default_bpm: 100\n"), 0644))
	out.Reset()
	rootCmd.SetArgs([]string{"--config", conf, "inspect", src})
	require.NoError(t, rootCmd.Execute())
	s := out.String()
	assert.Contains(t, s, "80 BPM (metronome)")
	assert.Contains(t, s, "57..73")
	assert.True(t, strings.Contains(s, "48..83"), s)

	rootCmd.SetArgs([]string{"--config", conf, "export", src, "-o", mid})
	require.NoError(t, rootCmd.Execute())
	b, err := os.ReadFile(mid)
	require.NoError(t, err)
	assert.Equal(t, "MThd", string(b[:4]))
}
