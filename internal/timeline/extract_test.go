package timeline

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"
)

func note(step string, octave, dur int, extra ...string) string {
	return fmt.Sprintf(`<note><pitch><step>%s</step><octave>%d</octave></pitch><duration>%d</duration>%s</note>`,
		step, octave, dur, strings.Join(extra, ""))
}

func rest(dur int, extra ...string) string {
	return fmt.Sprintf(`<note><rest/><duration>%d</duration>%s</note>`, dur, strings.Join(extra, ""))
}

func voice(v string) string { return "<voice>" + v + "</voice>" }

const (
	chord     = "<chord/>"
	tieStart  = `<tie type="start"/>`
	tieStop   = `<tie type="stop"/>`
	divisions = `<attributes><divisions>%d</divisions></attributes>`
)

func part(id string, measures ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<part id="%s">`, id)
	for i, m := range measures {
		fmt.Fprintf(&b, `<measure number="%d">%s</measure>`, i+1, m)
	}
	b.WriteString(`</part>`)
	return b.String()
}

func doc(parts ...string) []byte {
	return []byte(`<?xml version="1.0"?><score-partwise version="3.1">` + strings.Join(parts, "") + `</score-partwise>`)
}

func extract(t *testing.T, markup []byte) Timeline {
	t.Helper()
	tl, err := ExtractMarkup(markup)
	require.NoError(t, err)
	return tl
}

func TestExtractSequentialNotes(t *testing.T) {
	tl := extract(t, doc(part("P1",
		fmt.Sprintf(divisions, 2)+note("C", 4, 2)+note("D", 4, 1)+note("E", 4, 1),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 60, Start: 0, End: 1},
		{Pitch: 62, Start: 1, End: 1.5},
		{Pitch: 64, Start: 1.5, End: 2},
	}, tl.Events)
	assert.Equal(t, 2.0, tl.TotalBeats)
}

func TestExtractSingleQuarter(t *testing.T) {
	tl := extract(t, doc(part("P1", fmt.Sprintf(divisions, 1)+note("C", 4, 1))))
	assert.Equal(t, []NoteEvent{{Pitch: 60, Start: 0, End: 1}}, tl.Events)
	assert.Equal(t, 1.0, tl.TotalBeats)
}

func TestExtractIsRepeatable(t *testing.T) {
	markup := doc(
		part("P1", note("C", 4, 2)+note("E", 4, 2, chord)+rest(1)+note("G", 4, 1)),
		part("P2", note("C", 3, 4)),
	)
	assert.Equal(t, extract(t, markup), extract(t, markup))
}

func TestExtractDefaultsDivisionsToOne(t *testing.T) {
	tl := extract(t, doc(part("P1", note("A", 4, 3))))
	assert.Equal(t, []NoteEvent{{Pitch: 69, Start: 0, End: 3}}, tl.Events)
}

func TestExtractChordSharesStart(t *testing.T) {
	tl := extract(t, doc(part("P1",
		note("C", 4, 4)+note("E", 4, 4, chord)+note("G", 4, 2, chord)+note("C", 5, 1),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 60, Start: 0, End: 4},
		{Pitch: 64, Start: 0, End: 4},
		{Pitch: 67, Start: 0, End: 2},
		{Pitch: 72, Start: 4, End: 5},
	}, tl.Events)
}

func TestExtractChordAfterCursorMoved(t *testing.T) {
	tl := extract(t, doc(part("P1",
		note("C", 4, 2)+note("E", 4, 1)+note("G", 4, 1, chord)+note("C", 5, 3, chord)+note("D", 5, 1),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 60, Start: 0, End: 2},
		{Pitch: 64, Start: 2, End: 3},
		{Pitch: 67, Start: 2, End: 3},
		{Pitch: 72, Start: 2, End: 5},
		{Pitch: 74, Start: 3, End: 4},
	}, tl.Events)
	assert.Equal(t, 5.0, tl.TotalBeats)
}

func TestExtractChordWithoutDurationIsDropped(t *testing.T) {
	tl := extract(t, doc(part("P1",
		note("C", 4, 2)+`<note><chord/><pitch><step>E</step><octave>4</octave></pitch></note>`,
	)))
	assert.Equal(t, []NoteEvent{{Pitch: 60, Start: 0, End: 2}}, tl.Events)
}

func TestExtractTies(t *testing.T) {
	t.Run("pair merges", func(t *testing.T) {
		tl := extract(t, doc(part("P1",
			note("C", 4, 2, tieStart),
			note("C", 4, 2, tieStop)+note("D", 4, 2),
		)))
		assert.Equal(t, []NoteEvent{
			{Pitch: 60, Start: 0, End: 4},
			{Pitch: 62, Start: 4, End: 6},
		}, tl.Events)
	})

	t.Run("chain stays open through middle note", func(t *testing.T) {
		tl := extract(t, doc(part("P1",
			note("G", 3, 1, tieStart)+note("G", 3, 1, tieStop, tieStart)+note("G", 3, 1, tieStop),
		)))
		assert.Equal(t, []NoteEvent{{Pitch: 55, Start: 0, End: 3}}, tl.Events)
	})

	t.Run("stop without start is a new note", func(t *testing.T) {
		tl := extract(t, doc(part("P1", note("F", 4, 1, tieStop)+note("F", 4, 1, tieStop))))
		assert.Equal(t, []NoteEvent{
			{Pitch: 65, Start: 0, End: 1},
			{Pitch: 65, Start: 1, End: 2},
		}, tl.Events)
	})

	t.Run("ties are keyed by voice", func(t *testing.T) {
		tl := extract(t, doc(part("P1",
			note("C", 4, 2, voice("1"), tieStart)+`<backup><duration>2</duration></backup>`+note("C", 4, 2, voice("2"), tieStop),
		)))
		assert.Equal(t, []NoteEvent{
			{Pitch: 60, Start: 0, End: 2},
			{Pitch: 60, Start: 0, End: 2},
		}, tl.Events)
	})
}

func TestExtractVoicesAndBackup(t *testing.T) {
	m1 := note("C", 5, 4, voice("1")) +
		`<backup><duration>4</duration></backup>` +
		note("E", 3, 2, voice("2")) + note("G", 3, 2, voice("2"))
	m2 := note("D", 5, 4, voice("1")) +
		`<backup><duration>4</duration></backup>` +
		note("F", 3, 4, voice("2"))

	tl := extract(t, doc(part("P1", m1, m2)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 72, Start: 0, End: 4},
		{Pitch: 52, Start: 0, End: 2},
		{Pitch: 55, Start: 2, End: 4},
		{Pitch: 74, Start: 4, End: 8},
		{Pitch: 53, Start: 4, End: 8},
	}, tl.Events)
	assert.Equal(t, 8.0, tl.TotalBeats)
}

func TestExtractBackupInSingleVoice(t *testing.T) {
	tl := extract(t, doc(part("P1",
		note("C", 5, 4)+`<backup><duration>4</duration></backup>`+note("C", 3, 4)+note("D", 3, 1),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 72, Start: 0, End: 4},
		{Pitch: 48, Start: 0, End: 4},
		{Pitch: 50, Start: 4, End: 5},
	}, tl.Events)
}

func TestExtractBackupFloorsAtZero(t *testing.T) {
	tl := extract(t, doc(part("P1",
		note("C", 4, 1)+`<backup><duration>8</duration></backup>`+note("D", 4, 1),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 60, Start: 0, End: 1},
		{Pitch: 62, Start: 0, End: 1},
	}, tl.Events)
}

func TestExtractForward(t *testing.T) {
	tl := extract(t, doc(part("P1",
		`<forward><duration>2</duration><voice>2</voice></forward>`+note("B", 3, 1, voice("2"))+note("C", 4, 1, voice("2")),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 59, Start: 2, End: 3},
		{Pitch: 60, Start: 3, End: 4},
	}, tl.Events)
}

func TestExtractDivisionsChangeBetweenMeasures(t *testing.T) {
	tl := extract(t, doc(part("P1",
		fmt.Sprintf(divisions, 1)+note("C", 4, 1),
		fmt.Sprintf(divisions, 4)+note("D", 4, 2)+`<attributes><divisions>0</divisions></attributes>`+note("E", 4, 2),
	)))
	assert.Equal(t, []NoteEvent{
		{Pitch: 60, Start: 0, End: 1},
		{Pitch: 62, Start: 1, End: 1.5},
		{Pitch: 64, Start: 1.5, End: 2},
	}, tl.Events)
}

func TestExtractRestsAndBadPitchesAdvance(t *testing.T) {
	bad := `<note><pitch><step>X</step><octave>4</octave></pitch><duration>1</duration></note>`
	tl := extract(t, doc(part("P1",
		rest(4),
		bad+note("C", 4, 1),
	)))
	assert.Equal(t, []NoteEvent{{Pitch: 60, Start: 5, End: 6}}, tl.Events)
	assert.Equal(t, 6.0, tl.TotalBeats)
}

func TestExtractRestOnlyScoreIsEmpty(t *testing.T) {
	tl := extract(t, doc(part("P1", rest(4), rest(4))))
	assert.True(t, tl.Empty())
	assert.Zero(t, tl.TotalBeats)
}

func TestExtractMergesPartsStable(t *testing.T) {
	tl := extract(t, doc(
		part("P1", note("C", 4, 2, tieStart)+note("E", 4, 2)),
		part("P2", note("C", 4, 1, tieStop)+note("G", 3, 1)),
	))
	assert.Equal(t, []NoteEvent{
		{Pitch: 60, Start: 0, End: 2},
		{Pitch: 60, Start: 0, End: 1},
		{Pitch: 55, Start: 1, End: 2},
		{Pitch: 64, Start: 2, End: 4},
	}, tl.Events)
	assert.Equal(t, 4.0, tl.TotalBeats)
}

func TestExtractEmptyDocument(t *testing.T) {
	tl := extract(t, doc())
	assert.True(t, tl.Empty())
	assert.Zero(t, tl.TotalBeats)

	_, err := ExtractMarkup([]byte("<score-partwise><part>"))
	assert.Error(t, err)
}

func TestTimelineHelpers(t *testing.T) {
	tl := Timeline{
		Events: []NoteEvent{
			{Pitch: 60, Start: 0, End: 2},
			{Pitch: 48, Start: 1, End: 4},
			{Pitch: 72, Start: 3, End: 4},
		},
		TotalBeats: 4,
	}
	lo, hi, ok := tl.PitchRange()
	require.True(t, ok)
	assert.Equal(t, 48, lo)
	assert.Equal(t, 72, hi)

	assert.Equal(t, 2.0, tl.Seconds(120))
	assert.Equal(t, 0.0, tl.Seconds(0))
	assert.Equal(t, int64(500), BeatDuration(1, 120).Milliseconds())

	assert.Equal(t, []NoteEvent{
		{Pitch: 48, Start: 2, End: 4},
		{Pitch: 72, Start: 3, End: 4},
	}, tl.From(2))
	assert.Equal(t, tl.Events, tl.From(0))

	_, _, ok = Timeline{}.PitchRange()
	assert.False(t, ok)
}

func TestWriteSMF(t *testing.T) {
	tl := Timeline{
		Events: []NoteEvent{
			{Pitch: 60, Start: 0, End: 1},
			{Pitch: 60, Start: 1, End: 2},
			{Pitch: 64, Start: 0.5, End: 2},
		},
		TotalBeats: 2,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSMF(&buf, tl, 90))

	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, s.Tracks, 2)

	var ons, offs int
	var ch, key, vel uint8
	for _, ev := range s.Tracks[1] {
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			ons++
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			offs++
		}
	}
	assert.Equal(t, 3, ons)
	assert.Equal(t, 3, offs)

	assert.Error(t, WriteSMF(&buf, tl, 0))
}
