package audio

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink prints notes instead of sounding them. Used when no MIDI output is
// available or in sim mode.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: log.With().Str("sink", "log").Logger()}
}

func (l *LogSink) NoteOn(pitch, velocity uint8) error {
	l.logger.Debug().Uint8("pitch", pitch).Uint8("velocity", velocity).Msg("note on")
	return nil
}

func (l *LogSink) NoteOff(pitch uint8) error {
	l.logger.Trace().Uint8("pitch", pitch).Msg("note off")
	return nil
}

func (l *LogSink) Close() error { return nil }
