// Package session owns the loaded score and couples it to playback: load,
// tempo, range fitting and the transport controls all go through here.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	diag "github.com/coreman2200/funtimes-scorelight/internal/diagnostics"
	"github.com/coreman2200/funtimes-scorelight/internal/fetch"
	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/playback"
	"github.com/coreman2200/funtimes-scorelight/internal/score"
	"github.com/coreman2200/funtimes-scorelight/internal/tempo"
	"github.com/coreman2200/funtimes-scorelight/internal/timeline"
)

var (
	ErrLoad    = errors.New("session: load failed")
	ErrNoScore = errors.New("session: no score loaded")
)

const DefaultBPM = 100

// Score is one successfully loaded score. It is never modified after load.
type Score struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Timeline timeline.Timeline `json:"-"`
	Nominal  int               `json:"nominal_bpm"`
	Detected bool              `json:"tempo_detected"`
	Source   tempo.Source      `json:"tempo_source"`
	LoadedAt time.Time         `json:"loaded_at"`
}

func (s *Score) Playable() bool { return s != nil && !s.Timeline.Empty() }

type Fetcher interface {
	Fetch(ctx context.Context, ref string) (fetch.Resource, error)
}

// Gesture is the audio side a user action wakes up.
type Gesture interface {
	Resume() error
}

type Options struct {
	DefaultBPM    int
	TempoOverride float64
	Range         keyrange.Options
	Autoplay      bool
	// Debounce delays retempo of a running pass while a tempo control is
	// being dragged. Zero applies every change at once.
	Debounce time.Duration
}

type Deps struct {
	Fetcher   Fetcher
	Scheduler *playback.Scheduler
	Audio     Gesture
	Diags     *diag.Log
	// Clear runs on Panic after the scheduler stop, e.g. blanking every LED.
	Clear []func()
}

type Session struct {
	mu    sync.RWMutex
	deps  Deps
	opts  Options
	score *Score
	live  float64

	window keyrange.Window
	roll   keyrange.Window

	debounced func(func())
}

func New(deps Deps, opts Options) *Session {
	if opts.DefaultBPM < 1 {
		opts.DefaultBPM = DefaultBPM
	}
	if deps.Diags == nil {
		deps.Diags = diag.NewLog(0)
	}
	s := &Session{deps: deps, opts: opts}
	s.live = float64(opts.DefaultBPM)
	if opts.TempoOverride > 0 {
		s.live = opts.TempoOverride
	}
	s.window = keyrange.Fit(timeline.Timeline{}, opts.Range)
	if opts.Debounce > 0 {
		s.debounced = debounce.New(opts.Debounce)
	}
	deps.Scheduler.SetKeymap(keyrange.NewKeymap(s.window, opts.Range.Transpose))
	return s
}

// Load fetches ref and installs it. On failure the current score stays.
func (s *Session) Load(ctx context.Context, ref string) (*Score, error) {
	res, err := s.deps.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, s.fail(ref, err)
	}
	return s.LoadBytes(res.Name, res.Data)
}

// LoadBytes installs raw MusicXML or a compressed .mxl container.
func (s *Session) LoadBytes(name string, data []byte) (*Score, error) {
	markup, err := score.Markup(data)
	if err != nil {
		return nil, s.fail(name, err)
	}
	tl, err := timeline.ExtractMarkup(markup)
	if err != nil {
		return nil, s.fail(name, err)
	}
	det := tempo.Detect(markup)

	sc := &Score{
		ID:       uuid.NewString(),
		Name:     name,
		Timeline: tl,
		Nominal:  s.opts.DefaultBPM,
		Detected: det.OK,
		Source:   det.Source,
		LoadedAt: time.Now(),
	}
	if det.OK {
		sc.Nominal = det.BPM
	}

	// The old pass belongs to the old timeline.
	s.deps.Scheduler.Stop()

	s.mu.Lock()
	prev := s.score
	s.score = sc
	s.live = float64(sc.Nominal)
	if s.opts.TempoOverride > 0 {
		s.live = s.opts.TempoOverride
	}
	live := s.live
	s.window = keyrange.Fit(tl, s.opts.Range)
	s.roll = keyrange.FitRoll(tl)
	km := keyrange.NewKeymap(s.window, s.opts.Range.Transpose)
	s.mu.Unlock()

	s.deps.Scheduler.SetKeymap(km)
	_ = s.deps.Scheduler.Retempo(live)

	ev := log.Info().Str("id", sc.ID).Str("name", name).Int("events", len(tl.Events)).
		Float64("beats", tl.TotalBeats).Int("nominal_bpm", sc.Nominal).Str("tempo_source", string(det.Source)).
		Int("low", km.Window.Low).Int("high", km.Window.High)
	if prev != nil {
		ev = ev.Str("replaces", prev.ID)
	}
	ev.Msg("score loaded")

	if !sc.Playable() {
		s.deps.Diags.Push(diag.Diagnostic{
			Severity: diag.Warn,
			Code:     "SCORE.EMPTY",
			Summary:  "Score has no playable notes",
			Detail:   name,
			LikelyCauses: []string{
				"the score only contains rests",
				"pitches are missing a step or octave",
			},
		})
		return sc, nil
	}
	if s.opts.Autoplay {
		if err := s.Play(); err != nil {
			log.Warn().Err(err).Msg("autoplay")
		}
	}
	return sc, nil
}

func (s *Session) fail(ref string, err error) error {
	err = fmt.Errorf("%w: %s: %w", ErrLoad, ref, err)
	log.Error().Err(err).Msg("load")
	s.deps.Diags.Push(diag.Diagnostic{
		Severity: diag.Err,
		Code:     "LOAD.FAILED",
		Summary:  "Could not load score",
		Detail:   err.Error(),
		SuggestedFixes: []string{
			"check the path or URL",
			"make sure the file is MusicXML (.xml, .musicxml) or .mxl",
		},
		Evidence: map[string]any{"ref": ref},
	})
	return err
}

// Play starts a pass of the loaded score at the live tempo. It counts as a
// user gesture for the audio device.
func (s *Session) Play() error {
	s.mu.RLock()
	sc, live := s.score, s.live
	s.mu.RUnlock()
	if sc == nil {
		return ErrNoScore
	}
	if s.deps.Audio != nil {
		if err := s.deps.Audio.Resume(); err != nil {
			log.Warn().Err(err).Msg("audio resume")
		}
	}
	return s.deps.Scheduler.Start(sc.Timeline, live)
}

func (s *Session) Stop() { s.deps.Scheduler.Stop() }

// Panic stops playback and clears every output, in or out of the window.
func (s *Session) Panic() {
	s.deps.Scheduler.Stop()
	for _, c := range s.deps.Clear {
		c()
	}
	log.Info().Msg("panic")
}

// SetTempo sets the live tempo. A running pass is rescheduled, debounced
// when configured.
func (s *Session) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: %v", playback.ErrInvalidTempo, bpm)
	}
	s.mu.Lock()
	s.live = bpm
	s.mu.Unlock()

	apply := func() {
		s.mu.RLock()
		live := s.live
		s.mu.RUnlock()
		if err := s.deps.Scheduler.Retempo(live); err != nil {
			log.Warn().Err(err).Msg("retempo")
		}
	}
	if s.debounced != nil && s.deps.Scheduler.State().Active() {
		s.debounced(apply)
		return nil
	}
	apply()
	return nil
}

// ResetTempo returns the live tempo to the score's nominal tempo.
func (s *Session) ResetTempo() error {
	s.mu.RLock()
	bpm := float64(s.opts.DefaultBPM)
	if s.score != nil {
		bpm = float64(s.score.Nominal)
	}
	s.mu.RUnlock()
	return s.SetTempo(bpm)
}

func (s *Session) SetLoop(on bool) { s.deps.Scheduler.SetLoop(on) }

// SetTranspose moves the lights by n semitones. Sound is unaffected.
func (s *Session) SetTranspose(n int) {
	s.mu.Lock()
	s.opts.Range.Transpose = n
	tl := timeline.Timeline{}
	if s.score != nil {
		tl = s.score.Timeline
	}
	s.window = keyrange.Fit(tl, s.opts.Range)
	km := keyrange.NewKeymap(s.window, n)
	s.mu.Unlock()
	s.deps.Scheduler.SetKeymap(km)
}

// SetRange replaces the range override and refits the window.
func (s *Session) SetRange(o *keyrange.Override, forceFit bool) {
	s.mu.Lock()
	s.opts.Range.Override = o
	s.opts.Range.ForceFit = forceFit
	tl := timeline.Timeline{}
	if s.score != nil {
		tl = s.score.Timeline
	}
	s.window = keyrange.Fit(tl, s.opts.Range)
	km := keyrange.NewKeymap(s.window, s.opts.Range.Transpose)
	s.mu.Unlock()
	s.deps.Scheduler.SetKeymap(km)
}

func (s *Session) Score() *Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.score
}

// Timeline returns the loaded timeline and whether a score is loaded.
func (s *Session) Timeline() (timeline.Timeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.score == nil {
		return timeline.Timeline{}, false
	}
	return s.score.Timeline, true
}

func (s *Session) Keymap() keyrange.Keymap { return s.deps.Scheduler.Keymap() }

func (s *Session) Diagnostics() *diag.Log { return s.deps.Diags }

// Export writes the loaded timeline as a Standard MIDI File at the live tempo.
func (s *Session) Export(w io.Writer) error {
	s.mu.RLock()
	sc, live := s.score, s.live
	s.mu.RUnlock()
	if sc == nil {
		return ErrNoScore
	}
	return timeline.WriteSMF(w, sc.Timeline, live)
}

type Status struct {
	Score       *Score          `json:"score,omitempty"`
	Playable    bool            `json:"playable"`
	State       playback.State  `json:"state"`
	Generation  uint64          `json:"generation"`
	LiveBPM     float64         `json:"live_bpm"`
	Position    float64         `json:"position"`
	Progress    float64         `json:"progress"`
	TotalBeats  float64         `json:"total_beats"`
	Events      int             `json:"events"`
	Loop        bool            `json:"loop"`
	Window      keyrange.Window `json:"window"`
	Roll        keyrange.Window `json:"roll"`
	Transpose   int             `json:"transpose"`
	LeftmostKey int             `json:"leftmost_index"`
}

func (s *Session) Status() Status {
	sch := s.deps.Scheduler
	s.mu.RLock()
	st := Status{
		Score:     s.score,
		Playable:  s.score.Playable(),
		LiveBPM:   s.live,
		Window:    s.window,
		Roll:      s.roll,
		Transpose: s.opts.Range.Transpose,
	}
	if s.score != nil {
		st.TotalBeats = s.score.Timeline.TotalBeats
		st.Events = len(s.score.Timeline.Events)
	}
	s.mu.RUnlock()
	st.State = sch.State()
	st.Generation = sch.Generation()
	st.Position = sch.Position()
	st.Progress = sch.Progress()
	st.Loop = sch.Loop()
	st.LeftmostKey = st.Window.LeftmostIndex(keyrange.LayoutBase)
	return st
}

// Run drives the scheduler until ctx ends, then stops playback.
func (s *Session) Run(ctx context.Context, every time.Duration) {
	s.deps.Scheduler.Run(ctx, every)
	s.deps.Scheduler.Stop()
}
