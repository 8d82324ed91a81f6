package diagnostics

import (
	"sync"
	"time"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	At             time.Time      `json:"at"`
}

// Log keeps the most recent diagnostics and fans new ones out to
// subscribers.
type Log struct {
	mu   sync.Mutex
	max  int
	list []Diagnostic
	subs map[chan Diagnostic]struct{}
	now  func() time.Time
}

func NewLog(max int) *Log {
	if max <= 0 {
		max = 50
	}
	return &Log{max: max, subs: map[chan Diagnostic]struct{}{}, now: time.Now}
}

func (l *Log) Push(d Diagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.At.IsZero() {
		d.At = l.now()
	}
	l.list = append(l.list, d)
	if len(l.list) > l.max {
		l.list = l.list[len(l.list)-l.max:]
	}
	for ch := range l.subs {
		select {
		case ch <- d:
		default:
			// slow subscriber, drop
		}
	}
}

// Recent returns a copy of the retained diagnostics, oldest first.
func (l *Log) Recent() []Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Diagnostic(nil), l.list...)
}

// Subscribe returns the retained diagnostics and a channel of every later
// one, with no gap or overlap between the two, plus a cancel func.
func (l *Log) Subscribe() ([]Diagnostic, <-chan Diagnostic, func()) {
	ch := make(chan Diagnostic, 16)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	recent := append([]Diagnostic(nil), l.list...)
	l.mu.Unlock()
	return recent, ch, func() {
		l.mu.Lock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
}
