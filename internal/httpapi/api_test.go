package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-scorelight/internal/audio"
	"github.com/coreman2200/funtimes-scorelight/internal/fetch"
	"github.com/coreman2200/funtimes-scorelight/internal/keyboard"
	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/playback"
	"github.com/coreman2200/funtimes-scorelight/internal/session"
)

const score = `<score-partwise><part id="P1"><measure number="1">
  <attributes><divisions>1</divisions></attributes>
  <direction><sound tempo="84"/></direction>
  <note><pitch><step>C</step><octave>4</octave></pitch><duration>1</duration></note>
  <note><pitch><step>D</step><octave>4</octave></pitch><duration>1</duration></note>
</measure></part></score-partwise>`

type nullSink struct{}

func (nullSink) NoteOn(uint8, uint8) error { return nil }
func (nullSink) NoteOff(uint8) error       { return nil }
func (nullSink) Close() error              { return nil }

type refs map[string]string

func (f refs) Fetch(_ context.Context, ref string) (fetch.Resource, error) {
	if b, ok := f[ref]; ok {
		return fetch.Resource{Name: ref, Data: []byte(b)}, nil
	}
	return fetch.Resource{}, errors.New("not found")
}

func newServer(t *testing.T) (*httptest.Server, *audio.Device) {
	t.Helper()
	dev := audio.NewDevice(func() (audio.Sink, error) { return nullSink{}, nil })
	sch := playback.New(dev, nil, playback.Options{})
	sess := session.New(session.Deps{Fetcher: refs{"a.xml": score}, Scheduler: sch, Audio: dev},
		session.Options{Range: keyrange.DefaultOptions()})
	api := &API{Session: sess, Input: keyboard.NewInput(dev, sess.Keymap, 0)}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, dev
}

func post(t *testing.T, srv *httptest.Server, path, ctype, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, ctype, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var m map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&m)
	return resp, m
}

func TestLoadByRefAndPlay(t *testing.T) {
	srv, _ := newServer(t)

	resp, m := post(t, srv, "/api/play", "application/json", "{}")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, m["error"], "no score")

	resp, m = post(t, srv, "/api/load", "application/json", `{"ref":"a.xml"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sc := m["score"].(map[string]any)
	assert.Equal(t, 84.0, sc["nominal_bpm"])
	assert.Equal(t, "sound", sc["tempo_source"])

	resp, m = post(t, srv, "/api/play", "application/json", "{}")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, []any{"scheduled", "playing"}, m["state"])

	resp, _ = post(t, srv, "/api/play", "application/json", "{}")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, m = post(t, srv, "/api/tempo", "application/json", `{"bpm":132}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 132.0, m["live_bpm"])

	resp, m = post(t, srv, "/api/stop", "application/json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", m["state"])
}

func TestLoadFailures(t *testing.T) {
	srv, _ := newServer(t)
	resp, _ := post(t, srv, "/api/load", "application/json", `{"ref":"missing.xml"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = post(t, srv, "/api/load", "application/json", `{"ref":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, srv, "/api/load", "application/octet-stream", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Get(srv.URL + "/api/diagnostics")
	require.NoError(t, err)
	defer r.Body.Close()
	var d []map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
	require.Len(t, d, 1)
	assert.Equal(t, "LOAD.FAILED", d[0]["code"])
}

func TestUploadTimelineAndExport(t *testing.T) {
	srv, _ := newServer(t)
	resp, _ := post(t, srv, "/api/load?name=up.xml", "application/xml", score)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r, err := http.Get(srv.URL + "/api/timeline")
	require.NoError(t, err)
	var tl struct {
		Events []struct {
			Pitch int     `json:"pitch"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"events"`
		TotalBeats float64 `json:"total_beats"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&tl))
	r.Body.Close()
	require.Len(t, tl.Events, 2)
	assert.Equal(t, 62, tl.Events[1].Pitch)
	assert.Equal(t, 2.0, tl.TotalBeats)

	r, err = http.Get(srv.URL + "/api/export.mid")
	require.NoError(t, err)
	defer r.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r.Body)
	assert.Equal(t, "audio/midi", r.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("MThd")))
}

func TestKeysAndRange(t *testing.T) {
	srv, dev := newServer(t)
	resp, m := post(t, srv, "/api/keys/press", "application/json", `{"index":40}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 64.0, m["pitch"])
	assert.True(t, dev.Sounding(64))

	resp, _ = post(t, srv, "/api/keys/release", "application/json", `{"pitch":64}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, dev.Sounding(64))

	resp, _ = post(t, srv, "/api/keys/press", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, srv, "/api/keys/hold", "application/json", `{"pitch":60}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, m = post(t, srv, "/api/range", "application/json", `{"low":"C2","high":"B5","strict":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	w := m["window"].(map[string]any)
	assert.Equal(t, 36.0, w["low"])
	assert.Equal(t, 83.0, w["high"])

	resp, _ = post(t, srv, "/api/range", "application/json", `{"low":"H2","high":"B5"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/status", nil)
	req.Header.Set("Origin", "http://keys.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
