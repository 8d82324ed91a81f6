// Package httpapi is the REST surface of the player.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-scorelight/internal/fetch"
	"github.com/coreman2200/funtimes-scorelight/internal/keyboard"
	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/playback"
	"github.com/coreman2200/funtimes-scorelight/internal/session"
	"github.com/coreman2200/funtimes-scorelight/internal/ws"
)

type API struct {
	Session *session.Session
	Input   *keyboard.Input
	Hub     *ws.Hub
}

// Router mounts the REST routes and, when a hub is set, the websocket feeds.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter().StrictSlash(true)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/load", a.handleLoad).Methods(http.MethodPost)
	api.HandleFunc("/play", a.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/stop", a.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/panic", a.handlePanic).Methods(http.MethodPost)
	api.HandleFunc("/tempo", a.handleTempo).Methods(http.MethodPost)
	api.HandleFunc("/loop", a.handleLoop).Methods(http.MethodPost)
	api.HandleFunc("/transpose", a.handleTranspose).Methods(http.MethodPost)
	api.HandleFunc("/range", a.handleRange).Methods(http.MethodPost)
	api.HandleFunc("/keys/{action:press|release}", a.handleKey).Methods(http.MethodPost)
	api.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/timeline", a.handleTimeline).Methods(http.MethodGet)
	api.HandleFunc("/diagnostics", a.handleDiagnostics).Methods(http.MethodGet)
	api.HandleFunc("/export.mid", a.handleExport).Methods(http.MethodGet)

	if a.Hub != nil {
		r.HandleFunc("/ws/keys", a.Hub.HandleKeysWS)
		r.HandleFunc("/ws/control", a.Hub.HandleControlWS)
		r.HandleFunc("/ws/diag", a.Hub.HandleDiagWS)
		r.HandleFunc("/health", a.Hub.HandleHealth).Methods(http.MethodGet)
	}
	return r
}

// Handler is Router wrapped with permissive CORS for browser keyboards
// served from another origin.
func (a *API) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(a.Router())
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorBody{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrNoScore), errors.Is(err, playback.ErrEmptyTimeline), errors.Is(err, playback.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, playback.ErrInvalidTempo), errors.Is(err, keyboard.ErrBadKey), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadBody = errors.New("bad request body")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

// handleLoad takes {"ref": "..."} or the score bytes themselves.
func (a *API) handleLoad(w http.ResponseWriter, r *http.Request) {
	var (
		sc  *session.Score
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Ref string `json:"ref"`
		}
		if err := decode(r, &body); err != nil {
			writeErr(w, err)
			return
		}
		sc, err = a.Session.Load(r.Context(), body.Ref)
	} else {
		data, rerr := io.ReadAll(io.LimitReader(r.Body, fetch.MaxBytes+1))
		if rerr != nil || len(data) == 0 || len(data) > fetch.MaxBytes {
			writeErr(w, errBadBody)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		sc, err = a.Session.LoadBytes(name, data)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"score": sc, "status": a.Session.Status()})
}

func (a *API) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := a.Session.Play(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	a.Session.Stop()
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handlePanic(w http.ResponseWriter, r *http.Request) {
	a.Session.Panic()
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handleTempo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BPM   float64 `json:"bpm"`
		Reset bool    `json:"reset"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	var err error
	if body.Reset {
		err = a.Session.ResetTempo()
	} else {
		err = a.Session.SetTempo(body.BPM)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handleLoop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	a.Session.SetLoop(body.Enabled)
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handleTranspose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Semitones int `json:"semitones"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	a.Session.SetTranspose(body.Semitones)
	writeJSON(w, http.StatusOK, a.Session.Status())
}

// handleRange takes note names or numbers: {"low":"C3","high":"C6","strict":true}.
// An empty body clears the override.
func (a *API) handleRange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Low      string `json:"low"`
		High     string `json:"high"`
		Strict   bool   `json:"strict"`
		ForceFit bool   `json:"force_fit"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	var o *keyrange.Override
	if body.Low != "" || body.High != "" {
		lo, err := keyrange.ParseNote(body.Low)
		if err != nil {
			writeErr(w, errBadBody)
			return
		}
		hi, err := keyrange.ParseNote(body.High)
		if err != nil {
			writeErr(w, errBadBody)
			return
		}
		o = &keyrange.Override{Low: lo, High: hi, Strict: body.Strict}
	}
	a.Session.SetRange(o, body.ForceFit)
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handleKey(w http.ResponseWriter, r *http.Request) {
	var ref keyboard.KeyRef
	if err := decode(r, &ref); err != nil {
		writeErr(w, err)
		return
	}
	var (
		pitch int
		err   error
	)
	if mux.Vars(r)["action"] == "press" {
		pitch, err = a.Input.Press(ref)
	} else {
		pitch, err = a.Input.Release(ref)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pitch": pitch})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, ok := a.Session.Timeline()
	if !ok {
		writeErr(w, session.ErrNoScore)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (a *API) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.Diagnostics().Recent())
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.Session.Timeline(); !ok {
		writeErr(w, session.ErrNoScore)
		return
	}
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="score.mid"`)
	if err := a.Session.Export(w); err != nil {
		log.Warn().Err(err).Msg("export")
	}
}
