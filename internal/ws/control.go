package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-scorelight/internal/keyboard"
)

// controlMsg is one message on /ws/control, e.g.
//
//	{"op":"press","pitch":60}
//	{"op":"release","index":36}
//	{"op":"tempo","bpm":88}
//	{"runTest":"key_sweep"}
type controlMsg struct {
	Op        string  `json:"op"`
	Pitch     *int    `json:"pitch,omitempty"`
	Index     *int    `json:"index,omitempty"`
	BPM       float64 `json:"bpm,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
	Semitones int     `json:"semitones,omitempty"`
	RunTest   string  `json:"runTest,omitempty"`
}

var errUnknownOp = errors.New("ws: unknown control op")

type reply struct {
	OK     bool   `json:"ok"`
	Op     string `json:"op"`
	Error  string `json:"error,omitempty"`
	Status any    `json:"status,omitempty"`
}

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		out := reply{Op: msg.Op, OK: true}
		if err := h.applyControl(msg); err != nil {
			out.OK, out.Error = false, err.Error()
		}
		if h.Session != nil {
			out.Status = h.Session.Status()
		}
		b, _ := json.Marshal(out)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (h *Hub) applyControl(msg controlMsg) error {
	if msg.RunTest != "" {
		h.runTest(msg.RunTest)
		return nil
	}
	ref := keyboard.KeyRef{Pitch: msg.Pitch, Index: msg.Index}
	var err error
	switch msg.Op {
	case "press":
		_, err = h.Input.Press(ref)
	case "release":
		_, err = h.Input.Release(ref)
	case "play":
		err = h.Session.Play()
	case "stop":
		h.Session.Stop()
	case "panic":
		h.Session.Panic()
	case "tempo":
		err = h.Session.SetTempo(msg.BPM)
	case "tempo_reset":
		err = h.Session.ResetTempo()
	case "loop":
		h.Session.SetLoop(msg.Enabled != nil && *msg.Enabled)
	case "transpose":
		h.Session.SetTranspose(msg.Semitones)
	case "status":
	default:
		log.Debug().Str("op", msg.Op).Msg("unknown control op")
		return errUnknownOp
	}
	return err
}
