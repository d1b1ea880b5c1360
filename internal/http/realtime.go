package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"speech-transcribe-service/internal/service/audio"
	"speech-transcribe-service/internal/service/realtime"
)

const maxOfferBytes = 64 << 10

// realtimeSession exchanges a browser SDP offer for the backend's answer.
func (h *handlers) realtimeSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Signaler == nil {
		h.writeError(w, r, errUnavailable)
		return
	}

	offer, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOfferBytes))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(bytes.TrimSpace(offer)) == 0 {
		h.writeError(w, r, badRequest("empty SDP offer"))
		return
	}

	answer, err := h.deps.Signaler.Exchange(r.Context(), offer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(answer)
}

// checkOrigin accepts requests without an Origin header (non-browser clients),
// same-origin requests and the listed origins. "*" accepts everything.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// wsCommand is a text frame sent by the client.
type wsCommand struct {
	Op    string `json:"op"`
	Label string `json:"label,omitempty"`
	On    *bool  `json:"on,omitempty"`
}

// wsMessage is a frame sent to the client.
type wsMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId,omitempty"`
	Delta     *realtime.StateDelta `json:"delta,omitempty"`
	Snapshot  *realtime.Snapshot   `json:"snapshot,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// realtimeWS runs one server-side realtime session per connection. Binary
// frames are PCM16 audio, text frames are commands, and every state change
// is sent back as a delta message.
func (h *handlers) realtimeWS(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bridge == nil {
		h.writeError(w, r, errUnavailable)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	sess := realtime.NewSession(h.deps.Bridge, h.deps.Publisher, h.deps.Session)
	logger := h.logger.With().Str("sessionId", sess.ID()).Logger()
	_ = conn.send(wsMessage{Type: "session", SessionID: sess.ID()})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("Realtime session ended with error")
			_ = conn.send(wsMessage{Type: "error", Error: err.Error()})
			// unblocks the read loop below
			_ = raw.Close()
		}
	}()
	go func() {
		defer wg.Done()
		for d := range sess.Updates() {
			if err := conn.send(wsMessage{Type: "delta", Delta: &d}); err != nil {
				logger.Debug().Err(err).Msg("Dropping delta for closed client")
			}
		}
	}()

	for {
		mt, data, err := raw.ReadMessage()
		if err != nil {
			break
		}
		switch mt {
		case websocket.BinaryMessage:
			if err := sess.SendAudio(ctx, data); err != nil && !errors.Is(err, realtime.ErrNotLive) {
				if errors.Is(err, audio.ErrLimitExceeded) {
					_ = conn.send(wsMessage{Type: "error", Error: err.Error()})
					continue
				}
				logger.Warn().Err(err).Msg("Forwarding audio failed")
			}
		case websocket.TextMessage:
			if msg, ok := h.dispatch(ctx, sess, data); ok {
				_ = conn.send(msg)
			}
		}
	}

	cancel()
	wg.Wait()
	logger.Info().Msg("Realtime WebSocket closed")
}

// dispatch applies one client command. It returns a reply when there is one to send.
func (h *handlers) dispatch(ctx context.Context, sess *realtime.Session, data []byte) (wsMessage, bool) {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return wsMessage{Type: "error", Error: "invalid command"}, true
	}

	var err error
	switch cmd.Op {
	case "start":
		err = sess.Restart(ctx)
	case "pause":
		err = sess.Pause(ctx)
	case "resume":
		err = sess.Resume(ctx)
	case "marker":
		err = sess.AddMarker(ctx, cmd.Label)
	case "stop":
		err = sess.Stop(ctx)
	case "reset":
		err = sess.HardReset(ctx)
	case "autoclear":
		on := cmd.On == nil || *cmd.On
		err = sess.SetAutoClear(ctx, on)
	case "snapshot":
		snap, serr := sess.Snapshot(ctx)
		if serr != nil {
			return wsMessage{Type: "error", Error: serr.Error()}, true
		}
		return wsMessage{Type: "snapshot", Snapshot: &snap}, true
	default:
		return wsMessage{Type: "error", Error: "unknown op " + cmd.Op}, true
	}
	if err != nil {
		return wsMessage{Type: "error", Error: err.Error()}, true
	}
	return wsMessage{}, false
}
