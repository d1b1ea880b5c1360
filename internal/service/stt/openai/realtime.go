package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/service/stt"
)

const (
	eventBuffer  = 256
	writeTimeout = 5 * time.Second
)

// RealtimeBridge opens server-side transcription sessions over the realtime WebSocket.
// It carries the same delta/completed events a browser receives on its data channel.
type RealtimeBridge struct {
	url     string
	apiKey  string
	session SessionConfig
	dialer  *websocket.Dialer
}

// NewRealtimeBridge derives the WebSocket endpoint from the REST base URL.
func NewRealtimeBridge(baseURL, apiKey string, session SessionConfig) (*RealtimeBridge, error) {
	u, err := RealtimeURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &RealtimeBridge{
		url:     u,
		apiKey:  apiKey,
		session: session,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// RealtimeURL maps https://host/v1/ to wss://host/v1/realtime?intent=transcription.
func RealtimeURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime"
	u.RawQuery = url.Values{"intent": {"transcription"}}.Encode()
	return u.String(), nil
}

// Connect dials the backend and configures the transcription session.
func (b *RealtimeBridge) Connect(ctx context.Context) (stt.Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+b.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := b.dialer.DialContext(ctx, b.url, header)
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &stt.SignalingError{Status: status, Message: err.Error()}
	}

	s := &realtimeStream{
		conn:   conn,
		events: make(chan []byte, eventBuffer),
		done:   make(chan struct{}),
	}

	update := map[string]any{
		"type": "transcription_session.update",
		"session": map[string]any{
			"input_audio_format": "pcm16",
			"input_audio_transcription": transcriptionSettings{
				Model:    b.session.Model,
				Language: b.session.Language,
			},
			"turn_detection": b.session.turnDetection(),
		},
	}
	if err := s.writeJSON(update); err != nil {
		conn.Close()
		return nil, &stt.SignalingError{Status: http.StatusBadGateway, Message: err.Error()}
	}

	go s.readLoop()
	return s, nil
}

type realtimeStream struct {
	conn   *websocket.Conn
	events chan []byte
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *realtimeStream) Events() <-chan []byte {
	return s.events
}

// readLoop forwards every text frame untouched; interpretation is the reconciler's job.
func (s *realtimeStream) readLoop() {
	defer close(s.events)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Realtime socket read ended")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case s.events <- data:
		case <-s.done:
			return
		}
	}
}

// SendAudio appends PCM16 audio to the backend input buffer.
func (s *realtimeStream) SendAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

func (s *realtimeStream) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a close frame and tears the socket down without waiting for the peer.
func (s *realtimeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
