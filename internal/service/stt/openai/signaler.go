package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/service/stt"
)

// SessionConfig describes the transcription session requested from the backend.
type SessionConfig struct {
	Model             string
	Language          string
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type transcriptionSettings struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

func (c SessionConfig) turnDetection() turnDetection {
	return turnDetection{
		Type:              "server_vad",
		Threshold:         c.VADThreshold,
		PrefixPaddingMs:   c.PrefixPaddingMs,
		SilenceDurationMs: c.SilenceDurationMs,
	}
}

// callSession is the session document sent next to the offer.
func (c SessionConfig) callSession() ([]byte, error) {
	type input struct {
		Transcription  transcriptionSettings `json:"transcription"`
		TurnDetection  turnDetection         `json:"turn_detection"`
		NoiseReduction struct {
			Type string `json:"type"`
		} `json:"noise_reduction"`
	}
	doc := struct {
		Type  string `json:"type"`
		Audio struct {
			Input input `json:"input"`
		} `json:"audio"`
	}{Type: "transcription"}
	doc.Audio.Input = input{
		Transcription: transcriptionSettings{Model: c.Model, Language: c.Language},
		TurnDetection: c.turnDetection(),
	}
	doc.Audio.Input.NoiseReduction.Type = "near_field"
	return json.Marshal(doc)
}

// Signaler exchanges browser SDP offers for answers through the realtime calls endpoint.
type Signaler struct {
	client  openai.Client
	session SessionConfig
}

// NewSignaler creates a signaler using the injected client.
func NewSignaler(client openai.Client, session SessionConfig) *Signaler {
	return &Signaler{client: client, session: session}
}

// Exchange posts the offer with the session config and returns the SDP answer.
func (s *Signaler) Exchange(ctx context.Context, offer []byte) ([]byte, error) {
	if len(bytes.TrimSpace(offer)) == 0 {
		return nil, &stt.SignalingError{Status: http.StatusBadRequest, Message: "empty SDP offer"}
	}

	session, err := s.session.callSession()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("sdp", string(offer)); err != nil {
		return nil, err
	}
	if err := mw.WriteField("session", string(session)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp *http.Response
	err = s.client.Post(ctx, "realtime/calls", nil, &resp,
		option.WithRequestBody(mw.FormDataContentType(), bytes.NewReader(buf.Bytes())),
		option.WithMaxRetries(0),
	)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			log.Error().Int("status", apiErr.StatusCode).Msg("Realtime signaling rejected")
			return nil, &stt.SignalingError{Status: apiErr.StatusCode, Message: apiErr.Message}
		}
		return nil, &stt.SignalingError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &stt.SignalingError{Status: resp.StatusCode, Message: err.Error()}
	}
	if strings.TrimSpace(string(answer)) == "" {
		return nil, &stt.SignalingError{Status: resp.StatusCode, Message: "empty SDP answer"}
	}
	return answer, nil
}
