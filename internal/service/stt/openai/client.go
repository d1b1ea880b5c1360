// Package openai implements the STT contracts on top of the OpenAI API:
// verbose per-segment transcription, SDP signaling for browser sessions and a
// realtime WebSocket bridge for server-side sessions.
package openai

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"speech-transcribe-service/internal/service/stt"
)

const providerName = "openai"

// ClientConfig holds what is needed to build the shared API client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// NewClient builds the API client that is injected into every component of this package.
func NewClient(cfg ClientConfig, opts ...option.RequestOption) openai.Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(append(base, opts...)...)
}

// backendError converts an SDK error into the shared taxonomy.
func backendError(err error) *stt.BackendError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return stt.NewBackendError(providerName, apiErr.StatusCode, msg)
	}
	return stt.NewBackendError(providerName, 0, err.Error())
}
