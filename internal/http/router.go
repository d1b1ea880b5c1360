package http

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-transcribe-service/internal/app"
	"speech-transcribe-service/internal/events"
	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/service/realtime"
	"speech-transcribe-service/internal/service/stt"
	"speech-transcribe-service/internal/storage"
)

// BatchTranscriber runs file transcriptions. Implemented by batch.Orchestrator.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, src models.AudioSource, segmentSeconds int) (*models.FullTranscript, error)
	TranscribeOnce(ctx context.Context, src models.AudioSource) (*models.SingleTranscript, error)
}

// ObjectOpener opens stored audio. Implemented by storage.GCSFetcher.
type ObjectOpener interface {
	Open(ctx context.Context, ref storage.ObjectRef) (models.AudioSource, io.Closer, error)
}

// Deps are the collaborators behind the API. Storage, Signaler and Bridge are
// optional; their routes answer 503 when unset.
type Deps struct {
	Batch                 BatchTranscriber
	Storage               ObjectOpener
	Signaler              stt.Signaler
	Bridge                stt.Bridge
	Publisher             *events.Publisher
	Session               realtime.SessionConfig
	DefaultSegmentSeconds int
	MaxUploadBytes        int64
	// AllowedOrigins gates browser origins on the realtime WebSocket.
	AllowedOrigins        []string
}

type handlers struct {
	deps     Deps
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, deps Deps) http.Handler {
	if deps.DefaultSegmentSeconds <= 0 {
		deps.DefaultSegmentSeconds = 900
	}
	h := &handlers{
		deps:     deps,
		logger:   application.Logger.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin(deps.AllowedOrigins)},
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/transcribe", h.transcribeOnce)
		r.Post("/transcribe/segmented", h.transcribeSegmented)
		r.Post("/transcribe/storage", h.transcribeStorage)

		r.Post("/realtime/session", h.realtimeSession)
		r.Get("/realtime/ws", h.realtimeWS)
	})

	return r
}
