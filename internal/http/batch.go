package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/service/batch"
	"speech-transcribe-service/internal/service/media"
	"speech-transcribe-service/internal/service/stt"
	"speech-transcribe-service/internal/storage"
)

const uploadMemory = 32 << 20

// requestError is a client mistake answered with 400.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

var errUnavailable = errors.New("feature not configured")

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		reqErr *requestError
		tooBig *http.MaxBytesError
		segErr *media.SegmentationError
		beErr  *stt.BackendError
		sigErr *stt.SignalingError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, batch.ErrInvalidSegmentSeconds),
		errors.Is(err, batch.ErrEmptySource),
		errors.Is(err, storage.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &segErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &beErr), errors.As(err, &sigErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).
		Str("requestId", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// upload reads the multipart "file" field as an AudioSource. The returned
// cleanup closes the part and removes spooled form files.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) (models.AudioSource, func(), error) {
	if h.deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return models.AudioSource{}, nil, err
		}
		return models.AudioSource{}, nil, badRequest("expected a multipart form with a 'file' field")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return models.AudioSource{}, nil, badRequest("missing 'file' field")
	}

	cleanup := func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}
	return models.AudioSource{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, cleanup, nil
}

// segmentSeconds reads an optional positive segment duration, falling back to the default.
func (h *handlers) segmentSeconds(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.deps.DefaultSegmentSeconds, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("segmentSeconds must be a positive integer")
	}
	return n, nil
}

func (h *handlers) transcribeOnce(w http.ResponseWriter, r *http.Request) {
	src, cleanup, err := h.upload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cleanup()

	res, err := h.deps.Batch.TranscribeOnce(r.Context(), src)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) transcribeSegmented(w http.ResponseWriter, r *http.Request) {
	src, cleanup, err := h.upload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cleanup()

	secs, err := h.segmentSeconds(r.FormValue("segmentSeconds"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.deps.Batch.Transcribe(r.Context(), src, secs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type storageRequest struct {
	Bucket         string `json:"bucket"`
	Path           string `json:"path"`
	SegmentSeconds int    `json:"segmentSeconds"`
}

func (h *handlers) transcribeStorage(w http.ResponseWriter, r *http.Request) {
	if h.deps.Storage == nil {
		h.writeError(w, r, errUnavailable)
		return
	}

	var req storageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, r, badRequest("invalid JSON body"))
		return
	}
	secs := req.SegmentSeconds
	if secs == 0 {
		secs = h.deps.DefaultSegmentSeconds
	}
	if secs < 0 {
		h.writeError(w, r, batch.ErrInvalidSegmentSeconds)
		return
	}

	src, closer, err := h.deps.Storage.Open(r.Context(), storage.ObjectRef{Bucket: req.Bucket, Path: req.Path})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closer.Close()

	res, err := h.deps.Batch.Transcribe(r.Context(), src, secs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
