// Package batch implements segmented transcription of long audio files:
// persist, cut into fixed-duration segments, transcribe each one in order,
// merge with nominal offsets.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-transcribe-service/internal/events"
	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/observability/logging"
	"speech-transcribe-service/internal/observability/metrics"
	"speech-transcribe-service/internal/schema"
	"speech-transcribe-service/internal/service/media"
	"speech-transcribe-service/internal/service/stt"
)

var (
	// ErrInvalidSegmentSeconds is returned for a non-positive segment duration.
	ErrInvalidSegmentSeconds = errors.New("segment seconds must be positive")
	// ErrEmptySource is returned when the audio source has no body.
	ErrEmptySource = errors.New("audio source has no body")
)

// Segmenter is the Transcoder Adapter contract.
type Segmenter interface {
	Segment(ctx context.Context, input, outDir string, segmentSeconds int) ([]models.SegmentSpec, error)
}

// Prober measures the decoded duration of a segment file.
type Prober interface {
	Duration(path string) (float64, error)
}

// Config holds orchestrator settings. Prober and Single are optional.
type Config struct {
	Provider   string
	ScratchDir string
	Prober     Prober
	// Single serves TranscribeOnce; the segment client is used when nil.
	Single stt.Transcriber
}

// Orchestrator runs segmented transcriptions. It holds no per-call state,
// so one instance serves concurrent calls.
type Orchestrator struct {
	segmenter Segmenter
	client    stt.Transcriber
	publisher *events.Publisher
	validator *schema.Validator
	metrics   *metrics.Metrics
	cfg       Config
}

// NewOrchestrator wires the orchestrator to its injected collaborators.
func NewOrchestrator(segmenter Segmenter, client stt.Transcriber, publisher *events.Publisher, cfg Config) *Orchestrator {
	if cfg.Single == nil {
		cfg.Single = client
	}
	if publisher == nil {
		publisher = events.New(nil)
	}
	return &Orchestrator{
		segmenter: segmenter,
		client:    client,
		publisher: publisher,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
		cfg:       cfg,
	}
}

// Transcribe splits src into segmentSeconds-long segments, transcribes them in
// index order and merges the results. Any segment failure aborts the whole
// call. Scratch storage is removed on every return path.
func (o *Orchestrator) Transcribe(ctx context.Context, src models.AudioSource, segmentSeconds int) (result *models.FullTranscript, err error) {
	if segmentSeconds <= 0 {
		return nil, ErrInvalidSegmentSeconds
	}
	if src.Body == nil {
		return nil, ErrEmptySource
	}

	jobID := uuid.NewString()
	logger := logging.WithJob(jobID, src.Name)
	start := time.Now()
	o.metrics.RecordJobStart()
	defer func() {
		if r := recover(); r != nil {
			o.metrics.RecordJobEnd("panic", time.Since(start).Seconds())
			logger.Error().Interface("panic", r).Msg("Segmented transcription panicked")
			panic(r)
		}
		o.metrics.RecordJobEnd(failureReason(err), time.Since(start).Seconds())
		if err != nil {
			logger.Error().Err(err).Msg("Segmented transcription failed")
		}
	}()

	scratch, err := NewScratch(o.cfg.ScratchDir)
	if err != nil {
		return nil, err
	}
	defer o.release(scratch, logger)

	input, err := scratch.Persist(src.Body, src.Name)
	if err != nil {
		return nil, err
	}
	outDir, err := scratch.SegmentDir()
	if err != nil {
		return nil, err
	}

	segs, err := o.segmenter.Segment(ctx, input, outDir, segmentSeconds)
	if err != nil {
		var se *media.SegmentationError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &media.SegmentationError{Input: input, Err: err}
	}
	if len(segs) == 0 {
		return nil, &media.SegmentationError{Input: input, Err: media.ErrNoSegments}
	}
	o.metrics.RecordSegments(len(segs))
	logger.Info().Int("segments", len(segs)).Int("segmentSeconds", segmentSeconds).Msg("Audio segmented")

	// the input copy is no longer needed once segments exist
	if err := os.Remove(input); err != nil {
		logger.Debug().Err(err).Msg("Could not remove input copy early")
	}

	// chunks are placed by segment index, not by call order
	chunks := make([]models.TranscriptChunk, len(segs))
	texts := make([]string, len(segs))

	for i, seg := range segs {
		if seg.Index < 0 || seg.Index >= len(segs) {
			return nil, &media.SegmentationError{Input: input, Err: fmt.Errorf("segment %d has index %d", i, seg.Index)}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("transcription cancelled at segment %d: %w", seg.Index, err)
		}

		res, err := o.transcribeSegment(ctx, seg, segmentSeconds, len(segs), jobID)
		if rmErr := os.Remove(seg.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Debug().Err(rmErr).Int("segment", seg.Index).Msg("Could not remove segment file")
		}
		if err != nil {
			return nil, err
		}

		chunks[seg.Index] = models.TranscriptChunk{
			Index:        seg.Index,
			StartSeconds: seg.StartOffsetSeconds,
			EndSeconds:   seg.StartOffsetSeconds + float64(segmentSeconds),
			Text:         chunkText(res),
		}
		texts[seg.Index] = res.Text
	}

	result = &models.FullTranscript{
		FullText: strings.TrimSpace(strings.Join(texts, "\n\n")),
		Chunks:   chunks,
	}
	if err := o.validator.ValidateTranscript(result, segmentSeconds); err != nil {
		return nil, err
	}

	if err := o.publisher.PublishBatch(ctx, models.BatchTranscriptEvent{
		EventType:  models.EventTypeBatch,
		JobID:      jobID,
		SourceName: src.Name,
		FullText:   result.FullText,
		Chunks:     result.Chunks,
		Timestamp:  time.Now().UnixMilli(),
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish batch transcript")
	}

	logger.Info().
		Int("chunks", len(chunks)).
		Dur("elapsed", time.Since(start)).
		Msg("Segmented transcription completed")
	return result, nil
}

func (o *Orchestrator) transcribeSegment(ctx context.Context, seg models.SegmentSpec, segmentSeconds, total int, jobID string) (*stt.Result, error) {
	logger := logging.WithSegment(jobID, seg.Index)
	o.probeDrift(logger, seg.FilePath, segmentSeconds, seg.Index == total-1)

	res, err := o.client.Transcribe(ctx, seg.FilePath)
	if err != nil {
		return nil, segmentError(o.cfg.Provider, seg.Index, err)
	}
	if res == nil {
		res = &stt.Result{}
	}
	logger.Debug().
		Int("chars", len(res.Text)).
		Int("subSegments", len(res.Segments)).
		Msg("Segment transcribed")
	return res, nil
}

// probeDrift logs how far a segment's decoded length is from the nominal
// duration. Offsets stay nominal; this is diagnostic only. The last segment
// is naturally shorter and is not counted.
func (o *Orchestrator) probeDrift(logger zerolog.Logger, path string, segmentSeconds int, last bool) {
	if o.cfg.Prober == nil || !strings.HasSuffix(path, ".mp3") {
		return
	}
	measured, err := o.cfg.Prober.Duration(path)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not probe segment duration")
		return
	}
	drift := measured - float64(segmentSeconds)
	logger.Debug().
		Float64("measuredSeconds", measured).
		Float64("driftSeconds", drift).
		Bool("last", last).
		Msg("Segment duration probed")
	if !last {
		o.metrics.RecordDrift(drift)
	}
}

// TranscribeOnce sends the whole source to the backend in a single call.
func (o *Orchestrator) TranscribeOnce(ctx context.Context, src models.AudioSource) (result *models.SingleTranscript, err error) {
	if src.Body == nil {
		return nil, ErrEmptySource
	}

	jobID := uuid.NewString()
	logger := logging.WithJob(jobID, src.Name)

	scratch, err := NewScratch(o.cfg.ScratchDir)
	if err != nil {
		return nil, err
	}
	defer o.release(scratch, logger)

	input, err := scratch.Persist(src.Body, src.Name)
	if err != nil {
		return nil, err
	}

	res, err := o.cfg.Single.Transcribe(ctx, input)
	if err != nil {
		logger.Error().Err(err).Msg("Single-call transcription failed")
		return nil, segmentError(o.cfg.Provider, -1, err)
	}
	if res == nil {
		return &models.SingleTranscript{}, nil
	}
	return &models.SingleTranscript{Text: strings.TrimSpace(res.Text)}, nil
}

func (o *Orchestrator) release(s *Scratch, logger zerolog.Logger) {
	if err := s.Release(); err != nil {
		o.metrics.RecordCleanupError()
		logger.Error().Err(err).Str("scratch", s.Root()).Msg("Failed to release scratch storage")
		return
	}
	logger.Debug().Str("scratch", s.Root()).Msg("Scratch storage released")
}

// chunkText prefers the space-joined trimmed sub-segment texts, then the
// trimmed top-level text.
func chunkText(res *stt.Result) string {
	if len(res.Segments) > 0 {
		parts := make([]string, 0, len(res.Segments))
		for _, s := range res.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if joined := strings.Join(parts, " "); joined != "" {
			return joined
		}
	}
	return strings.TrimSpace(res.Text)
}

// segmentError turns any backend call failure into a BackendError tagged with the segment.
func segmentError(provider string, index int, err error) error {
	var be *stt.BackendError
	if errors.As(err, &be) {
		tagged := *be
		if tagged.Segment < 0 {
			tagged.Segment = index
		}
		return &tagged
	}
	return &stt.BackendError{Provider: provider, Message: err.Error(), Segment: index}
}

func failureReason(err error) string {
	if err == nil {
		return ""
	}
	var se *media.SegmentationError
	var be *stt.BackendError
	switch {
	case errors.As(err, &se):
		return "segmentation"
	case errors.As(err, &be):
		return "backend"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
