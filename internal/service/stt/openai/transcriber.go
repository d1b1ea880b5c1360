package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/observability/metrics"
	"speech-transcribe-service/internal/service/stt"
)

// Transcriber is the Segment Transcription Client backed by the audio transcription endpoint.
type Transcriber struct {
	client   openai.Client
	model    string
	language string
	verbose  bool
	metrics  *metrics.Metrics
}

// NewTranscriber creates a client requesting verbose timing. Use it with a
// model that supports verbose_json (whisper-1).
func NewTranscriber(client openai.Client, model, language string) *Transcriber {
	return &Transcriber{client: client, model: model, language: language, verbose: true, metrics: metrics.DefaultMetrics}
}

// NewPlainTranscriber creates a client that only asks for text, for single-call
// transcription with models that do not offer segment timing.
func NewPlainTranscriber(client openai.Client, model, language string) *Transcriber {
	return &Transcriber{client: client, model: model, language: language, metrics: metrics.DefaultMetrics}
}

type verboseBody struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// Transcribe uploads one audio file and returns its text and sub-segments.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (*stt.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}
	callType := "text"
	if t.verbose {
		callType = "verbose"
		params.ResponseFormat = openai.AudioResponseFormatVerboseJSON
		params.TimestampGranularities = []string{"segment"}
	}

	start := time.Now()
	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	t.metrics.RecordBackendCall(providerName, callType, time.Since(start).Seconds())
	if err != nil {
		be := backendError(err)
		t.metrics.RecordBackendError(providerName, fmt.Sprintf("http_%d", be.Status))
		log.Error().Err(err).Str("model", t.model).Str("file", path).Msg("Transcription request failed")
		return nil, be
	}

	out := &stt.Result{Text: res.Text}
	if !t.verbose {
		return out, nil
	}

	var body verboseBody
	if raw := res.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Could not parse segment timing, using top-level text")
			return out, nil
		}
	}
	if body.Text != "" && out.Text == "" {
		out.Text = body.Text
	}
	for _, s := range body.Segments {
		out.Segments = append(out.Segments, stt.SubSegment{Text: s.Text, Start: s.Start, End: s.End})
	}
	return out, nil
}
