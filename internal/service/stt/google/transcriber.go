package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"speech-transcribe-service/internal/observability/metrics"
	"speech-transcribe-service/internal/service/stt"
)

// Transcriber is a Segment Transcription Client using LongRunningRecognize
// with inline audio. Segments must be OGG/Opus at the configured sample rate.
type Transcriber struct {
	client  *speech.Client
	cfg     Config
	metrics *metrics.Metrics
}

// NewTranscriber creates a batch transcriber on an injected client.
func NewTranscriber(client *speech.Client, cfg Config) *Transcriber {
	return &Transcriber{client: client, cfg: cfg, metrics: metrics.DefaultMetrics}
}

// Transcribe recognizes one segment file and returns each result as a sub-segment.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (*stt.Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	start := time.Now()
	op, err := t.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_OGG_OPUS,
			SampleRateHertz:            int32(t.cfg.SampleRateHz),
			LanguageCode:               t.cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return nil, t.fail(err, path)
	}

	resp, err := op.Wait(ctx)
	t.metrics.RecordBackendCall(providerName, "long_running", time.Since(start).Seconds())
	if err != nil {
		return nil, t.fail(err, path)
	}
	return resultFromResponse(resp), nil
}

func (t *Transcriber) fail(err error, path string) error {
	st, _ := status.FromError(err)
	t.metrics.RecordBackendError(providerName, st.Code().String())
	log.Error().Err(err).Str("file", path).Msg("Google recognize failed")
	return stt.NewBackendError(providerName, httpStatus(err), st.Message())
}

// resultFromResponse maps recognition results to sub-segments. Each result
// starts where the previous one ended.
func resultFromResponse(resp *speechpb.LongRunningRecognizeResponse) *stt.Result {
	out := &stt.Result{}
	var texts []string
	prevEnd := 0.0

	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		text := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript())
		end := seconds(r.GetResultEndTime())
		out.Segments = append(out.Segments, stt.SubSegment{Text: text, Start: prevEnd, End: end})
		if text != "" {
			texts = append(texts, text)
		}
		prevEnd = end
	}

	out.Text = strings.Join(texts, " ")
	return out
}

func seconds(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return d.AsDuration().Seconds()
}

// httpStatus maps a gRPC status onto the HTTP status a caller would expect.
func httpStatus(err error) int {
	st, ok := status.FromError(err)
	if !ok {
		return http.StatusBadGateway
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
