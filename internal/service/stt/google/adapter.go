// Package google provides Google Cloud Speech-to-Text backends.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/service/stt"
)

const providerName = "google"

// Config holds streaming recognizer configuration.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the recognizer settings used for PCM16 microphone audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "es-ES",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Bridge implements stt.Bridge with StreamingRecognize.
type Bridge struct {
	client *speech.Client
	cfg    Config
}

// NewBridge creates a streaming bridge on an injected client.
// The client needs GOOGLE_APPLICATION_CREDENTIALS to be set.
func NewBridge(client *speech.Client, cfg Config) *Bridge {
	return &Bridge{client: client, cfg: cfg}
}

// Connect opens a recognize stream and sends the streaming config.
func (b *Bridge) Connect(ctx context.Context) (stt.Stream, error) {
	rc, err := b.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, &stt.SignalingError{Status: httpStatus(err), Message: err.Error()}
	}

	err = rc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(b.cfg.AudioEncoding),
					SampleRateHertz:            int32(b.cfg.SampleRateHz),
					LanguageCode:               b.cfg.LanguageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: b.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return nil, &stt.SignalingError{Status: httpStatus(err), Message: err.Error()}
	}

	return newStream(rc), nil
}

// stream adapts a recognize stream to the realtime event contract:
// interim results become deltas carrying the full text so far, final
// results become completed events.
type stream struct {
	rc     speechpb.Speech_StreamingRecognizeClient
	events chan []byte
	done   chan struct{}

	sendMu    sync.Mutex
	closeOnce sync.Once
	turn      int
}

func newStream(rc speechpb.Speech_StreamingRecognizeClient) *stream {
	s := &stream{rc: rc, events: make(chan []byte, 256), done: make(chan struct{})}
	go s.listen()
	return s
}

func (s *stream) Events() <-chan []byte {
	return s.events
}

func (s *stream) SendAudio(ctx context.Context, audio []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.rc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream. Results still in flight are delivered only
// while the reader keeps draining Events.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.sendMu.Lock()
		err = s.rc.CloseSend()
		s.sendMu.Unlock()
	})
	return err
}

func (s *stream) listen() {
	defer close(s.events)
	for {
		resp, err := s.rc.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("Google recognize stream ended")
			return
		}
		for _, ev := range s.convert(resp) {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *stream) convert(resp *speechpb.StreamingRecognizeResponse) [][]byte {
	var out [][]byte
	var interim []string

	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		text := r.GetAlternatives()[0].GetTranscript()
		if r.GetIsFinal() {
			out = append(out, s.event(stt.EventCompleted, "transcript", strings.TrimSpace(text)))
			s.turn++
			continue
		}
		interim = append(interim, strings.TrimSpace(text))
	}

	if len(interim) > 0 {
		out = append(out, s.event(stt.EventDelta, "delta", strings.Join(interim, " ")))
	}
	return out
}

func (s *stream) event(eventType, field, text string) []byte {
	b, _ := json.Marshal(map[string]string{
		"type":    eventType,
		"item_id": fmt.Sprintf("item_google_%d", s.turn),
		field:     text,
	})
	return b
}
