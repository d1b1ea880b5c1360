package main

import (
	"context"
	"fmt"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/config"
	"speech-transcribe-service/internal/service/stt"
	"speech-transcribe-service/internal/service/stt/google"
	"speech-transcribe-service/internal/service/stt/mock"
	openaistt "speech-transcribe-service/internal/service/stt/openai"
)

// backends groups the provider implementations selected by STT_PROVIDER.
type backends struct {
	segment  stt.Transcriber
	single   stt.Transcriber
	signaler stt.Signaler
	bridge   stt.Bridge
	closers  []func() error
}

func (b *backends) close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Closing STT backend")
		}
	}
}

func newBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	switch cfg.STT.Provider {
	case "mock":
		log.Info().Msg("Using mock STT backends")
		t := mock.NewTranscriber()
		return &backends{
			segment: t,
			single:  t,
			bridge:  mock.NewBridge(nil, 150*time.Millisecond),
		}, nil

	case "openai":
		client := openaistt.NewClient(openaistt.ClientConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			MaxRetries: 2,
		})
		session := openaistt.SessionConfig{
			Model:             cfg.OpenAI.RealtimeModel,
			Language:          cfg.OpenAI.Language,
			VADThreshold:      cfg.Realtime.VADThreshold,
			PrefixPaddingMs:   cfg.Realtime.PrefixPaddingMs,
			SilenceDurationMs: cfg.Realtime.SilenceDurationMs,
		}
		bridge, err := openaistt.NewRealtimeBridge(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, session)
		if err != nil {
			return nil, fmt.Errorf("realtime bridge: %w", err)
		}
		log.Info().
			Str("transcribeModel", cfg.OpenAI.TranscribeModel).
			Str("realtimeModel", cfg.OpenAI.RealtimeModel).
			Msg("Using OpenAI STT backends")
		return &backends{
			segment:  openaistt.NewTranscriber(client, cfg.OpenAI.TranscribeModel, cfg.OpenAI.Language),
			single:   openaistt.NewPlainTranscriber(client, cfg.OpenAI.FallbackModel, cfg.OpenAI.Language),
			signaler: openaistt.NewSignaler(client, session),
			bridge:   bridge,
		}, nil

	case "google":
		client, err := speech.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("speech client: %w", err)
		}
		if cfg.Batch.Format != "ogg" {
			log.Warn().Str("format", cfg.Batch.Format).Msg("Google batch recognition expects BATCH_FORMAT=ogg, overriding")
			cfg.Batch.Format = "ogg"
		}
		gcfg := google.Config{
			LanguageCode:   cfg.STT.LanguageCode,
			SampleRateHz:   cfg.STT.SampleRateHz,
			InterimResults: cfg.STT.InterimResults,
			AudioEncoding:  cfg.STT.AudioEncoding,
		}
		t := google.NewTranscriber(client, gcfg)
		log.Info().Str("language", gcfg.LanguageCode).Msg("Using Google Cloud Speech backends")
		return &backends{
			segment: t,
			single:  t,
			bridge:  google.NewBridge(client, gcfg),
			closers: []func() error{client.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}
