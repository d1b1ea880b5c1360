package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"speech-transcribe-service/internal/app"
	"speech-transcribe-service/internal/config"
	"speech-transcribe-service/internal/events"
	httpapi "speech-transcribe-service/internal/http"
	"speech-transcribe-service/internal/observability"
	"speech-transcribe-service/internal/observability/logging"
	"speech-transcribe-service/internal/service/audio"
	"speech-transcribe-service/internal/service/batch"
	"speech-transcribe-service/internal/service/media"
	"speech-transcribe-service/internal/service/realtime"
	"speech-transcribe-service/internal/storage"
)

const healthService = "speech.transcribe.TranscriptionService"

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	application := app.New(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create Kafka publisher with separate topics for live text and finalized transcripts
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	be, err := newBackends(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.STT.Provider).Msg("Failed to initialise STT backends")
	}
	defer be.close()

	segmenter, err := media.NewFFmpeg(cfg.Batch.FFmpegPath, cfg.Batch.Bitrate, cfg.Batch.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid batch transcoder settings")
	}
	orchestrator := batch.NewOrchestrator(segmenter, be.segment, publisher, batch.Config{
		Provider:   cfg.STT.Provider,
		ScratchDir: cfg.Batch.ScratchDir,
		Prober:     media.MP3Prober{},
		Single:     be.single,
	})

	deps := httpapi.Deps{
		Batch:     orchestrator,
		Signaler:  be.signaler,
		Bridge:    be.bridge,
		Publisher: publisher,
		Session: realtime.SessionConfig{
			Provider:      cfg.STT.Provider,
			FlushInterval: cfg.Realtime.FlushInterval,
			AutoClearLive: cfg.Realtime.AutoClearLive,
			Limits: audio.SessionLimits{
				MaxAudioBytes: cfg.Realtime.MaxAudioBytes,
				MaxDuration:   cfg.Realtime.MaxDuration,
			},
		},
		DefaultSegmentSeconds: cfg.Batch.SegmentSeconds,
		MaxUploadBytes:        cfg.Batch.MaxUploadBytes,
		AllowedOrigins:        cfg.Realtime.AllowedOrigins,
	}
	if cfg.Storage.GCSBucket != "" {
		fetcher, err := storage.NewGCSFetcher(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage fetcher")
		}
		defer fetcher.Close()
		deps.Storage = fetcher
	}

	var ready atomic.Bool
	obsServer := observability.NewServer(cfg.Observability.MetricsAddr, ready.Load)
	obsServer.Start()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen for gRPC")
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(application.Logger)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(application.Logger)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Application start failed")
	}
	ready.Store(true)

	<-ctx.Done()

	log.Info().Msg("Shutting down servers")
	ready.Store(false)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown incomplete")
	}
	grpcServer.GracefulStop()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown incomplete")
	}
	application.Shutdown()
}
