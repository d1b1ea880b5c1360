package app

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/config"
)

const serviceName = "speech-transcribe-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{Cfg: cfg}
	a.setupLogger()

	a.Logger.Info().
		Str("method", "New").
		Str("sttProvider", cfg.STT.Provider).
		Msg("Speech transcribe application created")
	return a
}

// setupLogger builds the service-tagged logger. ZEROLOG_LOG_LEVEL wins over
// the configured level; ENV=dev switches to console output.
func (a *Application) setupLogger() {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(a.Cfg.Observability.LogLevel)); err == nil && a.Cfg.Observability.LogLevel != "" {
		level = parsed
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			level = parsed
		}
	}

	zerolog.SetGlobalLevel(level)

	base := zerolog.New(os.Stdout)
	if os.Getenv("ENV") == "dev" {
		base = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	a.Logger = base.With().
		Timestamp().
		Str("service", serviceName).
		Str("principal", a.Cfg.Service.Principal).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", level.String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start records the startup time before the servers begin accepting traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Int("segmentSeconds", a.Cfg.Batch.SegmentSeconds).
		Bool("kafkaEnabled", a.Cfg.Kafka.Enabled).
		Msg("Speech transcribe service starting")
	return nil
}

// Uptime reports how long the service has been running.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown logs the final uptime before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().
		Str("method", "Shutdown").
		Dur("uptime", a.Uptime()).
		Msg("Speech transcribe service shutting down")
}
