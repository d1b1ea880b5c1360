package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"CONFIG_FILE",
	"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
	"STT_INTERIM_RESULTS", "STT_AUDIO_ENCODING",
	"OPENAI_API_KEY", "OPENAI_TRANSCRIBE_MODEL", "OPENAI_LANGUAGE",
	"BATCH_SEGMENT_SECONDS", "BATCH_FORMAT", "BATCH_BITRATE", "BATCH_MAX_UPLOAD_BYTES",
	"REALTIME_FLUSH_INTERVAL", "REALTIME_AUTO_CLEAR_LIVE", "REALTIME_VAD_THRESHOLD",
	"REALTIME_MAX_DURATION", "REALTIME_ALLOWED_ORIGINS",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
}

func clearEnv() {
	for _, v := range allKeys {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-speech-transcribe" {
		t.Errorf("expected default principal 'svc-speech-transcribe', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default gRPC port '50051', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}

	// STT defaults
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.STT.InterimResults)
	}

	// OpenAI defaults
	if cfg.OpenAI.TranscribeModel != "whisper-1" {
		t.Errorf("expected default transcribe model 'whisper-1', got %s", cfg.OpenAI.TranscribeModel)
	}
	if cfg.OpenAI.Language != "es" {
		t.Errorf("expected default language 'es', got %s", cfg.OpenAI.Language)
	}

	// Batch defaults
	if cfg.Batch.SegmentSeconds != 900 {
		t.Errorf("expected default segment seconds 900, got %d", cfg.Batch.SegmentSeconds)
	}
	if cfg.Batch.Format != "mp3" {
		t.Errorf("expected default format 'mp3', got %s", cfg.Batch.Format)
	}
	if cfg.Batch.MaxUploadBytes != 512*1024*1024 {
		t.Errorf("expected default max upload 512MiB, got %d", cfg.Batch.MaxUploadBytes)
	}

	// Realtime defaults
	if cfg.Realtime.FlushInterval != 16*time.Millisecond {
		t.Errorf("expected default flush interval 16ms, got %v", cfg.Realtime.FlushInterval)
	}
	if !cfg.Realtime.AutoClearLive {
		t.Error("expected auto-clear live text by default")
	}
	if cfg.Realtime.VADThreshold != 0.45 {
		t.Errorf("expected default VAD threshold 0.45, got %v", cfg.Realtime.VADThreshold)
	}
	if cfg.Realtime.SilenceDurationMs != 220 {
		t.Errorf("expected default silence duration 220, got %d", cfg.Realtime.SilenceDurationMs)
	}

	if len(cfg.Realtime.AllowedOrigins) != 0 {
		t.Errorf("expected no extra allowed origins by default, got %v", cfg.Realtime.AllowedOrigins)
	}

	// Kafka defaults
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("expected default brokers [localhost:9092], got %v", cfg.Kafka.Brokers)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("GRPC_PORT", "9999")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("STT_PROVIDER", "openai")
	os.Setenv("STT_SAMPLE_RATE_HZ", "24000")
	os.Setenv("STT_INTERIM_RESULTS", "false")
	os.Setenv("BATCH_SEGMENT_SECONDS", "600")
	os.Setenv("BATCH_FORMAT", "ogg")
	os.Setenv("REALTIME_FLUSH_INTERVAL", "33ms")
	os.Setenv("REALTIME_AUTO_CLEAR_LIVE", "false")
	os.Setenv("REALTIME_VAD_THRESHOLD", "0.6")
	os.Setenv("REALTIME_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	defer clearEnv()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.STT.Provider != "openai" {
		t.Errorf("expected STT provider 'openai', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 24000 {
		t.Errorf("expected sample rate 24000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != false {
		t.Errorf("expected interim results false, got %v", cfg.STT.InterimResults)
	}
	if cfg.Batch.SegmentSeconds != 600 {
		t.Errorf("expected segment seconds 600, got %d", cfg.Batch.SegmentSeconds)
	}
	if cfg.Batch.Format != "ogg" {
		t.Errorf("expected format 'ogg', got %s", cfg.Batch.Format)
	}
	if cfg.Realtime.FlushInterval != 33*time.Millisecond {
		t.Errorf("expected flush interval 33ms, got %v", cfg.Realtime.FlushInterval)
	}
	if cfg.Realtime.AutoClearLive {
		t.Error("expected auto-clear disabled")
	}
	if cfg.Realtime.VADThreshold != 0.6 {
		t.Errorf("expected VAD threshold 0.6, got %v", cfg.Realtime.VADThreshold)
	}
	if len(cfg.Realtime.AllowedOrigins) != 2 || cfg.Realtime.AllowedOrigins[1] != "http://localhost:3000" {
		t.Errorf("unexpected allowed origins %v", cfg.Realtime.AllowedOrigins)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv()
	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("STT_INTERIM_RESULTS", "invalid")
	os.Setenv("BATCH_SEGMENT_SECONDS", "invalid")
	os.Setenv("BATCH_MAX_UPLOAD_BYTES", "invalid")
	os.Setenv("REALTIME_FLUSH_INTERVAL", "invalid")
	os.Setenv("REALTIME_VAD_THRESHOLD", "invalid")
	os.Setenv("REALTIME_MAX_DURATION", "invalid")
	defer clearEnv()

	cfg := Load()

	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.STT.InterimResults)
	}
	if cfg.Batch.SegmentSeconds != 900 {
		t.Errorf("expected default segment seconds on invalid input, got %d", cfg.Batch.SegmentSeconds)
	}
	if cfg.Batch.MaxUploadBytes != 512*1024*1024 {
		t.Errorf("expected default max upload on invalid input, got %d", cfg.Batch.MaxUploadBytes)
	}
	if cfg.Realtime.FlushInterval != 16*time.Millisecond {
		t.Errorf("expected default flush interval on invalid input, got %v", cfg.Realtime.FlushInterval)
	}
	if cfg.Realtime.VADThreshold != 0.45 {
		t.Errorf("expected default VAD threshold on invalid input, got %v", cfg.Realtime.VADThreshold)
	}
	if cfg.Realtime.MaxDuration != 2*time.Hour {
		t.Errorf("expected default max duration on invalid input, got %v", cfg.Realtime.MaxDuration)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	defer clearEnv()

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoad_ConfigFile_EnvOverrides(t *testing.T) {
	clearEnv()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "BATCH_SEGMENT_SECONDS: 300\nSTT_PROVIDER: google\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("CONFIG_FILE", path)
	os.Setenv("STT_PROVIDER", "openai")
	defer clearEnv()

	cfg := Load()

	if cfg.Batch.SegmentSeconds != 300 {
		t.Errorf("expected segment seconds from file (300), got %d", cfg.Batch.SegmentSeconds)
	}
	if cfg.STT.Provider != "openai" {
		t.Errorf("expected env to override file provider, got %s", cfg.STT.Provider)
	}
}

func TestSource_Bool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := newSource().bool(key, tt.def)
			if got != tt.expected {
				t.Errorf("bool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
