package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	OpenAI        OpenAIConfig
	Batch         BatchConfig
	Realtime      RealtimeConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
}

// STTConfig selects the transcription provider and the streaming recognizer settings.
type STTConfig struct {
	Provider       string // mock, openai, google
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string // per-segment calls, must support verbose timing
	FallbackModel   string // single-call transcription
	RealtimeModel   string
	Language        string
}

type BatchConfig struct {
	SegmentSeconds int
	ScratchDir     string
	FFmpegPath     string
	Bitrate        string
	Format         string // mp3, ogg
	MaxUploadBytes int64
}

type RealtimeConfig struct {
	FlushInterval     time.Duration
	AutoClearLive     bool
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
	MaxAudioBytes     int64
	MaxDuration       time.Duration
	// AllowedOrigins lists browser origins allowed on the realtime WebSocket.
	// Empty means same-origin only; "*" allows any origin.
	AllowedOrigins    []string
}

type StorageConfig struct {
	GCSBucket string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from the environment, layered over the file named
// by CONFIG_FILE when set. Unparsable values fall back to defaults.
func Load() *Config {
	s := newSource()

	principal := s.str("SERVICE_PRINCIPAL", "svc-speech-transcribe")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  s.str("HTTP_PORT", "8080"),
			GRPCPort:  s.str("GRPC_PORT", "50051"),
		},
		STT: STTConfig{
			Provider:       s.str("STT_PROVIDER", "mock"),
			LanguageCode:   s.str("STT_LANGUAGE_CODE", "es-ES"),
			SampleRateHz:   s.int("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: s.bool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  s.str("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          s.str("OPENAI_API_KEY", ""),
			BaseURL:         s.str("OPENAI_BASE_URL", "https://api.openai.com/v1/"),
			TranscribeModel: s.str("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
			FallbackModel:   s.str("OPENAI_FALLBACK_MODEL", "gpt-4o-transcribe"),
			RealtimeModel:   s.str("OPENAI_REALTIME_MODEL", "gpt-4o-transcribe"),
			Language:        s.str("OPENAI_LANGUAGE", "es"),
		},
		Batch: BatchConfig{
			SegmentSeconds: s.int("BATCH_SEGMENT_SECONDS", 900),
			ScratchDir:     s.str("BATCH_SCRATCH_DIR", os.TempDir()),
			FFmpegPath:     s.str("BATCH_FFMPEG_PATH", "ffmpeg"),
			Bitrate:        s.str("BATCH_BITRATE", "64k"),
			Format:         s.str("BATCH_FORMAT", "mp3"),
			MaxUploadBytes: s.int64("BATCH_MAX_UPLOAD_BYTES", 512*1024*1024),
		},
		Realtime: RealtimeConfig{
			FlushInterval:     s.duration("REALTIME_FLUSH_INTERVAL", 16*time.Millisecond),
			AutoClearLive:     s.bool("REALTIME_AUTO_CLEAR_LIVE", true),
			VADThreshold:      s.float("REALTIME_VAD_THRESHOLD", 0.45),
			PrefixPaddingMs:   s.int("REALTIME_PREFIX_PADDING_MS", 150),
			SilenceDurationMs: s.int("REALTIME_SILENCE_DURATION_MS", 220),
			MaxAudioBytes:     s.int64("REALTIME_MAX_AUDIO_BYTES", 64*1024*1024),
			MaxDuration:       s.duration("REALTIME_MAX_DURATION", 2*time.Hour),
			AllowedOrigins:    s.list("REALTIME_ALLOWED_ORIGINS", nil),
		},
		Storage: StorageConfig{
			GCSBucket: s.str("STORAGE_GCS_BUCKET", ""),
		},
		Kafka: KafkaConfig{
			Enabled:      s.bool("KAFKA_ENABLED", false),
			Brokers:      s.list("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPartial: s.str("KAFKA_TOPIC_PARTIAL", "transcript.live"),
			TopicFinal:   s.str("KAFKA_TOPIC_FINAL", "transcript.final"),
			Principal:    s.str("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    s.str("LOG_LEVEL", "info"),
			LogFormat:   s.str("LOG_FORMAT", "json"),
			MetricsAddr: s.str("METRICS_ADDR", ":9090"),
		},
	}
}

type source struct {
	v *viper.Viper
}

func newSource() source {
	v := viper.New()
	v.AutomaticEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config file not loaded, using environment only")
		}
	}
	return source{v: v}
}

func (s source) str(key, def string) string {
	if v := strings.TrimSpace(s.v.GetString(key)); v != "" {
		return v
	}
	return def
}

func (s source) int(key string, def int) int {
	if n, err := strconv.Atoi(s.str(key, "")); err == nil {
		return n
	}
	return def
}

func (s source) int64(key string, def int64) int64 {
	if n, err := strconv.ParseInt(s.str(key, ""), 10, 64); err == nil {
		return n
	}
	return def
}

func (s source) float(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(s.str(key, ""), 64); err == nil {
		return f
	}
	return def
}

func (s source) bool(key string, def bool) bool {
	if b, err := strconv.ParseBool(s.str(key, "")); err == nil {
		return b
	}
	return def
}

func (s source) duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s.str(key, "")); err == nil {
		return d
	}
	return def
}

func (s source) list(key string, def []string) []string {
	raw := s.str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
