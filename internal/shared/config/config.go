package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coach-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string
	DatabaseURL     string
	JWTSecret       string

	ObjectStoreType string
	LocalStoreDir   string
	PublicBaseURL   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	ChatModel            string
	MaxTokens            int
	Temperature          float64
	InterviewTemperature float64
	WhisperModel         string
	TTSModel             string
	TTSVoice             string
	ChatTimeout          time.Duration
	TranscribeTimeout    time.Duration
	SynthesizeTimeout    time.Duration
	RateTableFile        string

	FreeNormalLimit    int
	FreeInterviewLimit int

	RateLimitPerSecond      float64
	RateLimitBurst          int
	VoiceRateLimitPerSecond float64
	VoiceRateLimitBurst     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience; existing env wins.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				telemetry.Warn("config.dotenv_failed", map[string]any{"path": path, "error": err})
			}
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	if env == "production" && dbURL == "" {
		telemetry.Error("config.missing", map[string]any{"key": "DATABASE_URL"})
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,
		JWTSecret:       os.Getenv("JWT_SECRET"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080/static"), "/"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:            getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		MaxTokens:            getEnvInt("OPENAI_MAX_TOKENS", 2000),
		Temperature:          getEnvFloat("OPENAI_TEMPERATURE", 0.7),
		InterviewTemperature: getEnvFloat("INTERVIEW_TEMPERATURE", 0.8),
		WhisperModel:         getEnv("WHISPER_MODEL", "whisper-1"),
		TTSModel:             getEnv("TTS_MODEL", "tts-1"),
		TTSVoice:             getEnv("TTS_VOICE", "alloy"),
		ChatTimeout:          getEnvDuration("CHAT_TIMEOUT", 30*time.Second),
		TranscribeTimeout:    getEnvDuration("TRANSCRIBE_TIMEOUT", 60*time.Second),
		SynthesizeTimeout:    getEnvDuration("SYNTHESIZE_TIMEOUT", 30*time.Second),
		RateTableFile:        getEnv("RATE_TABLE_FILE", ""),

		FreeNormalLimit:    getEnvInt("FREE_NORMAL_CHAT_LIMIT", 10),
		FreeInterviewLimit: getEnvInt("FREE_INTERVIEW_CHAT_LIMIT", 5),

		RateLimitPerSecond:      getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:          getEnvInt("RATE_LIMIT_BURST", 20),
		VoiceRateLimitPerSecond: getEnvFloat("VOICE_RATE_LIMIT_RPS", 0.5),
		VoiceRateLimitBurst:     getEnvInt("VOICE_RATE_LIMIT_BURST", 5),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		telemetry.Warn("config.invalid_int", map[string]any{"key": key, "value": raw})
		return def
	}
	return v
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		telemetry.Warn("config.invalid_float", map[string]any{"key": key, "value": raw})
		return def
	}
	return v
}

// getEnvDuration accepts Go durations ("45s") or bare seconds ("45").
func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		telemetry.Warn("config.invalid_duration", map[string]any{"key": key, "value": raw})
		return def
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

// IsDevLike reports whether env allows in-memory fallbacks.
func IsDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
