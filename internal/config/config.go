package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Provider string

	OpenAIAPIKey    string
	OpenAIModelFast string
	OpenAIModelDeep string

	GeminiAPIKey    string
	GeminiModelFast string
	GeminiModelDeep string

	MaxInFlight int
	MaxAttempts int
	FastTimeout time.Duration
	DeepTimeout time.Duration

	JPEGQuality     int
	CompressWorkers int

	WatchDir  string
	ResultTTL time.Duration
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Fatalf("env %s: not an integer: %q", k, v)
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Fatalf("env %s: not a duration: %q", k, v)
	}
	return def
}

func Load() *Config {
	cfg := &Config{
		Provider: getEnv("ADVISOR_PROVIDER", "openai"),

		OpenAIModelFast: getEnv("OPENAI_MODEL_FAST", "gpt-4o-mini"),
		OpenAIModelDeep: getEnv("OPENAI_MODEL_DEEP", "gpt-4o"),

		GeminiModelFast: getEnv("GEMINI_MODEL_FAST", "gemini-2.5-flash"),
		GeminiModelDeep: getEnv("GEMINI_MODEL_DEEP", "gemini-2.5-pro"),

		MaxInFlight: getEnvInt("ADVISOR_MAX_INFLIGHT", 2),
		MaxAttempts: getEnvInt("ADVISOR_MAX_ATTEMPTS", 3),
		FastTimeout: getEnvDuration("ADVISOR_FAST_TIMEOUT", 20*time.Second),
		DeepTimeout: getEnvDuration("ADVISOR_DEEP_TIMEOUT", 90*time.Second),

		JPEGQuality:     getEnvInt("ADVISOR_JPEG_QUALITY", 85),
		CompressWorkers: getEnvInt("ADVISOR_COMPRESS_WORKERS", 2),

		WatchDir:  getEnv("ADVISOR_WATCH_DIR", "captures"),
		ResultTTL: getEnvDuration("ADVISOR_RESULT_TTL", 30*time.Minute),
	}

	// Only the active provider's key is required.
	switch cfg.Provider {
	case "openai":
		cfg.OpenAIAPIKey = mustEnv("OPENAI_API_KEY")
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	case "gemini":
		cfg.GeminiAPIKey = mustEnv("GEMINI_API_KEY")
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	default:
		log.Fatalf("unknown ADVISOR_PROVIDER %q; use 'openai' or 'gemini'", cfg.Provider)
	}

	return cfg
}
