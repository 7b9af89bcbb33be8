package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every tunable the server reads from the environment.
type Config struct {
	Port string

	AudioDir    string
	CookiesDir  string
	CaptionLang string

	BlobDir          string
	BlobLocalLimitMB int64

	MaxUploadMB int64

	TranscribeURL   string
	TranscribeKey   string
	TranscribeModel string
	TranscribeRPM   int

	SummarizeURL   string
	SummarizeKey   string
	SummarizeModel string
	SummarizeRPM   int

	RegistryTTL   time.Duration
	SweepInterval time.Duration
}

// Load reads .env when present, then the process environment, applying
// defaults for anything unset. Only the summarization API key is
// required; transcription falls back to the same endpoint when its own
// settings are empty.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AudioDir:         getEnv("AUDIO_DIR", "audios"),
		CookiesDir:       getEnv("COOKIES_DIR", "credentials"),
		CaptionLang:      getEnv("CAPTION_LANG", "en"),
		BlobDir:          getEnv("BLOB_DIR", "blobs"),
		BlobLocalLimitMB: getEnvInt64("BLOB_LOCAL_LIMIT_MB", 100),
		MaxUploadMB:      getEnvInt64("MAX_UPLOAD_MB", 2048),
		TranscribeURL:    os.Getenv("TRANSCRIBE_API_URL"),
		TranscribeKey:    os.Getenv("TRANSCRIBE_API_KEY"),
		TranscribeModel:  getEnv("TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeRPM:    getEnvInt("TRANSCRIBE_RPM", 30),
		SummarizeURL:     getEnv("SUMMARIZE_API_URL", "https://api.openai.com/v1"),
		SummarizeKey:     os.Getenv("SUMMARIZE_API_KEY"),
		SummarizeModel:   getEnv("SUMMARIZE_MODEL", "gpt-4o-mini"),
		SummarizeRPM:     getEnvInt("SUMMARIZE_RPM", 20),
		RegistryTTL:      getEnvDuration("REGISTRY_TTL", 5*time.Minute),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	if cfg.TranscribeURL == "" {
		cfg.TranscribeURL = cfg.SummarizeURL
	}
	if cfg.TranscribeKey == "" {
		cfg.TranscribeKey = cfg.SummarizeKey
	}

	if cfg.SummarizeKey == "" {
		return nil, fmt.Errorf("SUMMARIZE_API_KEY is not set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
