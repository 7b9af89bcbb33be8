package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUMMARIZE_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "audios", cfg.AudioDir)
	assert.Equal(t, int64(100), cfg.BlobLocalLimitMB)
	assert.Equal(t, int64(2048), cfg.MaxUploadMB)
	assert.Equal(t, 5*time.Minute, cfg.RegistryTTL)

	// Transcription inherits the summarization endpoint when unset.
	assert.Equal(t, cfg.SummarizeURL, cfg.TranscribeURL)
	assert.Equal(t, "sk-test", cfg.TranscribeKey)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("SUMMARIZE_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SUMMARIZE_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("BLOB_LOCAL_LIMIT_MB", "250")
	t.Setenv("TRANSCRIBE_API_URL", "https://stt.example.com/v1")
	t.Setenv("TRANSCRIBE_API_KEY", "sk-stt")
	t.Setenv("REGISTRY_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int64(250), cfg.BlobLocalLimitMB)
	assert.Equal(t, "https://stt.example.com/v1", cfg.TranscribeURL)
	assert.Equal(t, "sk-stt", cfg.TranscribeKey)
	assert.Equal(t, 90*time.Second, cfg.RegistryTTL)
}

func TestLoadBadNumberFallsBack(t *testing.T) {
	t.Setenv("SUMMARIZE_API_KEY", "sk-test")
	t.Setenv("BLOB_LOCAL_LIMIT_MB", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.BlobLocalLimitMB)
}
