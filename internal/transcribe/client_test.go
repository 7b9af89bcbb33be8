package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("mp3 bytes"), 0o644))
	return path
}

func TestClientTranscribe(t *testing.T) {
	var gotModel, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
			gotFile = fhs[0].Filename
		}
		w.Write([]byte(`{"text":"recognized speech"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "whisper-1", RequestsPerMinute: 6000})
	text, err := c.Transcribe(context.Background(), writeAudioFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "recognized speech", text)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "clip.mp3", gotFile)
}

func TestClientTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerMinute: 6000})
	_, err := c.Transcribe(context.Background(), writeAudioFixture(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClientTranscribeMissingFile(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost:0", RequestsPerMinute: 6000})
	_, err := c.Transcribe(context.Background(), "/nonexistent/audio.mp3")
	assert.Error(t, err)
}
