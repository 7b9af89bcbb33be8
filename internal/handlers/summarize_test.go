package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"clipdigest/internal/fault"
	"clipdigest/internal/media"
	"clipdigest/internal/pipeline"
	"clipdigest/internal/progress"
	"clipdigest/internal/summarize"
	"clipdigest/internal/transcribe"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	result *pipeline.Result
	err    error

	src  media.Source
	opts pipeline.Options
}

func (f *fakeRunner) Run(ctx context.Context, src media.Source, opts pipeline.Options, tracker *progress.Tracker) (*pipeline.Result, error) {
	f.src = src
	f.opts = opts
	if tracker != nil {
		tracker.Enter(progress.StageMedia)
		if f.err != nil {
			tracker.Fail(f.err)
		} else {
			tracker.Done("Summary ready")
		}
	}
	return f.result, f.err
}

func newContext(t *testing.T, method, target string, body *bytes.Buffer, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestFromURLStreamsProgressAndResult(t *testing.T) {
	runner := &fakeRunner{
		result: &pipeline.Result{
			MediaID:    "media-1",
			Title:      "A Talk",
			Transcript: &transcribe.Transcript{Text: "full transcript"},
			Summary: &summarize.Summary{
				Content: "short summary",
				Meta:    summarize.Meta{WordCount: 2, CompressionRatio: 10},
			},
		},
	}
	h := NewSummarizeHandler(runner, 0)

	body := bytes.NewBufferString(`{"url":"https://example.com/v?x=abc123","max_words":150}`)
	c, rec := newContext(t, http.MethodPost, "/api/summarize", body, echo.MIMEApplicationJSON)

	require.NoError(t, h.FromURL(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, media.SourceRemote, runner.src.Type)
	assert.Equal(t, 150, runner.opts.MaxWords)

	out := rec.Body.String()
	assert.Contains(t, out, "event: progress")
	assert.Contains(t, out, `"status":"done"`)
	assert.Contains(t, out, "event: result")
	assert.Contains(t, out, `"summary":"short summary"`)
}

func TestFromURLRequiresURL(t *testing.T) {
	h := NewSummarizeHandler(&fakeRunner{}, 0)
	body := bytes.NewBufferString(`{}`)
	c, rec := newContext(t, http.MethodPost, "/api/summarize", body, echo.MIMEApplicationJSON)

	require.NoError(t, h.FromURL(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFromURLStreamsErrorEvent(t *testing.T) {
	runner := &fakeRunner{err: fault.New(fault.DownloadFailed, "media", "video unavailable")}
	h := NewSummarizeHandler(runner, 0)

	body := bytes.NewBufferString(`{"url":"https://example.com/v"}`)
	c, rec := newContext(t, http.MethodPost, "/api/summarize", body, echo.MIMEApplicationJSON)

	require.NoError(t, h.FromURL(c))

	out := rec.Body.String()
	assert.Contains(t, out, `"status":"error"`)
	assert.NotContains(t, out, "event: result")
}

func TestFromUploadSpoolsFile(t *testing.T) {
	runner := &fakeRunner{
		result: &pipeline.Result{MediaID: "media-2", Transcript: &transcribe.Transcript{Text: "t"}},
	}
	h := NewSummarizeHandler(runner, 1<<20)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x00\x00\x00\x18ftypmp42 payload"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("transcript_only", "true"))
	require.NoError(t, w.WriteField("max_words", "80"))
	require.NoError(t, w.Close())

	c, rec := newContext(t, http.MethodPost, "/api/summarize/upload", &buf, w.FormDataContentType())
	require.NoError(t, h.FromUpload(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, media.SourceFile, runner.src.Type)
	assert.Equal(t, "clip.mp4", runner.src.Name)
	assert.True(t, runner.opts.TranscriptOnly)
	assert.Equal(t, 80, runner.opts.MaxWords)

	// The spooled temp file is removed after the stream ends.
	_, statErr := os.Stat(runner.src.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFromUploadRejectsOversize(t *testing.T) {
	h := NewSummarizeHandler(&fakeRunner{}, 10)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte(strings.Repeat("x", 64)))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	c, rec := newContext(t, http.MethodPost, "/api/summarize/upload", &buf, w.FormDataContentType())
	require.NoError(t, h.FromUpload(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFromUploadRequiresFile(t *testing.T) {
	h := NewSummarizeHandler(&fakeRunner{}, 0)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("transcript_only", "true"))
	require.NoError(t, w.Close())

	c, rec := newContext(t, http.MethodPost, "/api/summarize/upload", &buf, w.FormDataContentType())
	require.NoError(t, h.FromUpload(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscriptSyncJSON(t *testing.T) {
	runner := &fakeRunner{
		result: &pipeline.Result{MediaID: "media-3", Transcript: &transcribe.Transcript{Text: "spoken words"}},
	}
	h := NewSummarizeHandler(runner, 0)

	body := bytes.NewBufferString(`{"url":"https://example.com/v"}`)
	c, rec := newContext(t, http.MethodPost, "/api/transcript", body, echo.MIMEApplicationJSON)

	require.NoError(t, h.Transcript(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.opts.TranscriptOnly)

	var out summarizeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "spoken words", out.Transcript)
	assert.Empty(t, out.Summary)
}

func TestTranscriptErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", fault.New(fault.BadRequest, "media", "invalid media URL"), http.StatusBadRequest},
		{"unauthorized", fault.New(fault.Unauthorized, "media", "cookies rejected"), http.StatusUnauthorized},
		{"not found", fault.New(fault.NotFound, "media", "gone"), http.StatusNotFound},
		{"processing", fault.New(fault.ProcessingFailed, "transcribing", "decode error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSummarizeHandler(&fakeRunner{err: tt.err}, 0)
			body := bytes.NewBufferString(`{"url":"https://example.com/v"}`)
			c, rec := newContext(t, http.MethodPost, "/api/transcript", body, echo.MIMEApplicationJSON)

			require.NoError(t, h.Transcript(c))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
