package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"clipdigest/internal/fault"
	"clipdigest/internal/media"
	"clipdigest/internal/pipeline"
	"clipdigest/internal/progress"

	"github.com/labstack/echo/v4"
)

// Runner is the pipeline entrypoint the handler drives.
type Runner interface {
	Run(ctx context.Context, src media.Source, opts pipeline.Options, tracker *progress.Tracker) (*pipeline.Result, error)
}

// SummarizeHandler serves the summarization API.
type SummarizeHandler struct {
	runner         Runner
	maxUploadBytes int64
}

// NewSummarizeHandler creates a new SummarizeHandler.
func NewSummarizeHandler(runner Runner, maxUploadBytes int64) *SummarizeHandler {
	return &SummarizeHandler{runner: runner, maxUploadBytes: maxUploadBytes}
}

type summarizeRequest struct {
	URL              string `json:"url"`
	MaxWords         int    `json:"max_words"`
	AdditionalPrompt string `json:"additional_prompt"`
	TranscriptOnly   bool   `json:"transcript_only"`
}

type summarizeResult struct {
	MediaID    string  `json:"media_id"`
	Title      string  `json:"title,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	WordCount  int     `json:"word_count,omitempty"`
	Ratio      float64 `json:"compression_ratio,omitempty"`
}

// FromURL handles summarization of a remote video.
// POST /api/summarize
func (h *SummarizeHandler) FromURL(c echo.Context) error {
	var req summarizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	src := media.Source{Type: media.SourceRemote, URL: req.URL}
	return h.stream(c, src, pipeline.Options{
		TranscriptOnly:   req.TranscriptOnly,
		MaxWords:         req.MaxWords,
		AdditionalPrompt: req.AdditionalPrompt,
	}, nil)
}

// FromUpload handles summarization of an uploaded video file.
// POST /api/summarize/upload
func (h *SummarizeHandler) FromUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxUploadBytes),
		})
	}

	opts := pipeline.Options{
		TranscriptOnly:   c.FormValue("transcript_only") == "true",
		AdditionalPrompt: c.FormValue("additional_prompt"),
	}
	if v := c.FormValue("max_words"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxWords = n
		}
	}

	// Spool the upload to a temp file so the pipeline can reopen and
	// size-check it without holding the payload in memory.
	tmpPath, err := spoolUpload(fh)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
	}

	src := media.Source{
		Type: media.SourceFile,
		Path: tmpPath,
		Name: fh.Filename,
		Size: fh.Size,
	}
	return h.stream(c, src, opts, func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("upload spool cleanup failed", "path", tmpPath, "error", err)
		}
	})
}

// Transcript handles transcript extraction without summarization,
// returning plain JSON instead of an event stream.
// POST /api/transcript
func (h *SummarizeHandler) Transcript(c echo.Context) error {
	var req summarizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	src := media.Source{Type: media.SourceRemote, URL: req.URL}
	result, err := h.runner.Run(c.Request().Context(), src, pipeline.Options{TranscriptOnly: true}, nil)
	if err != nil {
		slog.Error("transcription failed", "url", req.URL, "error", err)
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, buildResult(result))
}

// stream runs the pipeline and relays progress as server-sent events.
// The final event carries the result. A client disconnect cancels the
// run through the request context.
func (h *SummarizeHandler) stream(c echo.Context, src media.Source, opts pipeline.Options, cleanup func()) error {
	if cleanup != nil {
		defer cleanup()
	}

	ctx := c.Request().Context()
	tracker := progress.NewTracker(64)

	type outcome struct {
		result *pipeline.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.runner.Run(ctx, src, opts, tracker)
		done <- outcome{result: result, err: err}
	}()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	for ev := range tracker.Events() {
		if err := writeSSE(res, "progress", ev); err != nil {
			// Client is gone; the context cancellation stops the run.
			<-done
			return nil
		}
	}

	out := <-done
	if out.err != nil {
		slog.Error("summarization failed", "source", string(src.Type), "error", out.err)
		return nil
	}
	return writeSSE(res, "result", buildResult(out.result))
}

func buildResult(r *pipeline.Result) summarizeResult {
	out := summarizeResult{MediaID: r.MediaID, Title: r.Title}
	if r.Transcript != nil {
		out.Transcript = r.Transcript.Text
	}
	if r.Summary != nil {
		out.Summary = r.Summary.Content
		out.WordCount = r.Summary.Meta.WordCount
		out.Ratio = r.Summary.Meta.CompressionRatio
	}
	return out
}

func writeSSE(res *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func spoolUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// statusFor maps pipeline error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.BadRequest:
		return http.StatusBadRequest
	case fault.Unauthorized:
		return http.StatusUnauthorized
	case fault.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
