// Package transcribe turns acquired audio into a transcript. The
// byte-to-text conversion itself is an external capability; this stage
// owns stream materialization, size limits, and segment derivation.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"clipdigest/internal/fault"
	"clipdigest/internal/media"
)

const stageName = "transcription"

// Capability converts an audio file into raw text.
type Capability interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Segment is one approximate time slice of the transcript. Boundaries
// come from proportional word-count partitioning, not from the speech
// engine.
type Segment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// Transcript is the immutable output of this stage.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// WordCount returns the whitespace-split word count of the transcript.
func (t *Transcript) WordCount() int {
	return len(strings.Fields(t.Text))
}

// StageConfig tunes the transcription stage.
type StageConfig struct {
	// MaxUploadBytes is the external service's file ceiling.
	MaxUploadBytes int64
	// WordsPerSegment sets the segment chunk size.
	WordsPerSegment int
	// TempDir receives materialized audio streams.
	TempDir string
}

// DefaultStageConfig returns the reference tuning.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		MaxUploadBytes:  25 * 1024 * 1024,
		WordsPerSegment: 50,
		TempDir:         os.TempDir(),
	}
}

// Stage runs transcription for one media input at a time.
type Stage struct {
	svc Capability
	cfg StageConfig
}

// NewStage wires the stage to its capability.
func NewStage(svc Capability, cfg StageConfig) *Stage {
	if cfg.WordsPerSegment <= 0 {
		cfg = DefaultStageConfig()
	}
	return &Stage{svc: svc, cfg: cfg}
}

// Transcribe converts the media's audio into a transcript. A streaming
// source is first materialized to a bounded temp file, which is removed
// on every exit path.
func (s *Stage) Transcribe(ctx context.Context, m *media.Processed, onProgress func(percent float64, message string)) (*Transcript, error) {
	report := func(p float64, msg string) {
		if onProgress != nil {
			onProgress(p, msg)
		}
	}

	audioPath, cleanupTemp, err := s.resolveAudio(ctx, m, report)
	if err != nil {
		return nil, err
	}
	defer cleanupTemp()

	report(40, "Transcribing audio")
	text, err := s.svc.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, err).WithMedia(m.ID)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fault.New(fault.ProcessingFailed, stageName, "transcription produced no text").WithMedia(m.ID)
	}

	report(90, "Structuring transcript")
	return &Transcript{
		Text:     text,
		Segments: buildSegments(text, m.Meta.DurationSeconds, s.cfg.WordsPerSegment),
	}, nil
}

// resolveAudio returns a file path for the capability, materializing
// the stream when the media has no usable file on disk.
func (s *Stage) resolveAudio(ctx context.Context, m *media.Processed, report func(float64, string)) (string, func(), error) {
	if m == nil || (m.Audio == nil && m.AudioPath == "") {
		return "", nil, fault.New(fault.ProcessingFailed, stageName, "no audio source available")
	}

	if m.Audio == nil {
		info, err := os.Stat(m.AudioPath)
		if err != nil {
			return "", nil, fault.New(fault.ProcessingFailed, stageName, "no audio source available").WithMedia(m.ID)
		}
		if err := s.checkSize(info.Size()); err != nil {
			return "", nil, err
		}
		return m.AudioPath, func() {}, nil
	}

	report(10, "Preparing audio")
	tmp, err := os.CreateTemp(s.cfg.TempDir, "transcribe-*.mp3")
	if err != nil {
		return "", nil, fault.Wrap(fault.ProcessingFailed, stageName, err).WithMedia(m.ID)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	// A read blocked on a stalled pipe never observes ctx on its own;
	// the watcher closes the source to unblock it.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = m.Audio.Close()
		case <-watchDone:
		}
	}()

	// Read one byte past the ceiling so an over-limit stream is caught
	// without buffering the whole thing first.
	written, err := io.Copy(tmp, io.LimitReader(contextReader(ctx, m.Audio), s.cfg.MaxUploadBytes+1))
	close(watchDone)
	if err != nil {
		cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, fault.Wrap(fault.ProcessingFailed, stageName, ctxErr).WithMedia(m.ID)
		}
		// Stream errors arrive already classified (a failed download is
		// a download failure, not a transcription one).
		var fe *fault.Error
		if errors.As(err, &fe) {
			return "", nil, fe
		}
		return "", nil, fault.Wrap(fault.ProcessingFailed, stageName, err).WithMedia(m.ID)
	}
	if written == 0 {
		cleanup()
		return "", nil, fault.New(fault.ProcessingFailed, stageName, "audio stream is empty").WithMedia(m.ID)
	}
	if err := s.checkSize(written); err != nil {
		cleanup()
		return "", nil, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", nil, fault.Wrap(fault.ProcessingFailed, stageName, err).WithMedia(m.ID)
	}

	report(30, "Audio ready")
	return tmp.Name(), cleanup, nil
}

func (s *Stage) checkSize(n int64) error {
	if s.cfg.MaxUploadBytes > 0 && n > s.cfg.MaxUploadBytes {
		return fault.New(fault.ProcessingFailed, stageName,
			fmt.Sprintf("audio exceeds the %d byte transcription limit", s.cfg.MaxUploadBytes))
	}
	return nil
}

// buildSegments splits text into fixed-size word chunks and assigns
// each a proportional window of the total duration. Unknown duration
// yields zero-valued windows.
func buildSegments(text string, durationSeconds float64, wordsPerSegment int) []Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	total := len(words)
	segments := make([]Segment, 0, (total+wordsPerSegment-1)/wordsPerSegment)
	for start := 0; start < total; start += wordsPerSegment {
		end := start + wordsPerSegment
		if end > total {
			end = total
		}
		seg := Segment{Text: strings.Join(words[start:end], " ")}
		if durationSeconds > 0 {
			seg.StartTime = float64(start) / float64(total) * durationSeconds
			seg.EndTime = float64(end) / float64(total) * durationSeconds
		}
		segments = append(segments, seg)
	}
	return segments
}

// contextReader cancels in-progress reads when ctx is done.
func contextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
