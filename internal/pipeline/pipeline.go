package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"clipdigest/internal/fault"
	"clipdigest/internal/media"
	"clipdigest/internal/progress"
	"clipdigest/internal/summarize"
	"clipdigest/internal/transcribe"
)

// estimatedAudioKB sizes the remote download progress mapping. Encoded
// audio length is unknown while streaming, so byte counts are mapped
// against a typical figure and capped short of stage completion.
const estimatedAudioKB = 5 * 1024

// MediaProcessor acquires a source and normalizes it to audio.
type MediaProcessor interface {
	Process(ctx context.Context, src media.Source, hooks media.ProgressHooks) (*media.Processed, error)
}

// Transcriber turns processed audio into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, m *media.Processed, onProgress func(percent float64, message string)) (*transcribe.Transcript, error)
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript *transcribe.Transcript, sourceType, sourceID string, opts summarize.Options) (*summarize.Summary, error)
}

// Options selects the work a single run performs.
type Options struct {
	// TranscriptOnly stops the pipeline after transcription.
	TranscriptOnly bool
	// MaxWords is the advisory summary length budget. Zero means
	// summarize.DefaultMaxWords.
	MaxWords int
	// AdditionalPrompt steers the summary focus.
	AdditionalPrompt string
}

// validate applies defaults and rejects bad options before any
// download or subprocess work starts.
func (o *Options) validate() error {
	if o.TranscriptOnly {
		return nil
	}
	if o.MaxWords == 0 {
		o.MaxWords = summarize.DefaultMaxWords
	}
	if o.MaxWords < summarize.MinWords || o.MaxWords > summarize.MaxWords {
		return fault.New(fault.BadRequest, "summarizing",
			fmt.Sprintf("maxWords must be between %d and %d", summarize.MinWords, summarize.MaxWords))
	}
	return nil
}

// Result is the outcome of one run. Summary is nil for
// transcript-only runs.
type Result struct {
	MediaID    string
	Title      string
	Transcript *transcribe.Transcript
	Summary    *summarize.Summary
}

// Runner sequences acquisition, transcription, and summarization for
// one request while relaying progress through a Tracker.
type Runner struct {
	media       MediaProcessor
	transcriber Transcriber
	summarizer  Summarizer
	captions    CaptionSource
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithCaptionSource enables the caption fast path for remote sources.
func WithCaptionSource(cs CaptionSource) RunnerOption {
	return func(r *Runner) { r.captions = cs }
}

// NewRunner wires the stages together.
func NewRunner(m MediaProcessor, t Transcriber, s Summarizer, opts ...RunnerOption) *Runner {
	r := &Runner{media: m, transcriber: t, summarizer: s}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives source through the pipeline. It owns the tracker's
// terminal event: exactly one done or error event is emitted, and every
// acquired resource is released before Run returns, on success, error,
// and cancellation alike.
func (r *Runner) Run(ctx context.Context, src media.Source, opts Options, tracker *progress.Tracker) (*Result, error) {
	if tracker == nil {
		tracker = progress.NewTracker(0)
	}
	res := NewResources()
	defer res.ReleaseAll()

	tracker.Enter(progress.StageInit)

	if err := opts.validate(); err != nil {
		tracker.Fail(err)
		return nil, err
	}

	tracker.Enter(progress.StageMedia)
	processed, err := r.media.Process(ctx, src, r.mediaHooks(tracker))
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}
	res.Add("media "+processed.ID, func() error {
		processed.Cleanup()
		return nil
	})

	if err := ctx.Err(); err != nil {
		tracker.Fail(err)
		return nil, err
	}

	tracker.Enter(progress.StageTranscribing)
	transcript := r.tryCaptions(ctx, src, tracker)
	if transcript == nil {
		transcript, err = r.transcriber.Transcribe(ctx, processed, tracker.Update)
		if err != nil {
			tracker.Fail(err)
			return nil, err
		}
	}

	result := &Result{
		MediaID:    processed.ID,
		Title:      processed.Meta.Title,
		Transcript: transcript,
	}

	if opts.TranscriptOnly {
		tracker.Done("Transcript ready")
		return result, nil
	}

	tracker.Enter(progress.StageSummarizing)

	// The audio artifacts are dead weight once the transcript exists;
	// reclaim them while the summary request is in flight.
	released := make(chan struct{})
	go func() {
		defer close(released)
		processed.Cleanup()
	}()

	summary, err := r.summarizer.Summarize(ctx, transcript, string(src.Type), processed.ID, summarize.Options{
		MaxWords:         opts.MaxWords,
		AdditionalPrompt: opts.AdditionalPrompt,
	})
	<-released
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}

	result.Summary = summary
	tracker.Done("Summary ready")
	return result, nil
}

// tryCaptions attempts the caption fast path for remote sources.
// Any failure falls back to speech recognition, never to the caller.
func (r *Runner) tryCaptions(ctx context.Context, src media.Source, tracker *progress.Tracker) *transcribe.Transcript {
	if r.captions == nil || src.Type != media.SourceRemote {
		return nil
	}
	transcript, err := r.captions.Captions(ctx, src.URL)
	if err != nil {
		slog.Debug("caption fast path unavailable", "url", src.URL, "error", err)
		return nil
	}
	tracker.Update(100, "Captions found, skipping speech recognition")
	return transcript
}

// mediaHooks translates acquisition signals into tracker updates.
// Remote byte counts map against an estimated audio size; local upload
// staging takes over the first half of the media stage.
func (r *Runner) mediaHooks(tracker *progress.Tracker) media.ProgressHooks {
	var uploadOnce sync.Once
	return media.ProgressHooks{
		OnBytes: func(kb int64) {
			percent := float64(kb) / estimatedAudioKB * 100
			if percent > 95 {
				percent = 95
			}
			tracker.Update(percent, fmt.Sprintf("Received %d KB", kb))
		},
		OnUpload: func(done, total int64) {
			uploadOnce.Do(func() {
				tracker.SetStatus(progress.StatusUploading, "Uploading file")
			})
			if total <= 0 {
				return
			}
			tracker.Update(float64(done)/float64(total)*50, fmt.Sprintf("Uploaded %d of %d bytes", done, total))
		},
	}
}
