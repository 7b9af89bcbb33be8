// Package summarize condenses a transcript into a length-bounded
// summary via an external text-generation capability. The word budget
// is a request passed to the capability, not an enforced postcondition;
// the stage never re-truncates the result.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clipdigest/internal/fault"
	"clipdigest/internal/transcribe"
)

const stageName = "summarization"

// Validation bounds, applied before any external call is made.
// DefaultMaxWords is the budget used when a request leaves it unset.
const (
	MinTranscriptChars = 50
	MinWords           = 50
	MaxWords           = 1000
	DefaultMaxWords    = 300
)

// Capability generates a summary of text within a requested word
// budget, optionally steered by an additional prompt.
type Capability interface {
	Summarize(ctx context.Context, text string, maxWords int, hint string) (string, error)
}

// Options steer one summarization.
type Options struct {
	MaxWords         int
	AdditionalPrompt string
}

// Meta carries summary observability data.
type Meta struct {
	WordCount        int       `json:"wordCount"`
	SourceType       string    `json:"sourceType"`
	SourceID         string    `json:"sourceId"`
	CreatedAt        time.Time `json:"timestamp"`
	CompressionRatio float64   `json:"compressionRatio"`
}

// Summary is the immutable output of this stage.
type Summary struct {
	Content string `json:"content"`
	Meta    Meta   `json:"metadata"`
}

// Stage runs summarization.
type Stage struct {
	svc Capability
}

// NewStage wires the stage to its capability.
func NewStage(svc Capability) *Stage {
	return &Stage{svc: svc}
}

// Summarize validates the transcript and word budget, calls the
// capability, and annotates the result.
func (s *Stage) Summarize(ctx context.Context, transcript *transcribe.Transcript, sourceType, sourceID string, opts Options) (*Summary, error) {
	if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
		return nil, fault.New(fault.BadRequest, stageName, "transcript is empty")
	}
	if len(transcript.Text) < MinTranscriptChars {
		return nil, fault.New(fault.BadRequest, stageName,
			fmt.Sprintf("transcript must be at least %d characters", MinTranscriptChars))
	}
	if opts.MaxWords < MinWords || opts.MaxWords > MaxWords {
		return nil, fault.New(fault.BadRequest, stageName,
			fmt.Sprintf("maxWords must be between %d and %d", MinWords, MaxWords))
	}

	content, err := s.svc.Summarize(ctx, transcript.Text, opts.MaxWords, opts.AdditionalPrompt)
	if err != nil {
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, err).WithMedia(sourceID)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fault.New(fault.ProcessingFailed, stageName, "summarization produced no content").WithMedia(sourceID)
	}

	wordCount := len(strings.Fields(content))
	meta := Meta{
		WordCount:  wordCount,
		SourceType: sourceType,
		SourceID:   sourceID,
		CreatedAt:  time.Now().UTC(),
	}
	if transcriptWords := transcript.WordCount(); transcriptWords > 0 {
		meta.CompressionRatio = float64(wordCount) / float64(transcriptWords) * 100
	}

	return &Summary{Content: content, Meta: meta}, nil
}
