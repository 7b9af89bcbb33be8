package pipeline

import (
	"context"
	"errors"

	"clipdigest/internal/transcribe"
	"clipdigest/internal/youtube"
)

// CaptionSource provides pre-authored captions for a remote source,
// letting the pipeline skip speech recognition entirely.
type CaptionSource interface {
	Captions(ctx context.Context, url string) (*transcribe.Transcript, error)
}

// YouTubeCaptions adapts the YouTube caption tracks to a transcript
// source.
type YouTubeCaptions struct {
	client *youtube.Client
	lang   string
}

// NewYouTubeCaptions fetches captions in lang, defaulting to English.
func NewYouTubeCaptions(client *youtube.Client, lang string) *YouTubeCaptions {
	if lang == "" {
		lang = "en"
	}
	return &YouTubeCaptions{client: client, lang: lang}
}

// Captions returns a transcript built from the video's caption track.
// Segment boundaries come straight from the caption timings.
func (y *YouTubeCaptions) Captions(ctx context.Context, url string) (*transcribe.Transcript, error) {
	if _, err := youtube.ExtractVideoID(url); err != nil {
		return nil, err
	}
	info, err := y.client.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	caption, err := y.client.FetchCaption(ctx, info, y.lang)
	if err != nil {
		return nil, err
	}
	if len(caption.Entries) == 0 {
		return nil, errors.New("caption track is empty")
	}

	transcript := &transcribe.Transcript{Text: caption.Text()}
	for _, e := range caption.Entries {
		transcript.Segments = append(transcript.Segments, transcribe.Segment{
			Text:      e.Text,
			StartTime: e.Start.Seconds(),
			EndTime:   (e.Start + e.Duration).Seconds(),
		})
	}
	return transcript, nil
}
