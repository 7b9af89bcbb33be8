// Package youtube wraps the YouTube metadata client used to validate
// remote sources before any subprocess is spawned. Audio itself is
// fetched by the downloader subprocess; this package only answers "is
// this a real video URL" and "what is it called".
package youtube

import (
	"context"
	"strings"
	"time"

	ytdl "github.com/kkdai/youtube/v2"
)

// Client wraps the upstream YouTube client.
type Client struct {
	client ytdl.Client
}

// NewClient creates a metadata client.
func NewClient() *Client {
	return &Client{client: ytdl.Client{}}
}

// VideoInfo is the slice of video metadata the pipeline cares about.
type VideoInfo struct {
	ID       string
	Title    string
	Author   string
	Duration time.Duration
	Captions []CaptionTrack
}

// CaptionTrack describes one available caption language.
type CaptionTrack struct {
	BaseURL      string
	LanguageCode string
}

// FindCaption returns the track for lang, matching the base language
// when no exact track exists ("en" matches "en-US"). Returns nil when
// the video has no usable track.
func (v *VideoInfo) FindCaption(lang string) *CaptionTrack {
	for i := range v.Captions {
		if v.Captions[i].LanguageCode == lang {
			return &v.Captions[i]
		}
	}
	for i := range v.Captions {
		if strings.HasPrefix(v.Captions[i].LanguageCode, lang+"-") {
			return &v.Captions[i]
		}
	}
	return nil
}

// ExtractVideoID parses a watch URL, a shortened URL, or a bare id.
func ExtractVideoID(url string) (string, error) {
	return ytdl.ExtractVideoID(url)
}

// Probe fetches metadata for the video behind url.
func (c *Client) Probe(ctx context.Context, url string) (*VideoInfo, error) {
	video, err := c.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, err
	}
	info := &VideoInfo{
		ID:       video.ID,
		Title:    video.Title,
		Author:   video.Author,
		Duration: video.Duration,
	}
	for _, track := range video.CaptionTracks {
		info.Captions = append(info.Captions, CaptionTrack{
			BaseURL:      track.BaseURL,
			LanguageCode: track.LanguageCode,
		})
	}
	return info, nil
}
