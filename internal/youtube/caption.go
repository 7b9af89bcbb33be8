package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CaptionEntry is one timed caption line.
type CaptionEntry struct {
	Text     string
	Start    time.Duration
	Duration time.Duration
}

// Caption is a fetched caption track.
type Caption struct {
	LanguageCode string
	Entries      []CaptionEntry
}

// Text joins the entries into a single transcript string.
func (c *Caption) Text() string {
	parts := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

// Timedtext payload served by the caption BaseURL: <p> elements timed
// in milliseconds, each holding <s> word segments.
type xmlTimedText struct {
	XMLName xml.Name  `xml:"timedtext"`
	Lines   []xmlLine `xml:"body>p"`
}

type xmlLine struct {
	Start    int64        `xml:"t,attr"`
	Duration int64        `xml:"d,attr"`
	Segments []xmlSegment `xml:"s"`
}

type xmlSegment struct {
	Text string `xml:",chardata"`
}

// FetchCaption downloads the caption track for lang.
func (c *Client) FetchCaption(ctx context.Context, video *VideoInfo, lang string) (*Caption, error) {
	track := video.FindCaption(lang)
	if track == nil {
		return nil, fmt.Errorf("no %q captions available", lang)
	}

	caption, err := c.fetchCaptionByURL(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}
	caption.LanguageCode = track.LanguageCode
	return caption, nil
}

func (c *Client) fetchCaptionByURL(ctx context.Context, url string) (*Caption, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caption request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read caption body: %w", err)
	}
	return parseTimedText(body)
}

func parseTimedText(data []byte) (*Caption, error) {
	var doc xmlTimedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("caption parse failed: %w", err)
	}

	entries := make([]CaptionEntry, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		var b strings.Builder
		for _, seg := range line.Segments {
			b.WriteString(seg.Text)
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		entries = append(entries, CaptionEntry{
			Text:     text,
			Start:    time.Duration(line.Start) * time.Millisecond,
			Duration: time.Duration(line.Duration) * time.Millisecond,
		})
	}
	return &Caption{Entries: entries}, nil
}
