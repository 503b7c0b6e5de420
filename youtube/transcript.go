package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	httpclient "ytcollect/http"
)

// DefaultWatchURL is the watch page the player response is scraped from.
const DefaultWatchURL = "https://www.youtube.com/watch"

const playerResponseMarker = "ytInitialPlayerResponse = "

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// TranscriptFetcher scrapes caption tracks from the watch page and flattens
// the best one into plain text.
type TranscriptFetcher struct {
	client    *httpclient.Client
	languages []string
	watchURL  string
	logger    *slog.Logger
}

// NewTranscriptFetcher creates a fetcher preferring the given language codes
// in order. An empty list means English.
func NewTranscriptFetcher(client *httpclient.Client, languages []string, logger *slog.Logger) *TranscriptFetcher {
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TranscriptFetcher{
		client:    client,
		languages: languages,
		watchURL:  DefaultWatchURL,
		logger:    logger,
	}
}

// SetWatchURL points the fetcher at a different watch page endpoint.
func (f *TranscriptFetcher) SetWatchURL(u string) {
	f.watchURL = u
}

// FetchTranscript returns the transcript text, or nil when the video has
// none or it could not be retrieved. It never fails the caller.
func (f *TranscriptFetcher) FetchTranscript(ctx context.Context, videoID string) *string {
	text, err := f.Extract(ctx, videoID)
	if err != nil {
		if errors.Is(err, ErrTranscriptUnavailable) {
			f.logger.Debug("no transcript", "video_id", videoID, "reason", err)
		} else {
			f.logger.Warn("transcript fetch failed", "video_id", videoID, "error", err)
		}
		return nil
	}
	return &text
}

// Extract fetches and flattens the transcript. Videos without a usable
// caption track return an error wrapping ErrTranscriptUnavailable.
func (f *TranscriptFetcher) Extract(ctx context.Context, videoID string) (string, error) {
	tracks, err := f.captionTracks(ctx, videoID)
	if err != nil {
		return "", err
	}

	track, ok := pickBestTrack(tracks, f.languages)
	if !ok {
		return "", fmt.Errorf("%w: all caption tracks require a PO token", ErrTranscriptUnavailable)
	}

	text, err := f.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty caption track", ErrTranscriptUnavailable)
	}
	return text, nil
}

func (f *TranscriptFetcher) captionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	pageURL := f.watchURL + "?" + url.Values{"v": {videoID}, "hl": {"en"}}.Encode()

	resp, err := f.client.Get(ctx, pageURL, map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(resp.Body, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, fmt.Errorf("%w: player response not found in watch page", ErrTranscriptUnavailable)
	}
	raw := extractJSON(resp.Body[idx+len(playerResponseMarker):])
	if raw == nil {
		return nil, errors.New("watch page: malformed player response")
	}

	var player playerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}

	if player.Captions == nil || len(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		reason := "captions disabled"
		if player.PlayabilityStatus != nil && player.PlayabilityStatus.Reason != "" {
			reason = player.PlayabilityStatus.Reason
		}
		return nil, fmt.Errorf("%w: %s", ErrTranscriptUnavailable, reason)
	}
	return player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

func (f *TranscriptFetcher) fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	resp, err := f.client.Get(ctx, baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}

	var tt timedText
	if err := xml.Unmarshal(resp.Body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}

	parts := make([]string, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		// Caption text arrives entity-escaped inside the XML escaping.
		text := strings.Join(strings.Fields(html.UnescapeString(line.Text)), " ")
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// needsPoToken reports whether a caption URL only works inside a browser session.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack prefers a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first usable track.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL != "" && !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}

	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// extractJSON returns the balanced JSON object at the start of b, or nil.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
