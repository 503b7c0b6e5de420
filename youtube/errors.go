package youtube

import (
	"errors"
	"fmt"
)

// Sentinel errors for YouTube operations.
var (
	// ErrChannelNotFound indicates the handle or channel ID does not resolve to a channel.
	ErrChannelNotFound = errors.New("youtube: channel not found")
	// ErrQuotaExceeded indicates the Data API key has used up its daily quota.
	ErrQuotaExceeded = errors.New("youtube: API quota exceeded")
	// ErrVideoNotFound indicates videos.list returned no item for a video ID.
	ErrVideoNotFound = errors.New("youtube: video not found")
	// ErrTranscriptUnavailable indicates the video has no usable caption track.
	ErrTranscriptUnavailable = errors.New("youtube: transcript unavailable")
)

// APIError wraps a Data API failure that is neither quota nor not-found.
//
//	var apiErr *youtube.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s %s failed: %v\n", apiErr.Op, apiErr.Target, apiErr.Err)
//	}
type APIError struct {
	// Op is the API call ("channels.list", "playlistItems.list", "videos.list", "commentThreads.list").
	Op string
	// Target is the handle, channel, playlist or video the call was about.
	Target string
	// Err is the underlying error.
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// CommentFetchError reports a comment stream that failed part way. The
// comments collected before the failure are returned alongside it.
type CommentFetchError struct {
	VideoID   string
	Collected int
	Err       error
}

func (e *CommentFetchError) Error() string {
	return fmt.Sprintf("youtube: comments for %s stopped after %d: %v", e.VideoID, e.Collected, e.Err)
}

func (e *CommentFetchError) Unwrap() error { return e.Err }

// IsChannelLevel reports whether err should fail the whole channel. A
// comment stream failure is video-level whatever it wraps.
func IsChannelLevel(err error) bool {
	if err == nil || IsVideoLevel(err) {
		return false
	}
	var apiErr *APIError
	return errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.As(err, &apiErr)
}

// IsVideoLevel reports whether err only affects the video being processed.
func IsVideoLevel(err error) bool {
	if err == nil {
		return false
	}
	var cfe *CommentFetchError
	return errors.As(err, &cfe) ||
		errors.Is(err, ErrVideoNotFound) ||
		errors.Is(err, ErrTranscriptUnavailable)
}
