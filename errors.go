package ytcollect

import (
	"ytcollect/config"
	"ytcollect/export"
	"ytcollect/internal/retry"
	"ytcollect/storage"
	"ytcollect/youtube"
)

// Type aliases for convenient error handling.
type (
	// APIError wraps a Data API failure that is neither quota nor not-found.
	APIError = youtube.APIError
	// CommentFetchError reports a comment stream that stopped part way.
	CommentFetchError = youtube.CommentFetchError
	// ExportError reports an output file that could not be written.
	ExportError = export.ExportError
	// StorageError wraps errors during cache operations.
	StorageError = storage.StorageError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrCredentialMissing indicates no Data API key is configured.
	ErrCredentialMissing = config.ErrCredentialMissing

	// ErrChannelNotFound indicates the handle does not resolve to a channel.
	ErrChannelNotFound = youtube.ErrChannelNotFound
	// ErrQuotaExceeded indicates the API key's daily quota is used up.
	ErrQuotaExceeded = youtube.ErrQuotaExceeded
	// ErrVideoNotFound indicates a listed video returned no metadata.
	ErrVideoNotFound = youtube.ErrVideoNotFound
	// ErrTranscriptUnavailable indicates a video has no usable captions.
	ErrTranscriptUnavailable = youtube.ErrTranscriptUnavailable

	// ErrNotFound indicates a channel is not cached.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidInput indicates an invalid handle or entry.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrStorageCorrupt indicates an unreadable cache entry.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a cache file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsChannelLevel reports whether err should fail a single channel rather
// than the video being processed. Comment stream failures never do.
func IsChannelLevel(err error) bool {
	return youtube.IsChannelLevel(err)
}

// IsVideoLevel reports whether err only affects one video.
func IsVideoLevel(err error) bool {
	return youtube.IsVideoLevel(err)
}
