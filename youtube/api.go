package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ytcollect/internal/retry"
)

// playlistPageSize is the Data API maximum for playlistItems.list.
const playlistPageSize = 50

var channelIDRegex = regexp.MustCompile(`^UC[\w-]{22}$`)

// VideoStatistics is the subset of videos.list the collector records.
type VideoStatistics struct {
	VideoID      string
	Title        string
	Description  string
	PublishedAt  string
	Duration     string
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
}

// MetadataFetcher enumerates a channel's uploads and fetches per-video statistics.
type MetadataFetcher interface {
	// ResolveChannelID maps a handle ("@name") to its channel ID.
	ResolveChannelID(ctx context.Context, handle string) (string, error)
	// ListVideos returns up to maxVideos upload IDs, newest first. maxVideos <= 0 means all.
	ListVideos(ctx context.Context, channelID string, maxVideos int) ([]string, error)
	// FetchStatistics returns snippet, statistics and duration for one video.
	FetchStatistics(ctx context.Context, videoID string) (*VideoStatistics, error)
}

// APIConfig configures an APIClient.
type APIConfig struct {
	// APIKey is the Data API key. Required.
	APIKey string
	// HTTPClient carries requests. Its transport is wrapped to add the key.
	// Nil uses http.DefaultTransport.
	HTTPClient *http.Client
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// Retry policy for transient failures. Zero value means a single attempt.
	Retry retry.Config
	// Logger for per-call debug output. Nil discards.
	Logger *slog.Logger
}

// APIClient implements MetadataFetcher on top of the YouTube Data API v3.
type APIClient struct {
	service *youtube.Service
	retry   retry.Config
	logger  *slog.Logger
}

// NewAPIClient creates a Data API client.
func NewAPIClient(ctx context.Context, cfg APIConfig) (*APIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("youtube: api key required")
	}

	base := http.DefaultTransport
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		if cfg.HTTPClient.Transport != nil {
			base = cfg.HTTPClient.Transport
		}
		hc.Timeout = cfg.HTTPClient.Timeout
	}
	// option.WithAPIKey is ignored once WithHTTPClient is set, so the key
	// rides on the transport instead.
	hc.Transport = &transport.APIKey{Key: cfg.APIKey, Transport: base}

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &APIClient{service: service, retry: cfg.Retry, logger: logger}, nil
}

// ResolveChannelID returns a raw channel ID unchanged and resolves handles
// through channels.list forHandle.
func (a *APIClient) ResolveChannelID(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if channelIDRegex.MatchString(handle) {
		return handle, nil
	}
	if strings.TrimPrefix(handle, "@") == "" {
		return "", fmt.Errorf("%w: empty handle", ErrChannelNotFound)
	}

	var channelID string
	err := a.do(ctx, "channels.list", handle, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"id"}).
			ForHandle(handle).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}
		channelID = resp.Items[0].Id
		return nil
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug("resolved channel", "channel", handle, "channel_id", channelID)
	return channelID, nil
}

// ListVideos walks the channel's uploads playlist. Pagination stops as soon
// as maxVideos IDs have been collected.
func (a *APIClient) ListVideos(ctx context.Context, channelID string, maxVideos int) ([]string, error) {
	uploads, err := a.uploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for {
		pageSize := int64(playlistPageSize)
		if maxVideos > 0 {
			if remaining := int64(maxVideos - len(ids)); remaining < pageSize {
				pageSize = remaining
			}
		}

		var next string
		err := a.do(ctx, "playlistItems.list", uploads, func(ctx context.Context) error {
			resp, err := a.service.PlaylistItems.List([]string{"contentDetails"}).
				PlaylistId(uploads).
				MaxResults(pageSize).
				PageToken(pageToken).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
					continue
				}
				ids = append(ids, item.ContentDetails.VideoId)
			}
			next = resp.NextPageToken
			return nil
		})
		if err != nil {
			return nil, err
		}

		a.logger.Debug("listed uploads page", "channel_id", channelID, "total", len(ids))

		if maxVideos > 0 && len(ids) >= maxVideos {
			ids = ids[:maxVideos]
			break
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	return ids, nil
}

func (a *APIClient) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	var playlistID string
	err := a.do(ctx, "channels.list", channelID, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}
		cd := resp.Items[0].ContentDetails
		if cd == nil || cd.RelatedPlaylists == nil || cd.RelatedPlaylists.Uploads == "" {
			return ErrChannelNotFound
		}
		playlistID = cd.RelatedPlaylists.Uploads
		return nil
	})
	return playlistID, err
}

// FetchStatistics returns ErrVideoNotFound when videos.list has no item for
// videoID. Missing counters stay zero.
func (a *APIClient) FetchStatistics(ctx context.Context, videoID string) (*VideoStatistics, error) {
	var stats *VideoStatistics
	err := a.do(ctx, "videos.list", videoID, func(ctx context.Context) error {
		resp, err := a.service.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(videoID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrVideoNotFound
		}

		v := resp.Items[0]
		stats = &VideoStatistics{VideoID: videoID}
		if v.Snippet != nil {
			stats.Title = v.Snippet.Title
			stats.Description = v.Snippet.Description
			stats.PublishedAt = v.Snippet.PublishedAt
		}
		if v.Statistics != nil {
			stats.ViewCount = int64(v.Statistics.ViewCount)
			stats.LikeCount = int64(v.Statistics.LikeCount)
			stats.CommentCount = int64(v.Statistics.CommentCount)
		}
		if v.ContentDetails != nil {
			stats.Duration = v.ContentDetails.Duration
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CommentSource returns a comment source sharing this client's service.
func (a *APIClient) CommentSource(order string) *APICommentSource {
	return newAPICommentSource(a.service, order, a.retry, a.logger)
}

// do runs one API call under the retry policy and maps the final error.
func (a *APIClient) do(ctx context.Context, op, target string, fn func(context.Context) error) error {
	err := retry.Do(ctx, a.retry, isRetryableAPIError, fn)
	if err == nil {
		return nil
	}
	return mapAPIError(op, target, err)
}

// isRetryableAPIError retries 429, 5xx and network failures.
func isRetryableAPIError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrVideoNotFound) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}

// mapAPIError turns a Data API failure into the package taxonomy.
func mapAPIError(op, target string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrVideoNotFound) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case isQuotaError(gerr):
			return fmt.Errorf("%w: %s %s", ErrQuotaExceeded, op, target)
		case gerr.Code == http.StatusNotFound:
			if op == "videos.list" || op == "commentThreads.list" {
				return ErrVideoNotFound
			}
			return fmt.Errorf("%w: %s", ErrChannelNotFound, target)
		}
	}
	return &APIError{Op: op, Target: target, Err: err}
}

func isQuotaError(gerr *googleapi.Error) bool {
	return hasReason(gerr, "quotaExceeded", "dailyLimitExceeded")
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
