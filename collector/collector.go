// Package collector runs the per-channel scrape: cache lookup, video
// listing, per-video enrichment and the cache write that marks a channel done.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ytcollect/internal/retry"
	"ytcollect/storage"
	"ytcollect/youtube"
)

// State is the lifecycle state of one channel within a run.
type State string

// Channel states. CACHED, DONE and FAILED are terminal.
const (
	StatePending  State = "PENDING"
	StateCached   State = "CACHED"
	StateFetching State = "FETCHING"
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
)

// TranscriptFetcher returns a video's transcript, or nil when none exists.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) *string
}

// CommentFetcher returns up to maxComments top-level comments. A non-nil
// error may accompany a partial slice.
type CommentFetcher interface {
	FetchComments(ctx context.Context, videoID string, maxComments int) ([]storage.CommentRecord, error)
}

// Options controls what a run collects.
type Options struct {
	// Channels are processed in order.
	Channels []string
	// MaxVideosPerChannel caps listed videos. <= 0 means no limit.
	MaxVideosPerChannel int
	// MaxCommentsPerVideo caps comments per video.
	MaxCommentsPerVideo int
	// VideoDelay is the pause between successive videos of a channel.
	VideoDelay time.Duration
}

// Deps are the collaborators of a Collector.
type Deps struct {
	Cache       storage.CacheStore
	Metadata    youtube.MetadataFetcher
	Transcripts TranscriptFetcher
	Comments    CommentFetcher
	Logger      *slog.Logger
	// Clock stamps records and cache entries. Nil uses time.Now.
	Clock func() time.Time
}

// ChannelOutcome reports how one channel ended.
type ChannelOutcome struct {
	Handle    string
	ChannelID string
	State     State
	Videos    int
	Err       error
}

// RunResult holds the records of every CACHED or DONE channel, in channel
// order, and one outcome per channel reached.
type RunResult struct {
	Records  []storage.VideoRecord
	Channels []ChannelOutcome
}

// Failed returns the outcomes that ended in StateFailed.
func (r *RunResult) Failed() []ChannelOutcome {
	var out []ChannelOutcome
	for _, c := range r.Channels {
		if c.State == StateFailed {
			out = append(out, c)
		}
	}
	return out
}

// Collector drives the channel queue.
type Collector struct {
	opts   Options
	deps   Deps
	merger Merger
	logger *slog.Logger
}

// New creates a Collector.
func New(opts Options, deps Deps) *Collector {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		opts:   opts,
		deps:   deps,
		merger: Merger{MaxComments: opts.MaxCommentsPerVideo, Now: deps.Clock},
		logger: logger,
	}
}

// Run processes every channel once. Channel failures are recorded in the
// result and never stop the run; only context cancellation does, in which
// case the partial result is returned with the context error.
func (c *Collector) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	for _, handle := range c.opts.Channels {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, outcome := c.processChannel(ctx, handle)
		result.Channels = append(result.Channels, outcome)

		if err := ctx.Err(); err != nil {
			return result, err
		}
		if outcome.State == StateCached || outcome.State == StateDone {
			result.Records = append(result.Records, records...)
		}
	}

	c.logger.Info("run complete",
		"channels", len(result.Channels),
		"failed", len(result.Failed()),
		"videos", len(result.Records))
	return result, nil
}

func (c *Collector) processChannel(ctx context.Context, handle string) ([]storage.VideoRecord, ChannelOutcome) {
	log := c.logger.With("channel", handle)
	outcome := ChannelOutcome{Handle: handle, State: StatePending}

	entry, err := c.deps.Cache.Load(ctx, handle)
	switch {
	case err == nil:
		outcome.State = StateCached
		outcome.ChannelID = entry.ChannelID
		outcome.Videos = len(entry.Videos)
		log.Info("using cached channel", "videos", outcome.Videos)
		return entry.Videos, outcome
	case errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, storage.ErrInvalidInput):
		outcome.State = StateFailed
		outcome.Err = err
		log.Error("channel failed", "error", err)
		return nil, outcome
	case errors.Is(err, storage.ErrStorageCorrupt):
		log.Warn("ignoring corrupt cache entry", "error", err)
	default:
		log.Warn("cache lookup failed, fetching", "error", err)
	}

	outcome.State = StateFetching
	records, channelID, err := c.fetchChannel(ctx, handle, log)
	outcome.ChannelID = channelID
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = err
		log.Error("channel failed", "error", err)
		return nil, outcome
	}

	entry = &storage.ChannelCacheEntry{
		ChannelHandle:   handle,
		ChannelID:       channelID,
		Videos:          records,
		LastProcessedAt: c.deps.Clock().UTC(),
	}
	if err := c.deps.Cache.Save(ctx, handle, entry); err != nil {
		outcome.State = StateFailed
		outcome.Err = fmt.Errorf("save cache: %w", err)
		log.Error("channel failed", "error", outcome.Err)
		return nil, outcome
	}

	outcome.State = StateDone
	outcome.Videos = len(records)
	log.Info("channel done", "channel_id", channelID, "videos", len(records))
	return records, outcome
}

func (c *Collector) fetchChannel(ctx context.Context, handle string, log *slog.Logger) ([]storage.VideoRecord, string, error) {
	channelID, err := c.deps.Metadata.ResolveChannelID(ctx, handle)
	if err != nil {
		return nil, "", fmt.Errorf("resolve channel: %w", err)
	}

	ids, err := c.deps.Metadata.ListVideos(ctx, channelID, c.opts.MaxVideosPerChannel)
	if err != nil {
		return nil, channelID, fmt.Errorf("list videos: %w", err)
	}
	if c.opts.MaxVideosPerChannel > 0 && len(ids) > c.opts.MaxVideosPerChannel {
		ids = ids[:c.opts.MaxVideosPerChannel]
	}
	log.Info("listed videos", "channel_id", channelID, "count", len(ids))

	ch := Channel{Handle: handle, ID: channelID}
	records := make([]storage.VideoRecord, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for i, videoID := range ids {
		if i > 0 {
			if err := retry.Wait(ctx, c.opts.VideoDelay); err != nil {
				return nil, channelID, err
			}
		}
		if seen[videoID] {
			log.Warn("skipping duplicate video", "video_id", videoID)
			continue
		}
		seen[videoID] = true

		rec, err := c.fetchVideo(ctx, ch, videoID, log.With("video_id", videoID))
		if youtube.IsVideoLevel(err) {
			log.Warn("skipping video", "video_id", videoID, "error", err)
			continue
		}
		if err != nil {
			return nil, channelID, fmt.Errorf("video %s: %w", videoID, err)
		}
		records = append(records, rec)
	}

	return records, channelID, nil
}

func (c *Collector) fetchVideo(ctx context.Context, ch Channel, videoID string, log *slog.Logger) (storage.VideoRecord, error) {
	stats, err := c.deps.Metadata.FetchStatistics(ctx, videoID)
	if err != nil {
		return storage.VideoRecord{}, err
	}

	transcript := c.deps.Transcripts.FetchTranscript(ctx, videoID)
	if transcript == nil {
		log.Info("no transcript")
	}

	comments, err := c.deps.Comments.FetchComments(ctx, videoID, c.opts.MaxCommentsPerVideo)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return storage.VideoRecord{}, ctxErr
		}
		log.Warn("comments truncated", "collected", len(comments), "error", err)
	}

	rec := c.merger.Merge(ch, stats, transcript, comments)
	log.Debug("video processed", "comments", len(rec.Comments), "has_transcript", rec.HasTranscript())
	return rec, nil
}
