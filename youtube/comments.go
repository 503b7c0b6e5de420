package youtube

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"ytcollect/internal/retry"
	"ytcollect/storage"
)

// Comment orderings accepted by commentThreads.list.
const (
	CommentOrderRelevance = "relevance"
	CommentOrderTime      = "time"
)

const commentPageSize = 100

// CommentStream yields a video's top-level comments one at a time. Next
// returns io.EOF once the stream is exhausted.
type CommentStream interface {
	Next(ctx context.Context) (storage.CommentRecord, error)
}

// CommentSource opens comment streams.
type CommentSource interface {
	Comments(ctx context.Context, videoID string) CommentStream
}

// APICommentSource streams commentThreads.list pages.
type APICommentSource struct {
	service *youtube.Service
	order   string
	retry   retry.Config
	logger  *slog.Logger
	now     func() time.Time
}

func newAPICommentSource(service *youtube.Service, order string, rc retry.Config, logger *slog.Logger) *APICommentSource {
	if order != CommentOrderTime {
		order = CommentOrderRelevance
	}
	return &APICommentSource{
		service: service,
		order:   order,
		retry:   rc,
		logger:  logger,
		now:     time.Now,
	}
}

// Comments opens a stream for videoID. No request is made until the first Next.
func (s *APICommentSource) Comments(ctx context.Context, videoID string) CommentStream {
	return &apiCommentStream{source: s, videoID: videoID}
}

type apiCommentStream struct {
	source    *APICommentSource
	videoID   string
	buf       []storage.CommentRecord
	pageToken string
	done      bool
}

func (st *apiCommentStream) Next(ctx context.Context) (storage.CommentRecord, error) {
	for len(st.buf) == 0 {
		if st.done {
			return storage.CommentRecord{}, io.EOF
		}
		if err := st.fetchPage(ctx); err != nil {
			st.done = true
			return storage.CommentRecord{}, err
		}
	}
	rec := st.buf[0]
	st.buf = st.buf[1:]
	return rec, nil
}

func (st *apiCommentStream) fetchPage(ctx context.Context) error {
	s := st.source
	var resp *youtube.CommentThreadListResponse

	err := retry.Do(ctx, s.retry, isRetryableAPIError, func(ctx context.Context) error {
		call := s.service.CommentThreads.List([]string{"snippet"}).
			VideoId(st.videoID).
			Order(s.order).
			MaxResults(commentPageSize).
			TextFormat("plainText").
			Context(ctx)
		if st.pageToken != "" {
			call = call.PageToken(st.pageToken)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && hasReason(gerr, "commentsDisabled") {
			s.logger.Debug("comments disabled", "video_id", st.videoID)
			st.done = true
			return nil
		}
		return mapAPIError("commentThreads.list", st.videoID, err)
	}

	now := s.now()
	for _, thread := range resp.Items {
		if rec, ok := toCommentRecord(st.videoID, thread, now); ok {
			st.buf = append(st.buf, rec)
		}
	}
	st.pageToken = resp.NextPageToken
	if st.pageToken == "" {
		st.done = true
	}
	return nil
}

func toCommentRecord(videoID string, thread *youtube.CommentThread, now time.Time) (storage.CommentRecord, bool) {
	if thread == nil || thread.Snippet == nil || thread.Snippet.TopLevelComment == nil {
		return storage.CommentRecord{}, false
	}
	top := thread.Snippet.TopLevelComment
	rec := storage.CommentRecord{
		VideoID:   videoID,
		CommentID: top.Id,
		Replies:   thread.Snippet.TotalReplyCount,
	}
	if sn := top.Snippet; sn != nil {
		rec.Text = sn.TextDisplay
		rec.AuthorHandle = sn.AuthorDisplayName
		rec.Votes = sn.LikeCount
		if sn.AuthorChannelId != nil {
			rec.AuthorChannelID = sn.AuthorChannelId.Value
		}
		if t, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
			rec.Time = humanize.RelTime(t, now, "ago", "from now")
		}
	}
	return rec, true
}

// CommentFetcher pulls a capped number of comments from a CommentSource,
// pacing between comments.
type CommentFetcher struct {
	source CommentSource
	delay  time.Duration
	logger *slog.Logger
}

// NewCommentFetcher creates a fetcher sleeping delay between successive comments.
func NewCommentFetcher(source CommentSource, delay time.Duration, logger *slog.Logger) *CommentFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommentFetcher{source: source, delay: delay, logger: logger}
}

// FetchComments returns at most maxComments comments in upstream order.
// When the stream fails part way the comments gathered so far are returned
// together with a *CommentFetchError.
func (f *CommentFetcher) FetchComments(ctx context.Context, videoID string, maxComments int) ([]storage.CommentRecord, error) {
	comments := []storage.CommentRecord{}
	if maxComments <= 0 {
		return comments, nil
	}

	stream := f.source.Comments(ctx, videoID)
	for len(comments) < maxComments {
		rec, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.logger.Warn("comment stream stopped", "video_id", videoID, "collected", len(comments), "error", err)
			return comments, &CommentFetchError{VideoID: videoID, Collected: len(comments), Err: err}
		}
		rec.VideoID = videoID
		comments = append(comments, rec)

		if len(comments) < maxComments {
			if err := retry.Wait(ctx, f.delay); err != nil {
				return comments, &CommentFetchError{VideoID: videoID, Collected: len(comments), Err: err}
			}
		}
	}

	f.logger.Debug("fetched comments", "video_id", videoID, "count", len(comments))
	return comments, nil
}
