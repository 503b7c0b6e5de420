package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcollect/storage"
)

func thread(id, text string, likes, replies int, published string) map[string]any {
	return map[string]any{
		"snippet": map[string]any{
			"totalReplyCount": replies,
			"topLevelComment": map[string]any{
				"id": id,
				"snippet": map[string]any{
					"textDisplay":       text,
					"authorDisplayName": "@" + id + "-author",
					"authorChannelId":   map[string]any{"value": "UC" + id},
					"likeCount":         likes,
					"publishedAt":       published,
				},
			},
		},
	}
}

func TestAPICommentSource_Pages(t *testing.T) {
	api := newFakeDataAPI()
	api.comments["v1"] = [][]map[string]any{
		{thread("c1", "first", 10, 2, "2024-01-01T00:00:00Z"), thread("c2", "second", 0, 0, "2024-01-01T00:00:00Z")},
		{thread("c3", "third", 1, 0, "2024-01-01T00:00:00Z")},
	}
	client := newTestAPIClient(t, api)

	source := client.CommentSource(CommentOrderRelevance)
	source.now = func() time.Time { return time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC) }

	stream := source.Comments(context.Background(), "v1")
	var got []storage.CommentRecord
	for {
		rec, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}

	require.Len(t, got, 3)
	assert.Equal(t, storage.CommentRecord{
		VideoID:         "v1",
		CommentID:       "c1",
		Text:            "first",
		Time:            "3 days ago",
		AuthorHandle:    "@c1-author",
		AuthorChannelID: "UCc1",
		Votes:           10,
		Replies:         2,
	}, got[0])
	assert.Equal(t, "c3", got[2].CommentID)
	assert.Equal(t, 2, api.count("commentThreads"))

	api.mu.Lock()
	q := api.requests["commentThreads"][0].URL.Query()
	api.mu.Unlock()
	assert.Equal(t, "relevance", q.Get("order"))
	assert.Equal(t, "100", q.Get("maxResults"))
	assert.Equal(t, "plainText", q.Get("textFormat"))
}

func TestAPICommentSource_OrderDefaultsToRelevance(t *testing.T) {
	client := newTestAPIClient(t, newFakeDataAPI())
	assert.Equal(t, CommentOrderTime, client.CommentSource("time").order)
	assert.Equal(t, CommentOrderRelevance, client.CommentSource("bogus").order)
}

func TestAPICommentSource_CommentsDisabled(t *testing.T) {
	api := newFakeDataAPI()
	api.commentsOff["v1"] = true
	client := newTestAPIClient(t, api)

	fetcher := NewCommentFetcher(client.CommentSource(CommentOrderRelevance), 0, nil)
	comments, err := fetcher.FetchComments(context.Background(), "v1", 50)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAPICommentSource_Quota(t *testing.T) {
	api := newFakeDataAPI()
	api.errors["commentThreads"] = apiFailure{code: http.StatusForbidden, reason: "quotaExceeded"}
	client := newTestAPIClient(t, api)

	_, err := client.CommentSource("").Comments(context.Background(), "v1").Next(context.Background())
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

// sliceSource replays fixed comments, failing after failAfter items when set.
type sliceSource struct {
	comments  []storage.CommentRecord
	failAfter int
	err       error
	opened    int
}

func (s *sliceSource) Comments(ctx context.Context, videoID string) CommentStream {
	s.opened++
	return &sliceStream{src: s}
}

type sliceStream struct {
	src *sliceSource
	pos int
}

func (st *sliceStream) Next(ctx context.Context) (storage.CommentRecord, error) {
	if st.src.err != nil && st.pos == st.src.failAfter {
		return storage.CommentRecord{}, st.src.err
	}
	if st.pos >= len(st.src.comments) {
		return storage.CommentRecord{}, io.EOF
	}
	rec := st.src.comments[st.pos]
	st.pos++
	return rec, nil
}

func makeComments(n int) []storage.CommentRecord {
	out := make([]storage.CommentRecord, n)
	for i := range out {
		out[i] = storage.CommentRecord{VideoID: "other", CommentID: fmt.Sprintf("c%d", i)}
	}
	return out
}

func TestFetchComments_Cap(t *testing.T) {
	src := &sliceSource{comments: makeComments(10)}
	fetcher := NewCommentFetcher(src, 0, nil)

	got, err := fetcher.FetchComments(context.Background(), "v1", 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, c := range got {
		assert.Equal(t, fmt.Sprintf("c%d", i), c.CommentID)
		assert.Equal(t, "v1", c.VideoID)
	}
}

func TestFetchComments_FewerThanCap(t *testing.T) {
	fetcher := NewCommentFetcher(&sliceSource{comments: makeComments(2)}, 0, nil)

	got, err := fetcher.FetchComments(context.Background(), "v1", 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFetchComments_ZeroCap(t *testing.T) {
	src := &sliceSource{comments: makeComments(2)}
	fetcher := NewCommentFetcher(src, 0, nil)

	got, err := fetcher.FetchComments(context.Background(), "v1", 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, src.opened)
}

func TestFetchComments_StreamFailureKeepsPartial(t *testing.T) {
	boom := errors.New("stream broke")
	fetcher := NewCommentFetcher(&sliceSource{comments: makeComments(10), failAfter: 3, err: boom}, 0, nil)

	got, err := fetcher.FetchComments(context.Background(), "v1", 100)
	assert.Len(t, got, 3)

	var cfe *CommentFetchError
	require.True(t, errors.As(err, &cfe))
	assert.Equal(t, "v1", cfe.VideoID)
	assert.Equal(t, 3, cfe.Collected)
	assert.ErrorIs(t, err, boom)
}

func TestFetchComments_Delay(t *testing.T) {
	fetcher := NewCommentFetcher(&sliceSource{comments: makeComments(3)}, 20*time.Millisecond, nil)

	start := time.Now()
	got, err := fetcher.FetchComments(context.Background(), "v1", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	// Two gaps between three comments, none after the last.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 60*time.Millisecond+40*time.Millisecond)
}

func TestFetchComments_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := NewCommentFetcher(&sliceSource{comments: makeComments(3)}, time.Second, nil)

	got, err := fetcher.FetchComments(ctx, "v1", 3)
	assert.Len(t, got, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
