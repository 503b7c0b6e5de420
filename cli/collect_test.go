package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcollect/config"
	"ytcollect/storage"
)

// fakeYouTube serves one known channel with two videos and a watch page
// without captions.
type fakeYouTube struct {
	apiCalls atomic.Int32
}

func (f *fakeYouTube) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/watch" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>no player here</body></html>"))
		return
	}

	f.apiCalls.Add(1)
	q := r.URL.Query()
	var resp map[string]any
	switch strings.TrimPrefix(r.URL.Path, "/youtube/v3/") {
	case "channels":
		items := []map[string]any{}
		if q.Get("forHandle") == "@good" {
			items = append(items, map[string]any{"id": "UCgoodgoodgoodgoodgoodgo"})
		} else if q.Get("id") == "UCgoodgoodgoodgoodgoodgo" {
			items = append(items, map[string]any{
				"id":             "UCgoodgoodgoodgoodgoodgo",
				"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UUgoodgoodgoodgoodgoodgo"}},
			})
		}
		resp = map[string]any{"items": items}
	case "playlistItems":
		resp = map[string]any{"items": []map[string]any{
			{"contentDetails": map[string]any{"videoId": "v1"}},
			{"contentDetails": map[string]any{"videoId": "v2"}},
		}}
	case "videos":
		id := q.Get("id")
		resp = map[string]any{"items": []map[string]any{{
			"id":             id,
			"snippet":        map[string]any{"title": "Episode " + id, "publishedAt": "2024-01-02T03:04:05Z"},
			"statistics":     map[string]any{"viewCount": "10", "likeCount": "2", "commentCount": "1"},
			"contentDetails": map[string]any{"duration": "PT1M"},
		}}}
	case "commentThreads":
		id := q.Get("videoId")
		resp = map[string]any{"items": []map[string]any{{
			"snippet": map[string]any{
				"totalReplyCount": 0,
				"topLevelComment": map[string]any{
					"id": id + "-c1",
					"snippet": map[string]any{
						"textDisplay":       "first",
						"authorDisplayName": "@viewer",
						"likeCount":         3,
						"publishedAt":       "2024-01-03T00:00:00Z",
					},
				},
			},
		}}}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func newCollectEnv(t *testing.T) (*config.Config, endpoints, *fakeYouTube) {
	t.Helper()
	fake := &fakeYouTube{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Youtubers = []string{"@bad", "@good"}
	cfg.MaxVideosPerChannel = 10
	cfg.MaxCommentsPerVideo = 5
	cfg.VideoDelaySeconds = 0
	cfg.CommentDelaySeconds = 0
	cfg.OutputFormat = "both"
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.CacheBackend = "file"
	cfg.Log.File = ""
	cfg.HTTP.RequestsPerSecond = 0

	return cfg, endpoints{api: srv.URL + "/", watch: srv.URL + "/watch"}, fake
}

func readExport(t *testing.T, dir string) []storage.VideoRecord {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "youtube_data_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	b, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var records []storage.VideoRecord
	require.NoError(t, json.Unmarshal(b, &records))
	return records
}

func TestCollect_FailedChannelStillExports(t *testing.T) {
	cfg, ep, _ := newCollectEnv(t)

	var stderr bytes.Buffer
	code := collect(context.Background(), cfg, "test-key", ep, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stderr.String(), "@bad")

	for _, pattern := range []string{"youtube_data_*.json", "youtube_data_*.csv", "youtube_comments_*.csv"} {
		matches, err := filepath.Glob(filepath.Join(cfg.OutputDir, pattern))
		require.NoError(t, err)
		assert.Len(t, matches, 1, pattern)
	}

	records := readExport(t, cfg.OutputDir)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "@good", rec.ChannelHandle)
		assert.Nil(t, rec.Transcript)
		assert.Len(t, rec.Comments, 1)
	}
	assert.Equal(t, "v1", records[0].VideoID)
	assert.Equal(t, "v2", records[1].VideoID)
}

func TestCollect_UnwritableOutputDir(t *testing.T) {
	cfg, ep, _ := newCollectEnv(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.OutputDir = filepath.Join(blocker, "out")

	var stderr bytes.Buffer
	code := collect(context.Background(), cfg, "test-key", ep, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "export failed")

	store, err := storage.NewFileStore(cfg.CacheDir)
	require.NoError(t, err)
	entry, err := store.Load(context.Background(), "@good")
	require.NoError(t, err, "scraped channels stay cached when the export fails")
	assert.Len(t, entry.Videos, 2)
}

func TestCollect_WarmCacheExportsSameRecords(t *testing.T) {
	cfg, ep, fake := newCollectEnv(t)
	cfg.Youtubers = []string{"@good"}

	var stderr bytes.Buffer
	require.Equal(t, 0, collect(context.Background(), cfg, "test-key", ep, &stderr), stderr.String())
	first := readExport(t, cfg.OutputDir)
	calls := fake.apiCalls.Load()
	require.NotZero(t, calls)

	cfg.OutputDir = filepath.Join(t.TempDir(), "second")
	require.Equal(t, 0, collect(context.Background(), cfg, "test-key", ep, &stderr), stderr.String())
	second := readExport(t, cfg.OutputDir)

	assert.Equal(t, calls, fake.apiCalls.Load(), "a warm cache must not hit the API")
	assert.Equal(t, first, second)
}

func TestCollect_CanceledRunFails(t *testing.T) {
	cfg, ep, _ := newCollectEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stderr bytes.Buffer
	assert.Equal(t, 1, collect(ctx, cfg, "test-key", ep, &stderr))
	matches, _ := filepath.Glob(filepath.Join(cfg.OutputDir, "*"))
	assert.Empty(t, matches)
}
