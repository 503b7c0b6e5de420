// Package ytcollect collects research data about YouTube channels: video
// metadata from the Data API, transcripts from caption tracks and top-level
// comments, exported as JSON and CSV.
//
// Overview
//
// A run walks the configured channel handles in order. A channel already in
// the cache is reused as is; otherwise its uploads are listed, every video is
// enriched with statistics, transcript and comments, and the channel is
// written to the cache once all of its videos are processed. The records of
// every cached or completed channel are then exported together.
//
// Packages
//
//   - collector: the per-channel state machine and record merger
//   - youtube: Data API client, transcript and comment fetchers
//   - storage: record schema and the file, bbolt and SQLite cache backends
//   - export: JSON and CSV writers
//   - config: viper-based settings and the API credential
//   - http: rate-limited, retrying HTTP client shared by all fetchers
//
// Quick Start
//
//	store, _ := storage.Open(storage.BackendFile, "cache")
//	client := http.New(nil)
//	api, _ := youtube.NewAPIClient(ctx, youtube.APIConfig{APIKey: key, HTTPClient: client.HTTPClient()})
//	c := collector.New(collector.Options{
//		Channels:            []string{"@HasanAbi"},
//		MaxVideosPerChannel: 10,
//		MaxCommentsPerVideo: 100,
//	}, collector.Deps{
//		Cache:       store,
//		Metadata:    api,
//		Transcripts: youtube.NewTranscriptFetcher(client, []string{"en"}, nil),
//		Comments:    youtube.NewCommentFetcher(api.CommentSource(youtube.CommentOrderRelevance), 0, nil),
//	})
//	result, err := c.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	paths, err := (&export.Exporter{}).Export(result.Records, export.FormatBoth, "data")
//
// Configuration
//
// Settings are merged from, in increasing priority:
//
//  1. built-in defaults
//  2. ytcollect.yaml (working directory or ~/.config/ytcollect/) or -config
//  3. YTCOLLECT_* environment variables, including those set by a .env file
//
// The Data API key is read from H_YOUTUBE_API_KEY, or YOUTUBE_API_KEY.
//
// Error Handling
//
// Channel-level failures (ErrChannelNotFound, ErrQuotaExceeded, *APIError)
// mark a channel failed and the run moves on. Video-level conditions
// (ErrVideoNotFound, ErrTranscriptUnavailable, *CommentFetchError) never fail
// a channel. ErrCredentialMissing and *ExportError are fatal to a run:
//
//	var exportErr *ytcollect.ExportError
//	if errors.As(err, &exportErr) {
//		fmt.Printf("could not write %s: %v\n", exportErr.Path, exportErr.Err)
//	}
package ytcollect
