package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"ytcollect/collector"
	"ytcollect/config"
	"ytcollect/export"
	httpclient "ytcollect/http"
	"ytcollect/internal/logging"
	"ytcollect/internal/retry"
	"ytcollect/storage"
	"ytcollect/youtube"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "cache":
			return cmdCache(ctx, args[1:], stdout, stderr)
		case "transcript":
			return cmdTranscript(ctx, args[1:], stdout, stderr)
		case "help", "-h", "--help":
			printUsage(stderr)
			return 0
		case "collect":
			args = args[1:]
		}
	}
	return cmdCollect(ctx, args, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `ytcollect - YouTube metadata, transcript and comment collector

Usage:
  ytcollect [-config path]                          Collect every configured channel
  ytcollect cache list [-config path]               List cached channels
  ytcollect cache clear [-config path] <handle>...  Drop cached channels so they are re-scraped
  ytcollect transcript [-lang en,de] <video-id>     Print one video's transcript
  ytcollect help                                    Show this help message

Settings come from ytcollect.yaml, YTCOLLECT_* variables and .env.
The Data API key is read from %s.
`, config.APIKeyEnv)
}

func cmdCollect(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	apiKey, err := config.LoadCredential()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return collect(ctx, cfg, apiKey, endpoints{}, stderr)
}

// endpoints overrides the remote hosts. Empty fields use the public ones.
type endpoints struct {
	api   string
	watch string
}

// collect runs one scrape and export. It returns 0 when the export was
// written, even if some channels failed, and 1 otherwise.
func collect(ctx context.Context, cfg *config.Config, apiKey string, ep endpoints, stderr io.Writer) int {
	format, err := export.ParseFormat(cfg.OutputFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger, closer, err := logging.Setup(cfg.Log.File, cfg.Log.Level, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error setting up logging: %v\n", err)
		return 1
	}
	defer closer.Close()
	logger, _ = logging.WithRunID(logger)

	store, err := storage.Open(cfg.CacheBackend, cfg.CacheDir)
	if err != nil {
		logger.Error("open cache", "error", err)
		return 1
	}
	defer store.Close()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.HTTP.Timeout
	httpCfg.RateLimiter.RequestsPerSecond = cfg.HTTP.RequestsPerSecond
	httpCfg.Logger = logger
	client := httpclient.New(httpCfg)
	defer client.Close()

	api, err := youtube.NewAPIClient(ctx, youtube.APIConfig{
		APIKey:     apiKey,
		HTTPClient: client.HTTPClient(),
		Endpoint:   ep.api,
		Retry:      retry.DefaultConfig(),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("create API client", "error", err)
		return 1
	}

	transcripts := youtube.NewTranscriptFetcher(client, cfg.TranscriptLanguages, logger)
	if ep.watch != "" {
		transcripts.SetWatchURL(ep.watch)
	}

	c := collector.New(collector.Options{
		Channels:            cfg.Youtubers,
		MaxVideosPerChannel: cfg.MaxVideosPerChannel,
		MaxCommentsPerVideo: cfg.MaxCommentsPerVideo,
		VideoDelay:          cfg.VideoDelay(),
	}, collector.Deps{
		Cache:       store,
		Metadata:    api,
		Transcripts: transcripts,
		Comments:    youtube.NewCommentFetcher(api.CommentSource(cfg.CommentSort), cfg.CommentDelay(), logger),
		Logger:      logger,
	})

	logger.Info("starting run", "channels", len(cfg.Youtubers), "backend", cfg.CacheBackend)
	result, err := c.Run(ctx)
	if err != nil {
		logger.Error("run aborted", "error", err)
		return 1
	}
	for _, ch := range result.Failed() {
		logger.Warn("channel not collected", "channel", ch.Handle, "error", ch.Err)
	}

	exporter := &export.Exporter{Logger: logger}
	paths, err := exporter.Export(result.Records, format, cfg.OutputDir)
	if err != nil {
		logger.Error("export failed", "error", err)
		return 1
	}
	logger.Info("run finished", "videos", len(result.Records), "files", strings.Join(paths, ","))
	return 0
}

func cmdCache(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, "Usage: ytcollect cache list|clear [-config path] [handle...]\n")
		return 2
	}
	sub := args[0]

	fs := flag.NewFlagSet("cache "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	store, err := storage.Open(cfg.CacheBackend, cfg.CacheDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening cache: %v\n", err)
		return 1
	}
	defer store.Close()

	switch sub {
	case "list":
		return cacheList(ctx, store, stdout, stderr)
	case "clear":
		if fs.NArg() == 0 {
			fmt.Fprintf(stderr, "Error: missing handle\n")
			return 2
		}
		code := 0
		for _, handle := range fs.Args() {
			if err := store.Delete(ctx, handle); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					fmt.Fprintf(stderr, "%s: not cached\n", handle)
				} else {
					fmt.Fprintf(stderr, "Error clearing %s: %v\n", handle, err)
				}
				code = 1
				continue
			}
			fmt.Fprintf(stdout, "cleared %s\n", handle)
		}
		return code
	default:
		fmt.Fprintf(stderr, "Error: unknown cache command %q\n", sub)
		return 2
	}
}

func cacheList(ctx context.Context, store storage.CacheStore, stdout, stderr io.Writer) int {
	handles, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing cache: %v\n", err)
		return 1
	}
	if len(handles) == 0 {
		fmt.Fprintln(stdout, "No cached channels.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tCHANNEL ID\tVIDEOS\tPROCESSED")
	for _, handle := range handles {
		entry, err := store.Load(ctx, handle)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t%v\n", handle, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			handle,
			entry.ChannelID,
			len(entry.Videos),
			entry.LastProcessedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush()
	return 0
}

func cmdTranscript(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transcript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	langStr := fs.String("lang", "en", "Comma-separated preferred language codes")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytcollect transcript [flags] <video-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: missing video-id\n")
		fs.Usage()
		return 2
	}

	var languages []string
	for _, lang := range strings.Split(*langStr, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			languages = append(languages, lang)
		}
	}

	client := httpclient.New(nil)
	defer client.Close()
	fetcher := youtube.NewTranscriptFetcher(client, languages, slog.New(slog.NewTextHandler(stderr, nil)))

	text, err := fetcher.Extract(ctx, fs.Arg(0))
	if err != nil {
		if errors.Is(err, youtube.ErrTranscriptUnavailable) {
			fmt.Fprintln(stderr, "No transcript available for this video")
		} else {
			fmt.Fprintf(stderr, "Error fetching transcript: %v\n", err)
		}
		return 1
	}
	fmt.Fprintln(stdout, text)
	return 0
}
