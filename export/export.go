// Package export writes collected records as JSON and CSV files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ytcollect/storage"
)

// Format selects which files Export writes.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatBoth Format = "both"
)

// TimestampLayout names the files of one export.
const TimestampLayout = "20060102_150405"

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("export: unknown format")

// ParseFormat accepts json, csv or both, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatBoth:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ExportError reports a file that could not be written.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export: write %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

var videoHeader = []string{
	"channel_handle", "channel_id", "video_id", "title", "description",
	"published_at", "duration", "view_count", "like_count", "comment_count",
	"transcript", "comments_count", "processed_at",
}

var commentHeader = []string{
	"video_id", "channel_handle", "comment_id", "comment_text", "comment_time",
	"comment_author", "comment_channel", "comment_votes", "comment_replies",
}

// Exporter writes one set of output files per call.
type Exporter struct {
	// Now names the files. Nil uses time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Export writes records to outputDir and returns the paths written. The
// directory is created if needed. On failure no output file of this call
// is left behind.
func (e *Exporter) Export(records []storage.VideoRecord, format Format, outputDir string) ([]string, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []storage.VideoRecord{}
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &ExportError{Path: outputDir, Err: err}
	}

	ts := now().Format(TimestampLayout)
	type job struct {
		name  string
		write func(io.Writer) error
	}
	var jobs []job
	if format == FormatJSON || format == FormatBoth {
		jobs = append(jobs, job{"youtube_data_" + ts + ".json", func(w io.Writer) error { return writeJSON(w, records) }})
	}
	if format == FormatCSV || format == FormatBoth {
		jobs = append(jobs,
			job{"youtube_data_" + ts + ".csv", func(w io.Writer) error { return writeVideoCSV(w, records) }},
			job{"youtube_comments_" + ts + ".csv", func(w io.Writer) error { return writeCommentCSV(w, records) }},
		)
	}

	var written []string
	for _, j := range jobs {
		path := filepath.Join(outputDir, j.name)
		if err := storage.WriteFileAtomic(path, j.write); err != nil {
			for _, p := range written {
				os.Remove(p)
			}
			return nil, &ExportError{Path: path, Err: err}
		}
		written = append(written, path)
		logger.Info("exported", "path", path, "videos", len(records))
	}
	return written, nil
}

func writeJSON(w io.Writer, records []storage.VideoRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}

func writeVideoCSV(w io.Writer, records []storage.VideoRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(videoHeader); err != nil {
		return err
	}
	for _, r := range records {
		transcript := ""
		if r.Transcript != nil {
			transcript = *r.Transcript
		}
		row := []string{
			r.ChannelHandle,
			r.ChannelID,
			r.VideoID,
			r.Title,
			r.Description,
			r.PublishedAt,
			r.Duration,
			strconv.FormatInt(r.ViewCount, 10),
			strconv.FormatInt(r.LikeCount, 10),
			strconv.FormatInt(r.CommentCount, 10),
			transcript,
			strconv.Itoa(len(r.Comments)),
			r.ProcessedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCommentCSV(w io.Writer, records []storage.VideoRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(commentHeader); err != nil {
		return err
	}
	for _, r := range records {
		for _, c := range r.Comments {
			row := []string{
				r.VideoID,
				r.ChannelHandle,
				c.CommentID,
				c.Text,
				c.Time,
				c.AuthorHandle,
				c.AuthorChannelID,
				strconv.FormatInt(c.Votes, 10),
				strconv.FormatInt(c.Replies, 10),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
