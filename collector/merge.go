package collector

import (
	"time"

	"ytcollect/storage"
	"ytcollect/youtube"
)

// Merger assembles the normalized record for one video.
type Merger struct {
	// MaxComments caps the comments kept per video. Values <= 0 keep none.
	MaxComments int
	// Now stamps ProcessedAt. Nil uses time.Now.
	Now func() time.Time
}

// Merge combines statistics, transcript and comments into a VideoRecord for
// channel. A nil transcript stays nil. The comment slice is copied so the
// record never aliases the caller's backing array.
func (m Merger) Merge(channel Channel, stats *youtube.VideoStatistics, transcript *string, comments []storage.CommentRecord) storage.VideoRecord {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	rec := storage.VideoRecord{
		ChannelHandle: channel.Handle,
		ChannelID:     channel.ID,
		Transcript:    transcript,
		ProcessedAt:   now().UTC(),
	}
	if stats != nil {
		rec.VideoID = stats.VideoID
		rec.Title = stats.Title
		rec.Description = stats.Description
		rec.PublishedAt = stats.PublishedAt
		rec.Duration = stats.Duration
		rec.ViewCount = stats.ViewCount
		rec.LikeCount = stats.LikeCount
		rec.CommentCount = stats.CommentCount
	}

	n := min(len(comments), max(m.MaxComments, 0))
	rec.Comments = make([]storage.CommentRecord, n)
	copy(rec.Comments, comments[:n])
	for i := range rec.Comments {
		rec.Comments[i].VideoID = rec.VideoID
	}
	return rec
}

// Channel identifies the channel a record belongs to.
type Channel struct {
	Handle string
	ID     string
}
