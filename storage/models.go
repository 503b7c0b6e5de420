package storage

import "time"

// ChannelCacheEntry is the persisted snapshot of one fully processed channel.
// It is written once per successful run and replaced as a whole.
type ChannelCacheEntry struct {
	ChannelHandle   string        `json:"channel_handle"`
	ChannelID       string        `json:"channel_id"`
	Videos          []VideoRecord `json:"videos"`
	LastProcessedAt time.Time     `json:"last_processed_at"`
}

// VideoRecord is the normalized record for one video: API metadata, the
// transcript and the top comments.
type VideoRecord struct {
	ChannelHandle string `json:"channel_handle"`
	ChannelID     string `json:"channel_id"`
	VideoID       string `json:"video_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	PublishedAt   string `json:"published_at"` // RFC 3339, as returned by the API
	Duration      string `json:"duration"`     // ISO 8601, e.g. PT1H2M3S
	ViewCount     int64  `json:"view_count"`
	LikeCount     int64  `json:"like_count"`
	CommentCount  int64  `json:"comment_count"`
	// Transcript is nil when no transcript could be retrieved.
	Transcript  *string         `json:"transcript"`
	Comments    []CommentRecord `json:"comments"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// HasTranscript reports whether a transcript was retrieved for the video.
func (v VideoRecord) HasTranscript() bool {
	return v.Transcript != nil
}

// CommentRecord is one top-level comment of a video.
type CommentRecord struct {
	VideoID         string `json:"video_id"`
	CommentID       string `json:"comment_id"`
	Text            string `json:"text"`
	Time            string `json:"time"` // relative, e.g. "3 days ago"
	AuthorHandle    string `json:"author"`
	AuthorChannelID string `json:"author_channel_id"`
	Votes           int64  `json:"votes"`
	Replies         int64  `json:"replies"`
}

// VideoIDs returns the video IDs of the entry in stored order.
func (e *ChannelCacheEntry) VideoIDs() []string {
	ids := make([]string, 0, len(e.Videos))
	for _, v := range e.Videos {
		ids = append(ids, v.VideoID)
	}
	return ids
}
