package youtube

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorLevels(t *testing.T) {
	quota := fmt.Errorf("%w: commentThreads.list v1", ErrQuotaExceeded)
	apiErr := &APIError{Op: "commentThreads.list", Target: "v1", Err: errors.New("backendError")}

	tests := []struct {
		name    string
		err     error
		channel bool
		video   bool
	}{
		{"channel not found", ErrChannelNotFound, true, false},
		{"quota", quota, true, false},
		{"api error", apiErr, true, false},
		{"video not found", fmt.Errorf("video v1: %w", ErrVideoNotFound), false, true},
		{"transcript unavailable", ErrTranscriptUnavailable, false, true},
		{"comment stream", &CommentFetchError{VideoID: "v1", Err: errors.New("reset")}, false, true},
		{"comment stream quota", &CommentFetchError{VideoID: "v1", Collected: 20, Err: quota}, false, true},
		{"comment stream api error", fmt.Errorf("v1: %w", &CommentFetchError{VideoID: "v1", Err: apiErr}), false, true},
		{"canceled", context.Canceled, false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.channel, IsChannelLevel(tt.err), "IsChannelLevel")
			assert.Equal(t, tt.video, IsVideoLevel(tt.err), "IsVideoLevel")
		})
	}
}
