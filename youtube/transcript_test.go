package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "ytcollect/http"
	"ytcollect/internal/retry"
)

const watchPageTemplate = `<!DOCTYPE html><html><head><script>var ytInitialPlayerResponse = %s;var meta = {};</script></head><body></body></html>`

func newTranscriptServer(t *testing.T, player func(base string) string, timedtext string) (*TranscriptFetcher, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") == "gone" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, watchPageTemplate, player(srv.URL))
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, timedtext)
	})

	cfg := httpclient.DefaultConfig()
	cfg.Retry = retry.NoRetry()
	cfg.RateLimiter = httpclient.RateLimiterConfig{}
	client := httpclient.New(cfg)
	t.Cleanup(func() { client.Close() })

	f := NewTranscriptFetcher(client, []string{"en"}, nil)
	f.SetWatchURL(srv.URL + "/watch")
	return f, srv
}

func captionsPlayer(tracks string) func(string) string {
	return func(base string) string {
		return fmt.Sprintf(`{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[%s]}}}`,
			fmt.Sprintf(tracks, base, base))
	}
}

const sampleTimedText = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0.0" dur="1.5">Hello   there</text>` +
	`<text start="1.5" dur="2.0">it&amp;#39;s a
test</text>` +
	`<text start="3.5" dur="1.0"></text>` +
	`<text start="4.5" dur="1.0">Tom &amp;amp; Jerry {braces}</text>` +
	`</transcript>`

func TestExtract_JoinsLines(t *testing.T) {
	f, _ := newTranscriptServer(t, captionsPlayer(
		`{"baseUrl":"%s/api/timedtext?lang=en","languageCode":"en","kind":"asr"},{"baseUrl":"%s/api/timedtext?lang=de","languageCode":"de"}`,
	), sampleTimedText)

	text, err := f.Extract(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Hello there it's a test Tom & Jerry {braces}", text)

	got := f.FetchTranscript(context.Background(), "abc")
	require.NotNil(t, got)
	assert.Equal(t, text, *got)
}

func TestExtract_NoCaptions(t *testing.T) {
	f, _ := newTranscriptServer(t, func(string) string {
		return `{"playabilityStatus":{"status":"OK"}}`
	}, sampleTimedText)

	_, err := f.Extract(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrTranscriptUnavailable)
	assert.Nil(t, f.FetchTranscript(context.Background(), "abc"))
}

func TestExtract_EmptyTrack(t *testing.T) {
	f, _ := newTranscriptServer(t, captionsPlayer(
		`{"baseUrl":"%s/api/timedtext?lang=en","languageCode":"en"},{"baseUrl":"%s/x","languageCode":"fr"}`,
	), `<transcript></transcript>`)

	_, err := f.Extract(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrTranscriptUnavailable)
}

func TestFetchTranscript_TransportErrorIsAbsence(t *testing.T) {
	f, _ := newTranscriptServer(t, captionsPlayer(`{"baseUrl":"%s/api/timedtext","languageCode":"en"},{"baseUrl":"%s","languageCode":"x"}`), sampleTimedText)

	_, err := f.Extract(context.Background(), "gone")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTranscriptUnavailable))
	assert.Nil(t, f.FetchTranscript(context.Background(), "gone"))
}

func TestPickBestTrack(t *testing.T) {
	manualEN := captionTrack{BaseURL: "u/en", LanguageCode: "en"}
	asrEN := captionTrack{BaseURL: "u/en-asr", LanguageCode: "en", Kind: "asr"}
	enGB := captionTrack{BaseURL: "u/en-gb", LanguageCode: "en-GB"}
	de := captionTrack{BaseURL: "u/de", LanguageCode: "de"}
	poToken := captionTrack{BaseURL: "u/en?x=1&exp=xpe", LanguageCode: "en"}

	tests := []struct {
		name   string
		tracks []captionTrack
		langs  []string
		want   captionTrack
		ok     bool
	}{
		{"manual preferred over asr", []captionTrack{asrEN, manualEN}, []string{"en"}, manualEN, true},
		{"asr in preferred language", []captionTrack{de, asrEN}, []string{"en"}, asrEN, true},
		{"preferred order", []captionTrack{manualEN, de}, []string{"de", "en"}, de, true},
		{"any english", []captionTrack{de, enGB}, []string{"fr"}, enGB, true},
		{"first usable", []captionTrack{de}, []string{"fr"}, de, true},
		{"po token skipped", []captionTrack{poToken, de}, []string{"en"}, de, true},
		{"nothing usable", []captionTrack{poToken}, []string{"en"}, captionTrack{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickBestTrack(tt.tracks, tt.langs)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1};var x`, `{"a":1}`},
		{`{"a":"}{"};`, `{"a":"}{"}`},
		{`{"a":"say \"}\""}rest`, `{"a":"say \"}\""}`},
		{`{"a":{"b":{}}}`, `{"a":{"b":{}}}`},
		{`{"a":"x\\"}tail`, `{"a":"x\\"}`},
		{`not json`, ``},
		{`{"open":`, ``},
	}
	for _, tt := range tests {
		got := string(extractJSON([]byte(tt.in)))
		assert.Equal(t, tt.want, got, "extractJSON(%q)", tt.in)
	}
}
