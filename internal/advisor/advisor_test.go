package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/music"
)

// completionBody wraps assistant content in a minimal chat-completion
// response.
func completionBody(content string) string {
	payload := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

// newTestClient points a Client at a stub server that always answers
// with the given assistant content.
func newTestClient(t *testing.T, content string) (*Client, *Tracker) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(content))
	}))
	t.Cleanup(srv.Close)

	tracker := NewTracker(DefaultModel)
	client := New(Config{APIKey: "test-key", BaseURL: srv.URL}, tracker, zerolog.Nop())
	return client, tracker
}

func sampleCandidate(id, title string, seeders int, score float64) music.Source {
	return music.Source{
		ID:           id,
		Title:        title,
		Format:       "FLAC",
		Kind:         music.KindTorrent,
		URL:          "magnet:?xt=urn:btih:" + id,
		MagnetLink:   "magnet:?xt=urn:btih:" + id,
		SizeBytes:    512 * 1024 * 1024,
		Seeders:      &seeders,
		QualityScore: score,
		Indexer:      "Jackett (all)",
	}
}

func sampleRelease(mbid, artist, title, album string) music.MetadataRelease {
	return music.MetadataRelease{MBID: mbid, Artist: artist, Title: title, Album: album, Score: 90}
}

func TestParseQuery(t *testing.T) {
	content := "Here is the parse:\n```json\n" +
		`{"artist": "Radiohead", "song": null, "album": "OK Computer", "search_type": "album", "confidence": 0.95, "ambiguous": false}` +
		"\n```"
	client, tracker := newTestClient(t, content)

	parsed, err := client.ParseQuery(context.Background(), "radiohead ok computer")
	if err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}

	if parsed.Artist != "Radiohead" {
		t.Errorf("Artist = %q, want Radiohead", parsed.Artist)
	}
	if parsed.Song != "" {
		t.Errorf("Song = %q, want empty for null", parsed.Song)
	}
	if parsed.Album != "OK Computer" {
		t.Errorf("Album = %q, want OK Computer", parsed.Album)
	}
	if parsed.SearchType != music.SearchTypeAlbum {
		t.Errorf("SearchType = %q, want album", parsed.SearchType)
	}
	if parsed.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", parsed.Confidence)
	}

	stats := tracker.Snapshot()
	if stats.APICalls != 1 {
		t.Errorf("APICalls = %d, want 1", stats.APICalls)
	}
	if stats.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", stats.TotalTokens)
	}
}

func TestParseQueryNormalizesSearchType(t *testing.T) {
	client, _ := newTestClient(t, `{"artist": "Daft Punk", "search_type": "Playlist", "confidence": 0.7}`)

	parsed, err := client.ParseQuery(context.Background(), "daft punk essentials")
	if err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}
	if parsed.SearchType != music.SearchTypeUnknown {
		t.Errorf("SearchType = %q, want unknown for unrecognized value", parsed.SearchType)
	}
}

func TestParseQueryNoJSON(t *testing.T) {
	client, _ := newTestClient(t, "I cannot help with that request.")

	if _, err := client.ParseQuery(context.Background(), "radiohead"); err == nil {
		t.Fatal("ParseQuery() error = nil, want error for prose response")
	}
}

func TestParseQueryUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	client := New(Config{APIKey: "bad-key", BaseURL: srv.URL}, nil, zerolog.Nop())

	if _, err := client.ParseQuery(context.Background(), "radiohead"); err == nil {
		t.Fatal("ParseQuery() error = nil, want upstream error")
	}
}

func TestRequestShape(t *testing.T) {
	type chatRequest struct {
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	var (
		got  chatRequest
		path string
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(`{"artist": "Radiohead", "search_type": "discography", "confidence": 0.9}`))
	}))
	t.Cleanup(srv.Close)

	client := New(Config{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL}, nil, zerolog.Nop())
	if _, err := client.ParseQuery(context.Background(), "radiohead"); err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}

	if !strings.HasSuffix(path, "/chat/completions") {
		t.Errorf("request path = %q, want /chat/completions suffix", path)
	}
	if auth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", auth)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", got.Model)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", got.Temperature)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want a single user message", got.Messages)
	}
	if !strings.Contains(got.Messages[0].Content, `"radiohead"`) {
		t.Errorf("prompt does not quote the query: %q", got.Messages[0].Content)
	}
}

func TestSelectCandidate(t *testing.T) {
	content := `{
		"selected_index": 1,
		"reasoning": "24-bit FLAC with the most seeders",
		"top_3": [
			{"index": 1, "reason": "hi-res"},
			{"index": 99, "reason": "ghost entry"},
			{"index": 0, "reason": "solid 16-bit"}
		],
		"rejected_sample": [
			{"index": 2, "reason": "wrong album"}
		]
	}`
	client, _ := newTestClient(t, content)

	candidates := []music.Source{
		sampleCandidate("aaa", "OK Computer [16bit FLAC]", 30, 80),
		sampleCandidate("bbb", "OK Computer [24bit FLAC]", 42, 95),
		sampleCandidate("ccc", "In Rainbows [FLAC]", 50, 85),
	}

	decision, err := client.SelectCandidate(context.Background(), "radiohead ok computer", candidates, music.SelectionPreferences{})
	if err != nil {
		t.Fatalf("SelectCandidate() error = %v", err)
	}

	if decision.Selected.ID != "bbb" {
		t.Errorf("Selected.ID = %q, want bbb", decision.Selected.ID)
	}
	if decision.Reasoning != "24-bit FLAC with the most seeders" {
		t.Errorf("Reasoning = %q", decision.Reasoning)
	}
	if len(decision.TopCandidates) != 2 {
		t.Errorf("TopCandidates = %d entries, want 2 (out-of-range dropped)", len(decision.TopCandidates))
	}
	if len(decision.Rejected) != 1 || decision.Rejected[0].Source.ID != "ccc" {
		t.Errorf("Rejected = %+v, want single ccc entry", decision.Rejected)
	}
	if decision.FallbackUsed {
		t.Error("FallbackUsed = true, want false on a clean answer")
	}
	if decision.AlbumMismatch {
		t.Error("AlbumMismatch = true, want false")
	}
}

func TestSelectCandidateAlbumMismatch(t *testing.T) {
	client, _ := newTestClient(t, `{"selected_index": -1, "reasoning": "no candidate matches OK Computer"}`)

	candidates := []music.Source{sampleCandidate("aaa", "In Rainbows [FLAC]", 50, 85)}

	_, err := client.SelectCandidate(context.Background(), "radiohead ok computer", candidates, music.SelectionPreferences{
		ExpectedAlbum:  "OK Computer",
		ExpectedArtist: "Radiohead",
	})
	if !errors.Is(err, ErrAlbumMismatch) {
		t.Fatalf("SelectCandidate() error = %v, want ErrAlbumMismatch", err)
	}
}

func TestSelectCandidateBadAnswers(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose only", "the second one looks best"},
		{"missing selected_index", `{"reasoning": "unclear"}`},
		{"index out of range", `{"selected_index": 7, "reasoning": "oops"}`},
		{"malformed json", `{"selected_index": }`},
	}

	candidates := []music.Source{
		sampleCandidate("aaa", "OK Computer [FLAC]", 30, 80),
		sampleCandidate("bbb", "OK Computer [MP3]", 10, 60),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.content)
			if _, err := client.SelectCandidate(context.Background(), "q", candidates, music.SelectionPreferences{}); err == nil {
				t.Error("SelectCandidate() error = nil, want error")
			}
		})
	}
}

func TestSelectCandidateEmptyInput(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, completionBody("{}"))
	}))
	t.Cleanup(srv.Close)

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil, zerolog.Nop())

	if _, err := client.SelectCandidate(context.Background(), "q", nil, music.SelectionPreferences{}); err == nil {
		t.Error("SelectCandidate() error = nil, want error for empty candidates")
	}
	if calls.Load() != 0 {
		t.Errorf("upstream calls = %d, want 0 for empty candidates", calls.Load())
	}
}

func TestSelectionPromptPreferences(t *testing.T) {
	prompt := buildSelectionPrompt("q", "CANDIDATES", music.SelectionPreferences{
		Format:         "FLAC",
		PreferSongOnly: true,
		ExpectedAlbum:  "OK Computer",
		ExpectedArtist: "Radiohead",
	})

	for _, want := range []string{
		"CRITICAL FILTER",
		`"OK Computer"`,
		"Radiohead",
		"MUST match format: FLAC",
		"single-track/song-only",
		"Single tracks/songs > Albums",
		`"selected_index": -1`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("selection prompt missing %q", want)
		}
	}

	plain := buildSelectionPrompt("q", "CANDIDATES", music.SelectionPreferences{})
	if strings.Contains(plain, "CRITICAL FILTER") {
		t.Error("album filter block present without expected album")
	}
	if !strings.Contains(plain, "Proper album releases > compilations") {
		t.Error("album completeness criteria missing without prefer_song_only")
	}
}

func TestGroupReleases(t *testing.T) {
	content := `{
		"search_type": "song",
		"explanation": "Karma Police appears on two releases",
		"groups": [
			{"index": 0, "label": "OK Computer (1997)", "reason": "original album", "recommended": true},
			{"index": 2, "label": "OK Computer OKNOTOK", "reason": "reissue with extras"},
			{"index": 9, "label": "ghost", "reason": "out of range"}
		]
	}`
	client, _ := newTestClient(t, content)

	releases := []music.MetadataRelease{
		sampleRelease("mbid-1", "Radiohead", "Karma Police", "OK Computer"),
		sampleRelease("mbid-2", "Radiohead", "Karma Police", "Greatest Hits"),
		sampleRelease("mbid-3", "Radiohead", "Karma Police", "OKNOTOK 1997 2017"),
	}
	parsed := music.ParsedQuery{Artist: "Radiohead", Song: "Karma Police", SearchType: music.SearchTypeSong}

	grouping, err := client.GroupReleases(context.Background(), releases, parsed, 5)
	if err != nil {
		t.Fatalf("GroupReleases() error = %v", err)
	}

	if len(grouping.Releases) != 2 {
		t.Fatalf("Releases = %d entries, want 2 (out-of-range dropped)", len(grouping.Releases))
	}
	if grouping.Releases[0].Release.MBID != "mbid-1" || !grouping.Releases[0].Recommended {
		t.Errorf("first group = %+v, want recommended mbid-1", grouping.Releases[0])
	}
	if grouping.Releases[1].Recommended {
		t.Error("second group recommended, want false")
	}
	if grouping.SearchType != music.SearchTypeSong {
		t.Errorf("SearchType = %q, want song", grouping.SearchType)
	}
	if grouping.Explanation == "" {
		t.Error("Explanation is empty")
	}
}

func TestGroupReleasesNoValidGroups(t *testing.T) {
	client, _ := newTestClient(t, `{"search_type": "song", "groups": [{"index": 42, "label": "ghost"}]}`)

	releases := []music.MetadataRelease{sampleRelease("mbid-1", "Radiohead", "Karma Police", "OK Computer")}

	if _, err := client.GroupReleases(context.Background(), releases, music.ParsedQuery{}, 5); err == nil {
		t.Fatal("GroupReleases() error = nil, want error when every index is invalid")
	}
}

func TestGroupReleasesEmptyInput(t *testing.T) {
	client, _ := newTestClient(t, "{}")

	if _, err := client.GroupReleases(context.Background(), nil, music.ParsedQuery{}, 5); err == nil {
		t.Fatal("GroupReleases() error = nil, want error for empty releases")
	}
}

func TestOptimizeQuery(t *testing.T) {
	client, _ := newTestClient(t, `"Radiohead OK Computer FLAC"`)

	optimized, err := client.OptimizeQuery(context.Background(), "ok computer", "no results found")
	if err != nil {
		t.Fatalf("OptimizeQuery() error = %v", err)
	}
	if optimized != "Radiohead OK Computer FLAC" {
		t.Errorf("OptimizeQuery() = %q, want surrounding quotes stripped", optimized)
	}
}

func TestFormatCandidates(t *testing.T) {
	seeders := 42
	candidates := []music.Source{
		{
			ID: "aaa", Title: "OK Computer [24bit FLAC]", Format: "FLAC", Bitrate: "24bit Lossless",
			Kind: music.KindTorrent, SizeBytes: 2 * 1024 * 1024 * 1024, Seeders: &seeders,
			Indexer: "Jackett (all)", QualityScore: 88.5,
		},
		{
			ID: "vid1", Title: "Karma Police", Kind: music.KindStreamYouTube,
			Codec: "OPUS", Bitrate: "256 kbps", Indexer: "YouTube Music", QualityScore: 45,
		},
	}

	text := formatCandidates(candidates)

	for _, want := range []string{
		"[0] OK Computer [24bit FLAC]",
		"Format: FLAC",
		"Seeders: 42",
		"Quality Score: 88.5",
		"[1] Karma Police",
		"Seeders: n/a",
		"Format: Unknown",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("formatCandidates() missing %q in:\n%s", want, text)
		}
	}
}

func TestFormatReleasesCap(t *testing.T) {
	releases := make([]music.MetadataRelease, 30)
	for i := range releases {
		releases[i] = sampleRelease(fmt.Sprintf("mbid-%d", i), "Artist", "Title", "")
	}

	text := formatReleases(releases)

	if !strings.Contains(text, "[19]") {
		t.Error("formatReleases() dropped entry 19")
	}
	if strings.Contains(text, "[20]") {
		t.Error("formatReleases() rendered entry 20, want cap at 20 entries")
	}
}
