package torznab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/music"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <title>Jackett</title>
    <item>
      <title>Radiohead - OK Computer (1997) [FLAC 24bit]</title>
      <guid>https://tracker.example.org/details/1</guid>
      <link>https://tracker.example.org/dl/1</link>
      <category>3040</category>
      <size>1073741824</size>
      <pubDate>Mon, 01 Jan 2024 12:00:00 +0000</pubDate>
      <jackettindexer id="rutracker">RuTracker</jackettindexer>
      <torznab:attr name="seeders" value="42" />
      <torznab:attr name="peers" value="7" />
      <torznab:attr name="magneturl" value="magnet:?xt=urn:btih:C9E15763F722F23E98A29DECDFAE341B98D53056&amp;dn=OK+Computer" />
    </item>
    <item>
      <title>Radiohead - OK Computer [MP3 320]</title>
      <guid>https://tracker.example.org/details/2</guid>
      <link>https://tracker.example.org/dl/2</link>
      <category>3010</category>
      <torznab:attr name="seeders" value="10" />
      <torznab:attr name="peers" value="2" />
    </item>
    <item>
      <title>Radiohead - In Rainbows</title>
      <guid>https://tracker.example.org/details/3</guid>
      <link>magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&amp;dn=In+Rainbows</link>
      <category>3010</category>
      <torznab:attr name="size" value="120000000" />
      <torznab:attr name="indexer" value="1337x" />
    </item>
  </channel>
</rss>`

func TestParseFeed(t *testing.T) {
	sources, err := ParseFeed([]byte(sampleFeed), "Jackett (all)")
	if err != nil {
		t.Fatalf("ParseFeed() error = %v", err)
	}

	// The second item has no magnet URI at all and must be dropped.
	if len(sources) != 2 {
		t.Fatalf("ParseFeed() returned %d sources, want 2", len(sources))
	}

	first := sources[0]
	if first.ID != "c9e15763f722f23e98a29decdfae341b98d53056" {
		t.Errorf("ID = %q, want lowercase infohash", first.ID)
	}
	if first.Format != "FLAC" {
		t.Errorf("Format = %q, want FLAC", first.Format)
	}
	if first.Indexer != "RuTracker" {
		t.Errorf("Indexer = %q, want RuTracker", first.Indexer)
	}
	if first.Seeders == nil || *first.Seeders != 42 {
		t.Errorf("Seeders = %v, want 42", first.Seeders)
	}
	if first.Leechers == nil || *first.Leechers != 7 {
		t.Errorf("Leechers = %v, want 7", first.Leechers)
	}
	if first.SizeBytes != 1073741824 {
		t.Errorf("SizeBytes = %d, want 1073741824", first.SizeBytes)
	}
	if first.Kind != music.KindTorrent {
		t.Errorf("Kind = %q, want torrent", first.Kind)
	}
	wantDate := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if first.UploadedAt == nil || !first.UploadedAt.Equal(wantDate) {
		t.Errorf("UploadedAt = %v, want %v", first.UploadedAt, wantDate)
	}
	// FLAC 200 + 24bit 60 + seeders 84 + size 50
	if first.QualityScore != 394 {
		t.Errorf("QualityScore = %v, want 394", first.QualityScore)
	}

	second := sources[1]
	if second.URL != "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&dn=In+Rainbows" {
		t.Errorf("URL = %q, want magnet link from <link>", second.URL)
	}
	if second.ID != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("ID = %q, want infohash from link", second.ID)
	}
	if second.Format != "MP3" {
		t.Errorf("Format = %q, want MP3 inferred from category 3010", second.Format)
	}
	if second.SizeBytes != 120000000 {
		t.Errorf("SizeBytes = %d, want size from torznab attr", second.SizeBytes)
	}
	if second.Indexer != "1337x" {
		t.Errorf("Indexer = %q, want 1337x from indexer attr", second.Indexer)
	}
}

func TestParseFeedInvalidXML(t *testing.T) {
	if _, err := ParseFeed([]byte("not xml at all"), "Jackett"); err == nil {
		t.Error("ParseFeed() should fail on invalid XML")
	}
}

func TestParseFeedEmptyChannel(t *testing.T) {
	feed := `<?xml version="1.0"?><rss version="2.0"><channel><title>empty</title></channel></rss>`
	sources, err := ParseFeed([]byte(feed), "Jackett")
	if err != nil {
		t.Fatalf("ParseFeed() error = %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("ParseFeed() returned %d sources, want 0", len(sources))
	}
}

func TestFormatFromCategory(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		categories []string
		want       string
	}{
		{"lossless category", "Some Album", []string{"3040"}, "FLAC"},
		{"mp3 category", "Some Album", []string{"3010"}, "MP3"},
		{"audiobook category", "Some Book", []string{"3030"}, "AAC"},
		{"general category with flac hint", "Album 24-bit remaster", []string{"3000"}, "FLAC"},
		{"general category with mp3 hint", "Album 320k cbr", []string{"3000"}, "MP3"},
		{"general category with aac hint", "Album aac encode", []string{"3050"}, "AAC"},
		{"general category without hints", "Some Album", []string{"3000"}, ""},
		{"unknown category", "Some Album", []string{"2000"}, ""},
		{"non-numeric category", "Some Album", []string{"Audio"}, ""},
		{"no categories", "Some Album", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatFromCategory(tt.title, tt.categories); got != tt.want {
				t.Errorf("formatFromCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePubDate(t *testing.T) {
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	got := parsePubDate("Mon, 01 Jan 2024 12:00:00 +0000")
	if !got.Equal(want) {
		t.Errorf("parsePubDate() = %v, want %v", got, want)
	}

	fallback := parsePubDate("not a date")
	if fallback.IsZero() {
		t.Error("parsePubDate() should default to now on failure")
	}
	if time.Since(fallback) > time.Minute {
		t.Errorf("parsePubDate() fallback = %v, want close to now", fallback)
	}
}

func TestClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2.0/indexers/all/results/torznab/api" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("apikey") != "secret" {
			t.Errorf("apikey = %q, want secret", q.Get("apikey"))
		}
		if q.Get("t") != "search" {
			t.Errorf("t = %q, want search", q.Get("t"))
		}
		if q.Get("q") != "Radiohead OK Computer" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if q.Get("cat") != "3000,3010,3020,3030,3040,3050" {
			t.Errorf("cat = %q", q.Get("cat"))
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "secret"}, zerolog.Nop())

	sources, err := client.Search(context.Background(), "Radiohead OK Computer")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("Search() returned %d sources, want 2", len(sources))
	}
}

func TestClientSearchWithoutAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called without an API key")
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, zerolog.Nop())

	sources, err := client.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("Search() returned %d sources, want 0", len(sources))
	}
}

func TestClientSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "secret"}, zerolog.Nop())

	if _, err := client.Search(context.Background(), "anything"); err == nil {
		t.Error("Search() should surface HTTP errors")
	}
}

func TestClientDefaults(t *testing.T) {
	client := New(Config{}, zerolog.Nop())

	if client.Name() != "Jackett (all)" {
		t.Errorf("Name() = %q, want Jackett (all)", client.Name())
	}
	if client.Kind() != music.KindTorrent {
		t.Errorf("Kind() = %q, want torrent", client.Kind())
	}
	if client.config.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.config.Timeout, defaultTimeout)
	}
	if len(client.config.Categories) != 6 {
		t.Errorf("Categories = %v, want all six audio categories", client.config.Categories)
	}
}
