// Package ytmusic implements a streaming catalog adapter backed by a
// Piped-compatible API. Search yields canonical YouTube Music page
// URLs; the playable stream URL is resolved separately on demand
// because upstream stream URLs expire within hours.
package ytmusic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/adapter"
	"github.com/tonearm/tonearm/internal/music"
	"github.com/tonearm/tonearm/internal/music/scoring"
)

const (
	defaultBaseURL = "https://pipedapi.kavin.rocks"
	defaultTimeout = 10 * time.Second

	// searchLimit caps how many catalog hits one query yields.
	searchLimit = 20

	// YouTube Music serves OPUS at up to 256 kbps for music content.
	defaultCodec   = "OPUS"
	defaultBitrate = "256 kbps"

	userAgent       = "tonearm/1.0"
	maxResponseSize = 10 * 1024 * 1024 // 10 MB
)

// Config holds the per-instance settings for the catalog adapter.
type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// Client queries one Piped-compatible catalog API.
type Client struct {
	config Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a streaming catalog adapter. Zero-valued config fields
// fall back to the reference Piped instance.
func New(config Config, logger zerolog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Name == "" {
		config.Name = "YouTube Music"
	}

	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("adapter", config.Name).Logger(),
	}
}

func (c *Client) Name() string {
	return c.config.Name
}

func (c *Client) Kind() music.SourceKind {
	return music.KindStreamYouTube
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	URL          string `json:"url"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Thumbnail    string `json:"thumbnail"`
	UploaderName string `json:"uploaderName"`
	Duration     int    `json:"duration"`
}

// Search queries the catalog for songs. Stream results never carry
// swarm fields, so seeder filters pass them through untouched.
func (c *Client) Search(ctx context.Context, query string) ([]music.Source, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("filter", "music_songs")

	var resp searchResponse
	err := adapter.DoRemote(ctx, c.config.BaseURL, func() error {
		return c.getJSON(ctx, c.config.BaseURL+"/search", params, &resp)
	})
	if err != nil {
		return nil, err
	}

	sources := make([]music.Source, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Type != "" && item.Type != "stream" {
			continue
		}
		videoID := extractVideoID(item.URL)
		if videoID == "" {
			continue
		}

		artist := strings.TrimSuffix(item.UploaderName, " - Topic")
		title := item.Title
		if artist != "" {
			title = fmt.Sprintf("%s - %s", artist, item.Title)
		}

		src := music.Source{
			ID:              videoID,
			Title:           title,
			Artist:          artist,
			Format:          defaultCodec,
			Kind:            music.KindStreamYouTube,
			URL:             "https://music.youtube.com/watch?v=" + videoID,
			Indexer:         "youtube_music",
			Codec:           defaultCodec,
			Bitrate:         defaultBitrate,
			ThumbnailURL:    item.Thumbnail,
			DurationSeconds: item.Duration,
		}
		src.QualityScore = scoring.Score(&src)

		sources = append(sources, src)
		if len(sources) == searchLimit {
			break
		}
	}

	c.logger.Debug().
		Str("query", query).
		Int("results", len(sources)).
		Msg("Catalog search completed")
	return sources, nil
}

type streamsResponse struct {
	AudioStreams []audioStream `json:"audioStreams"`
}

type audioStream struct {
	URL      string `json:"url"`
	Bitrate  int    `json:"bitrate"`
	MimeType string `json:"mimeType"`
	Codec    string `json:"codec"`
}

// ResolveStream exchanges a track id for the highest-bitrate playable
// audio URL.
func (c *Client) ResolveStream(ctx context.Context, trackID string) (string, error) {
	if trackID == "" {
		return "", fmt.Errorf("empty track id")
	}

	var resp streamsResponse
	err := adapter.DoRemote(ctx, c.config.BaseURL, func() error {
		return c.getJSON(ctx, c.config.BaseURL+"/streams/"+url.PathEscape(trackID), nil, &resp)
	})
	if err != nil {
		return "", err
	}

	var best *audioStream
	for i := range resp.AudioStreams {
		s := &resp.AudioStreams[i]
		if s.URL == "" {
			continue
		}
		if best == nil || s.Bitrate > best.Bitrate {
			best = s
		}
	}
	if best == nil {
		return "", fmt.Errorf("no audio streams for track %s", trackID)
	}
	return best.URL, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// extractVideoID pulls the v query parameter out of a watch URL,
// relative or absolute.
func extractVideoID(watchURL string) string {
	if watchURL == "" {
		return ""
	}
	u, err := url.Parse(watchURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}
