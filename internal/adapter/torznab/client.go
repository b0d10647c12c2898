// Package torznab implements a source adapter for torznab API proxies
// such as Jackett and Prowlarr, which front hundreds of torrent
// indexers behind one endpoint.
package torznab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/adapter"
	"github.com/tonearm/tonearm/internal/music"
)

// DefaultAudioCategories covers every torznab audio category so no
// format is excluded at the indexer side.
var DefaultAudioCategories = []int{
	3000, // Audio (general)
	3010, // Audio/MP3
	3020, // Audio/Video
	3030, // Audio/Audiobook
	3040, // Audio/Lossless
	3050, // Audio/Other
}

const (
	defaultBaseURL = "http://localhost:9117"
	defaultTimeout = 15 * time.Second
	userAgent      = "tonearm/1.0"

	maxResponseSize = 10 * 1024 * 1024 // 10 MB
)

// Config holds the per-instance settings for a torznab adapter.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	IndexerID  string
	Categories []int
	Timeout    time.Duration
}

// Client queries one torznab endpoint.
type Client struct {
	config Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a torznab adapter. Zero-valued config fields fall back
// to a local Jackett instance searching all configured indexers.
func New(config Config, logger zerolog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.IndexerID == "" {
		config.IndexerID = "all"
	}
	if len(config.Categories) == 0 {
		config.Categories = DefaultAudioCategories
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("Jackett (%s)", config.IndexerID)
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
	return music.KindTorrent
}

// Search runs a torznab text search across the configured audio
// categories. An unconfigured API key yields no results rather than
// an error so an empty profile entry stays harmless.
func (c *Client) Search(ctx context.Context, query string) ([]music.Source, error) {
	if c.config.APIKey == "" {
		c.logger.Debug().Msg("No API key configured, skipping search")
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/v2.0/indexers/%s/results/torznab/api",
		c.config.BaseURL, url.PathEscape(c.config.IndexerID))

	cats := make([]string, len(c.config.Categories))
	for i, cat := range c.config.Categories {
		cats[i] = strconv.Itoa(cat)
	}

	params := url.Values{}
	params.Set("apikey", c.config.APIKey)
	params.Set("t", "search")
	params.Set("q", query)
	params.Set("cat", strings.Join(cats, ","))

	var sources []music.Source
	err := adapter.DoRemote(ctx, c.config.BaseURL, func() error {
		body, err := c.fetch(ctx, endpoint, params)
		if err != nil {
			return err
		}
		parsed, err := ParseFeed(body, c.config.Name)
		if err != nil {
			return fmt.Errorf("parse torznab feed: %w", err)
		}
		sources = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("query", query).
		Int("results", len(sources)).
		Msg("Torznab search completed")
	return sources, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
