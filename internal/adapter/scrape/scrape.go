// Package scrape implements a two-stage HTML scraping adapter for
// torrent sites without an API. Stage one scrapes the search results
// table for detail page links, stage two fans out to the detail pages
// to collect magnet URIs and swarm metadata.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tonearm/tonearm/internal/adapter"
	"github.com/tonearm/tonearm/internal/music"
	"github.com/tonearm/tonearm/internal/music/extract"
	"github.com/tonearm/tonearm/internal/music/scoring"
)

const (
	defaultBaseURL = "https://1337x.to"
	defaultTimeout = 10 * time.Second

	// maxDetailPages bounds stage two; result rows past the first
	// twenty are rarely worth the extra requests.
	maxDetailPages = 20
	// detailConcurrency bounds parallel detail page fetches.
	detailConcurrency = 5

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	firstNumberPattern = regexp.MustCompile(`\d+`)
	sizeTextPattern    = regexp.MustCompile(`(?i)([\d,\.]+\s*[KMGT]?B)`)
)

// Config holds the per-instance settings for a scraping adapter.
type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// Client scrapes one torrent site.
type Client struct {
	config Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a scraping adapter. Zero-valued config fields fall back
// to 1337x.
func New(config Config, logger zerolog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Name == "" {
		config.Name = "1337x"
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

// Search scrapes the results page and resolves magnet URIs from the
// linked detail pages. Detail pages that fail or carry no magnet are
// dropped silently; only a failed results page counts as an adapter
// failure.
func (c *Client) Search(ctx context.Context, query string) ([]music.Source, error) {
	searchURL := fmt.Sprintf("%s/search/%s/1/", c.config.BaseURL, url.QueryEscape(query))

	var doc *goquery.Document
	err := adapter.DoRemote(ctx, c.config.BaseURL, func() error {
		var fetchErr error
		doc, fetchErr = c.fetchDocument(ctx, searchURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	detailURLs := c.detailLinks(doc)
	if len(detailURLs) == 0 {
		return nil, nil
	}

	results := make([]*music.Source, len(detailURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, detailURL := range detailURLs {
		g.Go(func() error {
			// A bad detail page drops one result, never the batch.
			results[i] = c.fetchDetail(gctx, detailURL)
			return nil
		})
	}
	g.Wait()

	sources := make([]music.Source, 0, len(results))
	for _, src := range results {
		if src != nil {
			sources = append(sources, *src)
		}
	}

	c.logger.Debug().
		Str("query", query).
		Int("detail_pages", len(detailURLs)).
		Int("results", len(sources)).
		Msg("Scrape search completed")
	return sources, nil
}

// detailLinks extracts up to maxDetailPages detail page URLs from the
// results table. The second anchor in the name cell links the detail
// page; the first is an icon link.
func (c *Client) detailLinks(doc *goquery.Document) []string {
	var links []string
	doc.Find("table.table-list tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		anchors := row.Find("td.coll-1 a")
		if anchors.Length() < 2 {
			return true
		}
		href, ok := anchors.Eq(1).Attr("href")
		if !ok || href == "" {
			return true
		}
		links = append(links, c.config.BaseURL+href)
		return len(links) < maxDetailPages
	})
	return links
}

// fetchDetail scrapes one detail page. Returns nil when the page
// fails to load or carries no magnet URI.
func (c *Client) fetchDetail(ctx context.Context, detailURL string) *music.Source {
	doc, err := c.fetchDocument(ctx, detailURL)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", detailURL).Msg("Detail page fetch failed")
		return nil
	}

	magnet, ok := doc.Find(`a[href^="magnet:?"]`).First().Attr("href")
	if !ok || magnet == "" {
		return nil
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = "Unknown"
	}

	var seeders, leechers int
	var sizeBytes int64
	doc.Find("li").Each(func(_ int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		switch {
		case strings.Contains(text, "Seeders"):
			seeders = firstNumber(text)
		case strings.Contains(text, "Leechers"):
			leechers = firstNumber(text)
		case strings.Contains(text, "Total size"), strings.Contains(text, "Size"):
			if m := sizeTextPattern.FindStringSubmatch(text); m != nil {
				sizeBytes = extract.ParseSize(m[1])
			}
		}
	})

	now := time.Now().UTC()
	src := music.Source{
		Title:      title,
		Format:     extract.Format(title),
		Kind:       music.KindTorrent,
		URL:        magnet,
		MagnetLink: magnet,
		Indexer:    c.config.Name,
		Seeders:    &seeders,
		Leechers:   &leechers,
		SizeBytes:  sizeBytes,
		UploadedAt: &now,
		Bitrate:    extract.Bitrate(title),
	}
	src.ID = src.Identity()
	src.QualityScore = scoring.Score(&src)
	return &src
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func firstNumber(s string) int {
	m := firstNumberPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}
