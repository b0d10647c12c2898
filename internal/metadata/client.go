// Package metadata looks up canonical recordings in a
// MusicBrainz-compatible catalog. All calls share a 1 req/s rate
// limiter and a short-lived response cache, and results are sorted
// deterministically because the upstream returns tied scores in
// arbitrary order.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tonearm/tonearm/internal/music"
)

var (
	ErrReleaseNotFound = errors.New("release not found")
	ErrRateLimited     = errors.New("metadata API rate limited")
	ErrAPIError        = errors.New("metadata API error")
	ErrEmptyQuery      = errors.New("empty metadata query")
)

// DefaultBaseURL is the public MusicBrainz web service.
const DefaultBaseURL = "https://musicbrainz.org/ws/2"

const (
	defaultTimeout = 10 * time.Second
	defaultLimit   = 10
)

// Config holds the catalog connection settings. AppName, AppVersion
// and Contact feed the User-Agent the upstream requires.
type Config struct {
	BaseURL    string
	AppName    string
	AppVersion string
	Contact    string
	Timeout    time.Duration
}

// Client queries the recording catalog.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	cache      *Cache
	logger     zerolog.Logger
}

// NewClient builds a Client with a 1 request/second limiter, matching
// the upstream's fair-use policy.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AppName == "" {
		cfg.AppName = "tonearm"
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "dev"
	}
	contact := cfg.Contact
	if contact == "" {
		contact = "https://github.com/tonearm/tonearm"
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  fmt.Sprintf("%s/%s ( %s )", cfg.AppName, cfg.AppVersion, contact),
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		cache:      NewCache(DefaultCacheConfig()),
		logger:     logger.With().Str("component", "metadata").Logger(),
	}
}

// SearchRecordings finds recordings matching the query text, narrowed
// by artist when given. The upstream returns tied scores in arbitrary
// order and paginates unpredictably, so the client over-fetches a
// stable superset and sorts locally by (score desc, mbid asc) before
// taking limit entries.
func (c *Client) SearchRecordings(ctx context.Context, query, artist string, limit int) ([]music.MetadataRelease, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var parts []string
	if query != "" {
		parts = append(parts, fmt.Sprintf("recording:\"%s\"", luceneEscape(query)))
	}
	if artist != "" {
		parts = append(parts, fmt.Sprintf("artist:\"%s\"", luceneEscape(artist)))
	}
	if len(parts) == 0 {
		return nil, ErrEmptyQuery
	}
	lucene := strings.Join(parts, " AND ")

	cacheKey := fmt.Sprintf("search:%s|%d", lucene, limit)
	if cached, ok := c.cache.GetReleases(cacheKey); ok {
		return cached, nil
	}

	fetchLimit := max(100, limit*5)

	params := url.Values{}
	params.Set("query", lucene)
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(fetchLimit))

	var response searchResponse
	if err := c.doRequest(ctx, c.baseURL+"/recording", params, &response); err != nil {
		return nil, err
	}

	releases := make([]music.MetadataRelease, 0, len(response.Recordings))
	for _, rec := range response.Recordings {
		releases = append(releases, toRelease(rec, rec.Score))
	}

	sort.Slice(releases, func(i, j int) bool {
		if releases[i].Score != releases[j].Score {
			return releases[i].Score > releases[j].Score
		}
		return releases[i].MBID < releases[j].MBID
	})
	if len(releases) > limit {
		releases = releases[:limit]
	}

	c.logger.Debug().
		Str("query", query).
		Str("artist", artist).
		Int("fetched", len(response.Recordings)).
		Int("returned", len(releases)).
		Msg("Recording search completed")

	c.cache.Set(cacheKey, releases)
	return releases, nil
}

// LookupRecording fetches a single recording by its MBID. A direct
// lookup is a perfect match, so the score is pinned to 100.
func (c *Client) LookupRecording(ctx context.Context, mbid string) (music.MetadataRelease, error) {
	if mbid == "" {
		return music.MetadataRelease{}, ErrEmptyQuery
	}

	cacheKey := "recording:" + mbid
	if cached, ok := c.cache.GetRelease(cacheKey); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("inc", "artists+releases")
	params.Set("fmt", "json")

	var rec recording
	if err := c.doRequest(ctx, c.baseURL+"/recording/"+url.PathEscape(mbid), params, &rec); err != nil {
		return music.MetadataRelease{}, err
	}
	if rec.ID == "" {
		rec.ID = mbid
	}

	release := toRelease(rec, 100)
	c.cache.Set(cacheKey, release)
	return release, nil
}

// doRequest waits for a limiter slot, performs the GET, and decodes
// the JSON body into result.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := endpoint
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", endpoint).
			Msg("Metadata API error")

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrReleaseNotFound
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type searchResponse struct {
	Count      int         `json:"count"`
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID           string         `json:"id"`
	Score        int            `json:"score"`
	Title        string         `json:"title"`
	Length       int            `json:"length"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Releases     []release      `json:"releases"`
}

type artistCredit struct {
	Name string `json:"name"`
}

type release struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

// toRelease maps a wire recording onto the domain type. Album and
// year come from the first listed release.
func toRelease(rec recording, score int) music.MetadataRelease {
	artist := "Unknown Artist"
	if len(rec.ArtistCredit) > 0 && rec.ArtistCredit[0].Name != "" {
		artist = rec.ArtistCredit[0].Name
	}

	title := rec.Title
	if title == "" {
		title = "Unknown Title"
	}

	var album string
	var year int
	if len(rec.Releases) > 0 {
		album = rec.Releases[0].Title
		if date := rec.Releases[0].Date; len(date) >= 4 {
			if y, err := strconv.Atoi(date[:4]); err == nil {
				year = y
			}
		}
	}

	return music.MetadataRelease{
		MBID:       rec.ID,
		Artist:     artist,
		Title:      title,
		Album:      album,
		Year:       year,
		DurationMS: rec.Length,
		Score:      score,
	}
}

// luceneEscape protects quotes and backslashes inside a quoted lucene
// term.
func luceneEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
