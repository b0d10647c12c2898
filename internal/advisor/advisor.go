// Package advisor talks to an OpenAI-compatible chat-completion
// endpoint to parse queries, group releases, and pick candidates.
// Every method returns an error on any defect in the model output;
// callers own the deterministic fallback.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/music"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "gpt-4o-mini"

const defaultTimeout = 30 * time.Second

// Models are expected to wrap their answer in prose or code fences,
// so the JSON object is cut out before decoding.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Config holds the connection settings for the advisor endpoint.
// BaseURL may point at any OpenAI-compatible server; empty means the
// official API.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client is a thin wrapper around the chat-completion API. All calls
// run with temperature 0 so repeated queries give stable answers.
type Client struct {
	api     openai.Client
	model   string
	tracker *Tracker
	logger  zerolog.Logger
}

// New builds a Client. The tracker may be nil when usage accounting
// is not wanted.
func New(cfg Config, tracker *Tracker, logger zerolog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		// The SDK resolves endpoint paths relative to the base URL and
		// drops its last segment unless it ends in a slash.
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}

	return &Client{
		api:     openai.NewClient(opts...),
		model:   cfg.Model,
		tracker: tracker,
		logger:  logger.With().Str("component", "advisor").Logger(),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// complete sends a single user message and returns the trimmed
// response text.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if c.tracker != nil {
		c.tracker.Record(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug().
		Str("model", c.model).
		Int("promptLen", len(prompt)).
		Int("responseLen", len(content)).
		Msg("Chat completion finished")

	return content, nil
}

// extractJSON cuts the first brace-to-last-brace span out of content
// and decodes it into v.
func extractJSON(content string, v any) error {
	raw := jsonObjectPattern.FindString(content)
	if raw == "" {
		return errors.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	return nil
}

const parsePromptTemplate = `Parse this music search query and extract structured information.

Query: %q

Respond in JSON format:
{
  "artist": "<artist name or null>",
  "song": "<song title or null>",
  "album": "<album name or null>",
  "search_type": "song|album|discography|unknown",
  "confidence": <0.0-1.0>,
  "ambiguous": <true|false>
}

Examples:
- "Esperanza Spalding I know" -> {"artist": "Esperanza Spalding", "song": "I Know You Know", "search_type": "song", "confidence": 0.8}
- "radiohead ok computer" -> {"artist": "Radiohead", "album": "OK Computer", "search_type": "album", "confidence": 0.95}
- "Miles Davis" -> {"artist": "Miles Davis", "search_type": "discography", "confidence": 0.9}
- "yesterday" -> {"song": "Yesterday", "search_type": "song", "ambiguous": true, "confidence": 0.4}

Parse the query above:`

type parsedQueryPayload struct {
	Artist     *string `json:"artist"`
	Song       *string `json:"song"`
	Album      *string `json:"album"`
	SearchType string  `json:"search_type"`
	Confidence float64 `json:"confidence"`
	Ambiguous  bool    `json:"ambiguous"`
}

// ParseQuery asks the model to break a free-form query into artist,
// song, and album parts. The caller validates confidence and falls
// back to heuristics on error.
func (c *Client) ParseQuery(ctx context.Context, query string) (music.ParsedQuery, error) {
	content, err := c.complete(ctx, fmt.Sprintf(parsePromptTemplate, query))
	if err != nil {
		return music.ParsedQuery{}, err
	}

	var payload parsedQueryPayload
	if err := extractJSON(content, &payload); err != nil {
		return music.ParsedQuery{}, err
	}

	parsed := music.ParsedQuery{
		Artist:     deref(payload.Artist),
		Song:       deref(payload.Song),
		Album:      deref(payload.Album),
		SearchType: normalizeSearchType(payload.SearchType),
		Confidence: payload.Confidence,
		Ambiguous:  payload.Ambiguous,
	}

	c.logger.Debug().
		Str("query", query).
		Str("artist", parsed.Artist).
		Str("searchType", string(parsed.SearchType)).
		Float64("confidence", parsed.Confidence).
		Msg("Query parsed")

	return parsed, nil
}

const optimizePromptTemplate = `You are a music search expert. Optimize this search query for better results.

Original query: %q
%s
Return ONLY the optimized query, nothing else. Consider:
- Adding album names for better specificity
- Removing ambiguous terms
- Including artist name if missing
- Standardizing format (e.g., "feat." vs "featuring")

Optimized query:`

// OptimizeQuery rewrites a query that produced poor results. The hint
// describes why a rewrite is wanted, e.g. "no results found". The
// caller keeps the original query on error.
func (c *Client) OptimizeQuery(ctx context.Context, original, hint string) (string, error) {
	var contextLine string
	if hint != "" {
		contextLine = "Context: " + hint + "\n"
	}

	content, err := c.complete(ctx, fmt.Sprintf(optimizePromptTemplate, original, contextLine))
	if err != nil {
		return "", err
	}

	optimized := strings.Trim(content, `"`)
	if optimized == "" {
		return "", errors.New("empty optimized query")
	}
	return optimized, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizeSearchType(s string) music.SearchType {
	switch t := music.SearchType(strings.ToLower(strings.TrimSpace(s))); t {
	case music.SearchTypeSong, music.SearchTypeAlbum, music.SearchTypeDiscography, music.SearchTypeArtist:
		return t
	default:
		return music.SearchTypeUnknown
	}
}
