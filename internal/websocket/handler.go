// Package websocket serves the streaming search channel. A client
// sends one JSON search request; the server streams progress frames
// and closes the connection after exactly one result or error frame.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/history"
	"github.com/tonearm/tonearm/internal/music"
	"github.com/tonearm/tonearm/internal/orchestrator"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the client to send its search request.
	requestWait = 30 * time.Second

	// Maximum request size allowed from the peer.
	maxRequestSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Public API, any origin may connect
	},
}

// Frame types sent over the channel.
const (
	frameProgress = "progress"
	frameResult   = "result"
	frameError    = "error"
)

type progressFrame struct {
	Type    string `json:"type"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type resultFrame struct {
	Type string     `json:"type"`
	Data resultData `json:"data"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type resultData struct {
	Query        string       `json:"query"`
	SQLQuery     string       `json:"sql_query,omitempty"`
	TotalFound   int          `json:"total_found"`
	SearchTimeMS int64        `json:"search_time_ms"`
	Results      []resultItem `json:"results"`
}

// resultItem carries each source twice: under "source" and, for
// clients that predate multi-source results, under "torrent".
type resultItem struct {
	Rank        int           `json:"rank"`
	Source      music.Source  `json:"source"`
	Torrent     legacyTorrent `json:"torrent"`
	Explanation string        `json:"explanation"`
	Tags        []string      `json:"tags"`
}

// legacyTorrent is the flat field set older clients read. Source
// holds the indexer name there.
type legacyTorrent struct {
	Title         string  `json:"title"`
	MagnetLink    string  `json:"magnet_link"`
	SizeBytes     int64   `json:"size_bytes"`
	SizeFormatted *string `json:"size_formatted"`
	Seeders       *int    `json:"seeders"`
	Leechers      *int    `json:"leechers"`
	Format        string  `json:"format"`
	Bitrate       string  `json:"bitrate"`
	Source        string  `json:"source"`
	QualityScore  float64 `json:"quality_score"`
	Indexer       string  `json:"indexer"`
}

// Handler runs search conversations over websocket connections.
type Handler struct {
	pipeline *orchestrator.Pipeline
	history  *history.Service
	logger   zerolog.Logger
}

// NewHandler builds the channel handler. history may be nil, in which
// case searches are not recorded.
func NewHandler(pipeline *orchestrator.Pipeline, history *history.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		history:  history,
		logger:   logger.With().Str("component", "websocket").Logger(),
	}
}

// Search upgrades the connection and runs one conversation: read the
// request, stream progress, send the terminal frame, close.
func (h *Handler) Search(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer func() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	// Conversation id ties the request, result and close logs together.
	log := h.logger.With().Str("conn", uuid.New().String()).Logger()
	log.Info().Msg("WebSocket connection established")

	conn.SetReadLimit(maxRequestSize)
	conn.SetReadDeadline(time.Now().Add(requestWait))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			log.Debug().Err(err).Msg("WebSocket closed before request")
		}
		return nil
	}

	var req orchestrator.PipelineRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.writeError(conn, "Invalid JSON format")
		return nil
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(conn, "Query is required")
		return nil
	}

	log.Info().Str("query", req.Query).Msg("WebSocket search request")

	req.Progress = func(percent int, message string) {
		h.write(conn, progressFrame{Type: frameProgress, Percent: percent, Message: message})
	}

	resp, err := h.pipeline.Search(c.Request().Context(), req)
	if err != nil {
		h.writeError(conn, err.Error())
		return nil
	}

	h.record(c.Request().Context(), resp)

	if err := h.write(conn, resultFrame{Type: frameResult, Data: newResultData(resp)}); err != nil {
		log.Debug().Err(err).Msg("Failed to write result frame")
		return nil
	}

	log.Info().Int("totalFound", resp.TotalFound).Msg("WebSocket search completed")
	return nil
}

func (h *Handler) write(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (h *Handler) writeError(conn *websocket.Conn, message string) {
	if err := h.write(conn, errorFrame{Type: frameError, Message: message}); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write error frame")
	}
}

func (h *Handler) record(ctx context.Context, resp *orchestrator.Response) {
	if h.history == nil {
		return
	}
	topFormat := ""
	if len(resp.Results) > 0 {
		topFormat = resp.Results[0].Source.Format
	}
	err := h.history.Record(ctx, history.RecordInput{
		Query:      resp.Query,
		SQLQuery:   resp.SQLQuery,
		TotalFound: resp.TotalFound,
		DurationMS: resp.SearchTimeMS,
		TopFormat:  topFormat,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to record search history")
	}
}

func newResultData(resp *orchestrator.Response) resultData {
	items := make([]resultItem, 0, len(resp.Results))
	for _, ranked := range resp.Results {
		items = append(items, resultItem{
			Rank:        ranked.Rank,
			Source:      ranked.Source,
			Torrent:     newLegacyTorrent(ranked.Source),
			Explanation: ranked.Explanation,
			Tags:        ranked.Tags,
		})
	}
	return resultData{
		Query:        resp.Query,
		SQLQuery:     resp.SQLQuery,
		TotalFound:   resp.TotalFound,
		SearchTimeMS: resp.SearchTimeMS,
		Results:      items,
	}
}

func newLegacyTorrent(s music.Source) legacyTorrent {
	t := legacyTorrent{
		Title:        s.Title,
		MagnetLink:   s.MagnetLink,
		SizeBytes:    s.SizeBytes,
		Seeders:      s.Seeders,
		Leechers:     s.Leechers,
		Format:       s.Format,
		Bitrate:      s.Bitrate,
		Source:       s.Indexer,
		QualityScore: s.QualityScore,
		Indexer:      s.Indexer,
	}
	if s.SizeBytes > 0 {
		formatted := s.SizeFormatted()
		t.SizeFormatted = &formatted
	}
	return t
}
