// Package history persists one row per search so recent queries can
// be listed and pruned.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// CURRENT_TIMESTAMP writes this layout in UTC; cutoffs are bound in
// the same form so text comparison orders correctly.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Service provides search-history storage.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record stores one search. Empty optional fields become NULL.
func (s *Service) Record(ctx context.Context, input RecordInput) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (query, sql_query, total_found, duration_ms, top_format)
		VALUES (?, ?, ?, ?, ?)`,
		input.Query,
		nullable(input.SQLQuery),
		input.TotalFound,
		input.DurationMS,
		nullable(input.TopFormat),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", input.Query).Msg("Failed to record search")
	}
	return err
}

// List returns history entries, newest first, with pagination.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	var totalCount int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_history`).Scan(&totalCount); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, sql_query, total_found, duration_ms, top_format, created_at
		FROM search_history
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		opts.PageSize, (opts.Page-1)*opts.PageSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, opts.PageSize)
	for rows.Next() {
		var (
			e         Entry
			sqlQuery  sql.NullString
			topFormat sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Query, &sqlQuery, &e.TotalFound, &e.DurationMS, &topFormat, &createdAt); err != nil {
			return nil, err
		}
		e.SQLQuery = sqlQuery.String
		e.TopFormat = topFormat.String
		if createdAt.Valid {
			e.CreatedAt = createdAt.Time.UTC().Format(time.RFC3339)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := int(totalCount) / opts.PageSize
	if int(totalCount)%opts.PageSize > 0 {
		totalPages++
	}

	return &ListResponse{
		Items:      entries,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}, nil
}

// Clear deletes all history entries.
func (s *Service) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_history`)
	return err
}

// CleanupOldEntries deletes entries older than the retention window
// and returns how many rows were removed. retentionDays <= 0 disables
// cleanup.
func (s *Service) CleanupOldEntries(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(sqliteTimeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM search_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Int("retentionDays", retentionDays).Msg("Pruned search history")
	}
	return removed, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
