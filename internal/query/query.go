// Package query turns raw user input into structured search requests.
// It handles both a SQL-ish syntax (SELECT album WHERE artist="..."),
// and natural language via heuristics or an optional advisor.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Query types accepted after SELECT.
const (
	TypeAlbum       = "album"
	TypeTrack       = "track"
	TypeArtist      = "artist"
	TypeCompilation = "compilation"
)

// DefaultLimit caps the result list when the query does not say.
const DefaultLimit = 50

var (
	selectPattern = regexp.MustCompile(`(?i)SELECT\s+(album|track|artist|compilation)`)
	wherePattern  = regexp.MustCompile(`(?i)WHERE\s+(.+?)(?:\s+ORDER\s+BY|\s+LIMIT|$)`)
	orderPattern  = regexp.MustCompile(`(?i)ORDER\s+BY\s+(\w+)(?:\s+(ASC|DESC))?`)
	limitPattern  = regexp.MustCompile(`(?i)LIMIT\s+(\d+)(?:\s+OFFSET\s+(\d+))?`)

	equalsPattern     = regexp.MustCompile(`(?i)(\w+)\s*=\s*["']([^"']+)["']`)
	numberPattern     = regexp.MustCompile(`(?i)(\w+)\s*=\s*(\d+)\b`)
	rangePattern      = regexp.MustCompile(`(?i)(\w+)\s+BETWEEN\s+(\d+)\s+AND\s+(\d+)`)
	comparisonPattern = regexp.MustCompile(`(?i)(\w+)\s*([><=]+)\s*(\d+)`)
)

// Query is a structured music search request.
type Query struct {
	Type string

	Artist string
	Album  string
	Track  string

	Year     int
	YearFrom int
	YearTo   int

	Format  string
	Bitrate string
	Source  string
	Country string
	Label   string

	MinSeeders int
	MinSizeMB  int
	MaxSizeMB  int

	OrderBy   string
	OrderDesc bool
	Limit     int
	Offset    int
}

// NewQuery returns a query of the given type with default ordering
// and limits.
func NewQuery(queryType string) *Query {
	return &Query{
		Type:       queryType,
		MinSeeders: 1,
		OrderBy:    "quality",
		OrderDesc:  true,
		Limit:      DefaultLimit,
	}
}

// IsSQL reports whether the input uses the SQL-ish syntax.
func IsSQL(input string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(input)), "SELECT")
}

// ParseSQL parses a SQL-ish query string. It returns false when the
// input has no recognizable SELECT clause.
func ParseSQL(input string) (*Query, bool) {
	selectMatch := selectPattern.FindStringSubmatch(input)
	if selectMatch == nil {
		return nil, false
	}

	q := NewQuery(strings.ToLower(selectMatch[1]))

	if whereMatch := wherePattern.FindStringSubmatch(input); whereMatch != nil {
		parseWhereClause(whereMatch[1], q)
	}

	if orderMatch := orderPattern.FindStringSubmatch(input); orderMatch != nil {
		q.OrderBy = mapOrderColumn(strings.ToLower(orderMatch[1]))
		q.OrderDesc = orderMatch[2] == "" || strings.EqualFold(orderMatch[2], "DESC")
	}

	if limitMatch := limitPattern.FindStringSubmatch(input); limitMatch != nil {
		if n, err := strconv.Atoi(limitMatch[1]); err == nil {
			q.Limit = n
		}
		if limitMatch[2] != "" {
			if n, err := strconv.Atoi(limitMatch[2]); err == nil {
				q.Offset = n
			}
		}
	}

	return q, true
}

// parseWhereClause populates q from the clause list. Unknown keys are
// ignored.
func parseWhereClause(clause string, q *Query) {
	for _, match := range equalsPattern.FindAllStringSubmatch(clause, -1) {
		field, value := strings.ToLower(match[1]), match[2]
		switch field {
		case "artist", "name":
			q.Artist = value
		case "album", "release":
			q.Album = value
		case "track", "title", "song":
			q.Track = value
		case "format":
			q.Format = strings.ToUpper(value)
		case "bitrate":
			q.Bitrate = value
		case "source":
			q.Source = strings.ToUpper(value)
		case "country":
			q.Country = value
		case "label":
			q.Label = value
		}
	}

	for _, match := range numberPattern.FindAllStringSubmatch(clause, -1) {
		field := strings.ToLower(match[1])
		value, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		switch field {
		case "year":
			q.Year = value
		case "limit":
			q.Limit = value
		}
	}

	for _, match := range rangePattern.FindAllStringSubmatch(clause, -1) {
		if strings.ToLower(match[1]) != "year" {
			continue
		}
		from, errFrom := strconv.Atoi(match[2])
		to, errTo := strconv.Atoi(match[3])
		if errFrom == nil && errTo == nil {
			q.YearFrom, q.YearTo = from, to
		}
	}

	for _, match := range comparisonPattern.FindAllStringSubmatch(clause, -1) {
		field, op := strings.ToLower(match[1]), match[2]
		value, err := strconv.Atoi(match[3])
		if err != nil {
			continue
		}
		switch {
		case (field == "seeders" || field == "seeds") && op == ">=":
			q.MinSeeders = value
		case field == "size" && op == ">=":
			q.MinSizeMB = value
		case field == "size" && op == "<=":
			q.MaxSizeMB = value
		}
	}
}

// mapOrderColumn normalizes ORDER BY column aliases.
func mapOrderColumn(column string) string {
	switch column {
	case "quality", "score":
		return "quality"
	case "seeders":
		return "seeders"
	case "size":
		return "size"
	case "date", "uploaded":
		return "date"
	case "relevance":
		return "relevance"
	default:
		return "quality"
	}
}

// Terms builds the text an adapter should search for.
func (q *Query) Terms() string {
	parts := make([]string, 0, 3)
	if q.Artist != "" {
		parts = append(parts, q.Artist)
	}
	if q.Album != "" {
		parts = append(parts, q.Album)
	}
	if q.Track != "" {
		parts = append(parts, q.Track)
	}
	return strings.Join(parts, " ")
}

// ToSQL renders the query back into the SQL-ish syntax.
func (q *Query) ToSQL() string {
	clauses := make([]string, 0, 6)

	if q.Artist != "" {
		clauses = append(clauses, fmt.Sprintf("artist=%q", q.Artist))
	}
	if q.Album != "" {
		clauses = append(clauses, fmt.Sprintf("album=%q", q.Album))
	}
	if q.Track != "" {
		clauses = append(clauses, fmt.Sprintf("track=%q", q.Track))
	}
	if q.Year != 0 {
		clauses = append(clauses, fmt.Sprintf("year=%d", q.Year))
	} else if q.YearFrom != 0 && q.YearTo != 0 {
		clauses = append(clauses, fmt.Sprintf("year BETWEEN %d AND %d", q.YearFrom, q.YearTo))
	}
	if q.Format != "" {
		clauses = append(clauses, fmt.Sprintf("format=%q", q.Format))
	}
	if q.Bitrate != "" {
		clauses = append(clauses, fmt.Sprintf("bitrate=%q", q.Bitrate))
	}
	if q.Source != "" {
		clauses = append(clauses, fmt.Sprintf("source=%q", q.Source))
	}
	if q.MinSeeders > 1 {
		clauses = append(clauses, fmt.Sprintf("seeders>=%d", q.MinSeeders))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.Type)

	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(q.OrderBy)
	if q.OrderDesc {
		b.WriteString(" DESC")
	}

	fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}

	return b.String()
}
