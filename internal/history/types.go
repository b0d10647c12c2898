package history

// Entry is one recorded search.
type Entry struct {
	ID         int64  `json:"id"`
	Query      string `json:"query"`
	SQLQuery   string `json:"sql_query,omitempty"`
	TotalFound int    `json:"total_found"`
	DurationMS int64  `json:"duration_ms"`
	TopFormat  string `json:"top_format,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// RecordInput contains the fields persisted per search. Result
// payloads are never stored, only the query and its counters.
type RecordInput struct {
	Query      string
	SQLQuery   string
	TotalFound int
	DurationMS int64
	TopFormat  string
}

// ListOptions contains pagination options for listing history.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResponse contains paginated history results.
type ListResponse struct {
	Items      []Entry `json:"items"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalCount int64   `json:"total_count"`
	TotalPages int     `json:"total_pages"`
}
