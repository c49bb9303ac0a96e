package output

import "time"

// FieldInfo is one queryable or excluded column in JSON output.
type FieldInfo struct {
	Name     string `json:"name"`
	Alias    string `json:"alias,omitempty"`
	Type     string `json:"type,omitempty"`
	Excluded bool   `json:"excluded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// FieldsOutput is the JSON output of the fields command.
type FieldsOutput struct {
	Table  string      `json:"table"`
	Rows   int64       `json:"rows"`
	Fields []FieldInfo `json:"fields"`
}

// TableInfo is one table of a database in JSON output.
type TableInfo struct {
	Path    string `json:"path"`
	Title   string `json:"title,omitempty"`
	Rows    int64  `json:"rows"`
	Columns int    `json:"columns"`
}

// ResultInfo is one result table in JSON output.
type ResultInfo struct {
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Condition string    `json:"condition"`
	Source    string    `json:"source"`
	Rows      int64     `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryOutput is the JSON output of a finished query.
type QueryOutput struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Status     string  `json:"status"`
	Result     string  `json:"result,omitempty"`
	Title      string  `json:"title,omitempty"`
	Scanned    int64   `json:"rows_scanned"`
	Matched    int64   `json:"rows_matched"`
	Indices    []int64 `json:"indices,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// RunInfo is one run history entry in JSON output.
type RunInfo struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Condition   string     `json:"condition"`
	Result      string     `json:"result"`
	Status      string     `json:"status"`
	Scanned     int64      `json:"rows_scanned"`
	Matched     int64      `json:"rows_matched"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}
