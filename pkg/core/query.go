package core

import (
	"time"
)

// Field is one queryable column. Alias is set when Name cannot be written
// literally in a condition.
type Field struct {
	Name  string
	Alias string
}

// Ident returns the identifier used for the field inside a condition.
func (f Field) Ident() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Label returns the display form, "col0 (b (units))" for aliased fields.
func (f Field) Label() string {
	if f.Alias != "" {
		return f.Alias + " (" + f.Name + ")"
	}
	return f.Name
}

// FieldSet is the result of classifying a table: the columns a condition
// may reference and the alias bindings needed to reach them.
type FieldSet struct {
	Fields []Field
	// Condvars maps a generated alias to the original column name.
	Condvars map[string]string
	// Excluded lists columns that cannot be queried, in schema order.
	Excluded []string
}

// Idents returns the condition identifiers in field order.
func (fs *FieldSet) Idents() []string {
	out := make([]string, len(fs.Fields))
	for i, f := range fs.Fields {
		out[i] = f.Ident()
	}
	return out
}

// Column resolves a condition identifier to its column name.
func (fs *FieldSet) Column(ident string) (string, bool) {
	if name, ok := fs.Condvars[ident]; ok {
		return name, true
	}
	for _, f := range fs.Fields {
		if f.Alias == "" && f.Name == ident {
			return f.Name, true
		}
	}
	return "", false
}

// Aliased returns the fields that carry an alias.
func (fs *FieldSet) Aliased() []Field {
	var out []Field
	for _, f := range fs.Fields {
		if f.Alias != "" {
			out = append(out, f)
		}
	}
	return out
}

// LastQuery is the source and condition of the most recent query.
// The zero value means no query has been made.
type LastQuery struct {
	Source    TableRef
	Condition string
}

// QueryDescriptor is the fully resolved description of one query.
// It is built once and never modified afterwards.
type QueryDescriptor struct {
	ID            string
	Source        TableRef
	Condition     string
	Title         string
	Start         int64
	Stop          int64
	Step          int64
	ResultName    string
	IndicesColumn string
}

// Range returns the row range of the query.
func (d QueryDescriptor) Range() RowRange {
	return RowRange{Start: d.Start, Stop: d.Stop, Step: d.Step}
}

// Provenance identifies the filter that produced a result table.
type Provenance struct {
	Condition string
	Source    TableRef
}

// ResultTable is a materialized query result in the results store.
type ResultTable struct {
	Name       string
	Title      string
	Provenance Provenance
	Rows       int64
	CreatedAt  time.Time
}

// ResultSpec is what a destination needs to create a result table.
type ResultSpec struct {
	Name       string
	Title      string
	Schema     TableSchema
	Provenance Provenance
}

// QueryStatus is the lifecycle state of a query.
type QueryStatus string

// Query lifecycle states.
const (
	QueryStatusIdle      QueryStatus = "idle"
	QueryStatusRunning   QueryStatus = "running"
	QueryStatusCompleted QueryStatus = "completed"
	QueryStatusFailed    QueryStatus = "failed"
)

// Completion is the single notification delivered when a query ends.
type Completion struct {
	QueryID    string
	Source     TableRef
	ResultName string
	Completed  bool
	Result     *ResultTable
	Scanned    int64
	Matched    int64
	// Coordinates holds the source row of every match, increasing.
	Coordinates []int64
	Duration    time.Duration
	Err         error
}

// Status returns the terminal status the completion represents.
func (c Completion) Status() QueryStatus {
	if c.Completed {
		return QueryStatusCompleted
	}
	return QueryStatusFailed
}

// QueryRun is one entry of the query run history.
type QueryRun struct {
	ID          string
	Source      TableRef
	Condition   string
	ResultName  string
	Status      QueryStatus
	RowsScanned int64
	RowsMatched int64
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}
