package core

import (
	"context"
)

// AdapterConfig holds configuration for opening a table store.
type AdapterConfig struct {
	Type     string
	Path     string
	ReadOnly bool
	Params   map[string]any
}

// Rows is a lazy iterator over table rows.
//
//	for rows.Next() {
//		coord, row := rows.Coord(), rows.Row()
//	}
//	if err := rows.Err(); err != nil { ... }
type Rows interface {
	Next() bool
	// Coord returns the source coordinate of the current row.
	Coord() int64
	// Row returns the values of the current row.
	Row() Row
	Err() error
	Close() error
}

// Source is a table database that can be described and read.
type Source interface {
	// Connect opens the store described by cfg.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close releases the store.
	Close() error

	// Filepath identifies the store in TableRefs.
	Filepath() string

	// Tables lists the nodepaths of all user tables.
	Tables(ctx context.Context) ([]string, error)

	// Describe returns schema and row count of a table.
	Describe(ctx context.Context, nodepath string) (*TableInfo, error)

	// ReadRows returns the rows of a table selected by r.
	ReadRows(ctx context.Context, nodepath string, r RowRange) (Rows, error)
}

// Destination is a store that result tables are written to.
type Destination interface {
	Exists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, spec ResultSpec) (TableWriter, error)
	DropTable(ctx context.Context, name string) error
	ListResults(ctx context.Context) ([]ResultTable, error)
}

// TableWriter receives the rows of a result table. Nothing written is
// visible to readers until Commit succeeds; Abort discards everything.
type TableWriter interface {
	WriteRow(ctx context.Context, row Row) error
	Commit(ctx context.Context) (*ResultTable, error)
	Abort() error
}

// Store is a table database usable both as source and destination.
type Store interface {
	Source
	Destination
}

// InputRequest is what the input collaborator is seeded with.
type InputRequest struct {
	Table            *TableInfo
	Fields           *FieldSet
	UsedNames        []string
	Counter          int
	InitialCondition string
	DefaultName      string
}

// InputResponse is the user's answer. A blank Condition means cancelled.
type InputResponse struct {
	Condition string
	Start     int64
	// Stop and Step are nil when not given. Stop then runs to the last row
	// and Step is 1.
	Stop          *int64
	Step          *int64
	ResultName    string
	IndicesColumn string
}

// Input collects a query from the user.
type Input interface {
	Collect(ctx context.Context, req InputRequest) (InputResponse, error)
}

// InputFunc adapts a function to Input.
type InputFunc func(ctx context.Context, req InputRequest) (InputResponse, error)

// Collect calls f.
func (f InputFunc) Collect(ctx context.Context, req InputRequest) (InputResponse, error) {
	return f(ctx, req)
}

// Sink receives query completions.
type Sink interface {
	Notify(c Completion)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c Completion)

// Notify calls f.
func (f SinkFunc) Notify(c Completion) { f(c) }

// ChanSink delivers completions on a channel. The channel should be
// buffered or drained by an event loop; Notify blocks until delivery.
type ChanSink chan<- Completion

// Notify sends c on the channel.
func (s ChanSink) Notify(c Completion) { s <- c }
