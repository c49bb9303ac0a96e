// Package descriptor turns user input into an immutable query descriptor.
package descriptor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// DefaultNamePrefix starts every suggested result name.
const DefaultNamePrefix = "Filtered_"

// Request carries everything the builder needs for one attempt.
type Request struct {
	Table   *core.TableInfo
	Fields  *core.FieldSet
	Last    core.LastQuery
	Counter int
	Used    []string
}

// Builder validates user input and assembles query descriptors.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{logger: logger}
}

// Build collects a query through input and returns its descriptor.
// It returns (nil, nil) when the user cancelled.
func (b *Builder) Build(ctx context.Context, req Request, input core.Input) (*core.QueryDescriptor, error) {
	if req.Table == nil || req.Fields == nil {
		return nil, fmt.Errorf("build: table and fields are required")
	}
	ref := req.Table.Ref

	initial := ""
	if req.Last.Source == ref {
		initial = req.Last.Condition
	}

	resp, err := input.Collect(ctx, core.InputRequest{
		Table:            req.Table,
		Fields:           req.Fields,
		UsedNames:        slices.Clone(req.Used),
		Counter:          req.Counter,
		InitialCondition: initial,
		DefaultName:      DefaultName(req.Table.Name, req.Counter, req.Used),
	})
	if err != nil {
		return nil, fmt.Errorf("collect input: %w", err)
	}

	condition := strings.TrimSpace(resp.Condition)
	if condition == "" {
		b.logger.Debug("query cancelled", slog.String("table", ref.String()))
		return nil, nil
	}

	r, err := normalizeRange(resp.Start, resp.Stop, resp.Step, req.Table.RowCount)
	if err != nil {
		return nil, core.NewError(core.ErrInvalidRange, "build", ref.String(), err)
	}

	name := strings.TrimSpace(resp.ResultName)
	if err := ValidateName(name); err != nil {
		return nil, core.NewError(core.ErrInvalidName, "build", ref.String(), err)
	}
	if slices.Contains(req.Used, name) {
		return nil, core.NewError(core.ErrNameCollision, "build", name, nil)
	}

	indices := strings.TrimSpace(resp.IndicesColumn)
	if indices != "" && req.Table.Schema.Index(indices) >= 0 {
		return nil, core.Errorf(core.ErrInvalidName, "build", ref.String(),
			"indices column %q clashes with a table column", indices)
	}

	d := &core.QueryDescriptor{
		ID:            uuid.NewString(),
		Source:        ref,
		Condition:     condition,
		Title:         Title(condition, req.Fields),
		Start:         r.Start,
		Stop:          r.Stop,
		Step:          r.Step,
		ResultName:    name,
		IndicesColumn: indices,
	}
	b.logger.Debug("query built",
		slog.String("query_id", d.ID),
		slog.String("table", ref.String()),
		slog.String("condition", condition),
		slog.String("result", name))
	return d, nil
}

// DefaultName suggests a result name for a table: Filtered_<table><n>,
// starting at counter and moving on while the name is taken.
func DefaultName(table string, counter int, used []string) string {
	if counter < 1 {
		counter = 1
	}
	for n := counter; ; n++ {
		name := fmt.Sprintf("%s%s%d", DefaultNamePrefix, table, n)
		if !slices.Contains(used, name) {
			return name
		}
	}
}

// ValidateName checks that name can be used for a result table.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("result name is empty")
	case strings.Contains(name, "/"):
		return fmt.Errorf("result name %q contains '/'", name)
	case strings.HasPrefix(name, core.ReservedPrefix):
		return fmt.Errorf("result name %q uses the reserved prefix %s", name, core.ReservedPrefix)
	}
	return nil
}

// normalizeRange fills defaults and checks 0 <= start <= stop.
// A nil stop runs to the last row and a nil step is 1. Stop is clamped to
// the row count.
func normalizeRange(start int64, stop, step *int64, rows int64) (core.RowRange, error) {
	r := core.RowRange{Start: start, Stop: rows, Step: 1}
	if step != nil {
		r.Step = *step
	}
	if stop != nil {
		if *stop < 0 {
			return core.RowRange{}, fmt.Errorf("stop %d is negative", *stop)
		}
		r.Stop = min(*stop, rows)
	}
	switch {
	case r.Step < 1:
		return core.RowRange{}, fmt.Errorf("step %d must be at least 1", r.Step)
	case r.Start < 0:
		return core.RowRange{}, fmt.Errorf("start %d is negative", r.Start)
	case r.Start > r.Stop:
		return core.RowRange{}, fmt.Errorf("start %d is past stop %d", r.Start, r.Stop)
	}
	return r, nil
}
