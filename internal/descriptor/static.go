package descriptor

import (
	"context"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// StaticInput answers a query request with fixed values, as given on the
// command line. Empty fields fall back to what the request suggests.
type StaticInput struct {
	Condition     string
	Start         int64
	Stop          *int64
	Step          *int64
	ResultName    string
	IndicesColumn string
}

// Collect implements core.Input.
func (s StaticInput) Collect(_ context.Context, req core.InputRequest) (core.InputResponse, error) {
	cond := s.Condition
	if cond == "" {
		cond = req.InitialCondition
	}
	name := s.ResultName
	if name == "" {
		name = req.DefaultName
	}
	return core.InputResponse{
		Condition:     cond,
		Start:         s.Start,
		Stop:          s.Stop,
		Step:          s.Step,
		ResultName:    name,
		IndicesColumn: s.IndicesColumn,
	}, nil
}
