package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// lineReader is the part of readline used for prompting.
type lineReader interface {
	SetPrompt(prompt string)
	ReadlineWithDefault(what string) (string, error)
}

// PromptInput collects a query interactively. The condition prompt is
// pre-filled with the previous condition on the same table; an empty
// condition, Ctrl-C or Ctrl-D cancels.
type PromptInput struct {
	rl lineReader
	r  *output.Renderer
}

// NewPromptInput creates a prompt reading from rl and writing hints to r.
func NewPromptInput(rl *readline.Instance, r *output.Renderer) *PromptInput {
	return &PromptInput{rl: rl, r: r}
}

// Collect implements core.Input.
func (p *PromptInput) Collect(ctx context.Context, req core.InputRequest) (core.InputResponse, error) {
	styles := p.r.Styles()
	labels := make([]string, len(req.Fields.Fields))
	for i, f := range req.Fields.Fields {
		labels[i] = f.Label()
	}
	p.r.Println(styles.Muted.Render("Fields: " + strings.Join(labels, ", ")))

	cond, ok, err := p.ask(ctx, "condition> ", req.InitialCondition)
	if !ok || strings.TrimSpace(cond) == "" {
		return core.InputResponse{}, err
	}

	var resp core.InputResponse
	resp.Condition = cond
	for {
		spec, ok, err := p.ask(ctx, "range> ", fmt.Sprintf("0:%d:1", req.Table.RowCount))
		if !ok {
			return core.InputResponse{}, err
		}
		resp.Start, resp.Stop, resp.Step, err = ParseRange(spec)
		if err == nil {
			break
		}
		p.r.Println(styles.Warning.Render(err.Error()))
	}

	if resp.ResultName, ok, err = p.ask(ctx, "result name> ", req.DefaultName); !ok {
		return core.InputResponse{}, err
	}
	if resp.IndicesColumn, ok, err = p.ask(ctx, "indices column (optional)> ", ""); !ok {
		return core.InputResponse{}, err
	}
	return resp, nil
}

// ask reads one line. ok is false when the user cancelled.
func (p *PromptInput) ask(ctx context.Context, prompt, def string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.rl.SetPrompt(prompt)
	line, err := p.rl.ReadlineWithDefault(def)
	switch {
	case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return strings.TrimSpace(line), true, nil
}

// ParseRange parses "start:stop:step". Every part may be left empty, as
// may trailing parts. An empty start is 0; an empty stop or step is nil
// and takes its default later.
func ParseRange(spec string) (start int64, stop, step *int64, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, nil, nil, nil
	}
	parts := strings.Split(spec, ":")
	if len(parts) > 3 {
		return 0, nil, nil, fmt.Errorf("range %q: want start:stop:step", spec)
	}
	vals := make([]*int64, 3)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("range %q: %q is not an integer", spec, part)
		}
		vals[i] = &v
	}
	if vals[2] != nil && *vals[2] < 1 {
		return 0, nil, nil, fmt.Errorf("range %q: step must be at least 1", spec)
	}
	if vals[0] != nil {
		start = *vals[0]
	}
	return start, vals[1], vals[2], nil
}
