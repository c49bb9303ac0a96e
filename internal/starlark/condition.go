package starlark

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// conditionFile is the pseudo file name used in evaluation errors.
const conditionFile = "<condition>"

var fileOptions = &syntax.FileOptions{}

// Condition is a compiled boolean expression over named column values.
type Condition struct {
	// Expr is the source text of the condition.
	Expr string
	// Params are the identifiers the condition is called with, in order.
	Params []string

	fn *starlark.Function
}

// Compile compiles expr into a function of the given identifiers.
// Identifiers that are not valid Starlark names are skipped; referencing
// any name that is neither a parameter nor a builtin is a compile error.
func Compile(thread *starlark.Thread, expr string, idents []string) (*Condition, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty condition")
	}
	if _, err := fileOptions.ParseExpr(conditionFile, expr, 0); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}

	params := make([]string, 0, len(idents))
	for _, id := range idents {
		if IsIdentifier(id) {
			params = append(params, id)
		}
	}

	// The newline keeps a trailing comment in expr from swallowing the paren.
	src := "lambda " + strings.Join(params, ", ") + ": (\n" + expr + "\n)"
	v, err := starlark.EvalOptions(fileOptions, thread, conditionFile, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	fn, ok := v.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("invalid condition: compiled to %s", v.Type())
	}

	return &Condition{Expr: expr, Params: params, fn: fn}, nil
}

// Eval evaluates the condition with one Starlark value per parameter.
func (c *Condition) Eval(thread *starlark.Thread, args starlark.Tuple) (bool, error) {
	v, err := starlark.Call(thread, c.fn, args, nil)
	if err != nil {
		return false, err
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("condition evaluated to %s, want bool", v.Type())
	}
	return bool(b), nil
}

// EvalValues converts Go values and evaluates the condition.
func (c *Condition) EvalValues(thread *starlark.Thread, values []any) (bool, error) {
	if len(values) != len(c.Params) {
		return false, fmt.Errorf("condition takes %d values, got %d", len(c.Params), len(values))
	}
	args := make(starlark.Tuple, len(values))
	for i, v := range values {
		sv, err := GoToStarlark(v)
		if err != nil {
			return false, fmt.Errorf("%s: %w", c.Params[i], err)
		}
		args[i] = sv
	}
	return c.Eval(thread, args)
}

// IsIdentifier reports whether name can be written as a bare Starlark
// identifier (keywords excluded).
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	e, err := fileOptions.ParseExpr(conditionFile, name, 0)
	if err != nil {
		return false
	}
	id, ok := e.(*syntax.Ident)
	return ok && id.Name == name
}
