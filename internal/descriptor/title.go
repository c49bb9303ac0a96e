package descriptor

import (
	"cmp"
	"slices"
	"strings"

	"go.starlark.net/syntax"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

var titleOptions = &syntax.FileOptions{}

// Title renders a condition for display: every aliased identifier is
// replaced by its original column name in parentheses. Only identifier
// tokens are rewritten, so string literals, attribute names and longer
// names such as col10 are left alone. A condition that does not parse is
// returned unchanged.
func Title(condition string, fields *core.FieldSet) string {
	if fields == nil || len(fields.Condvars) == 0 {
		return condition
	}
	expr, err := titleOptions.ParseExpr("<condition>", condition, 0)
	if err != nil {
		return condition
	}

	var idents []*syntax.Ident
	var visit func(n syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch x := n.(type) {
		case *syntax.DotExpr:
			syntax.Walk(x.X, visit)
			return false
		case *syntax.Ident:
			if _, ok := fields.Condvars[x.Name]; ok {
				idents = append(idents, x)
			}
		}
		return true
	}
	syntax.Walk(expr, visit)
	if len(idents) == 0 {
		return condition
	}

	// Rewrite from the end so earlier positions stay valid.
	slices.SortFunc(idents, func(a, b *syntax.Ident) int {
		if c := cmp.Compare(b.NamePos.Line, a.NamePos.Line); c != 0 {
			return c
		}
		return cmp.Compare(b.NamePos.Col, a.NamePos.Col)
	})
	lines := strings.Split(condition, "\n")
	for _, id := range idents {
		i := int(id.NamePos.Line) - 1
		if i < 0 || i >= len(lines) {
			continue
		}
		line := []rune(lines[i])
		col := int(id.NamePos.Col) - 1
		end := col + len([]rune(id.Name))
		if col < 0 || end > len(line) || string(line[col:end]) != id.Name {
			continue
		}
		repl := []rune("(" + fields.Condvars[id.Name] + ")")
		lines[i] = string(slices.Concat(line[:col], repl, line[end:]))
	}
	return strings.Join(lines, "\n")
}
