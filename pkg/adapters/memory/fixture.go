package memory

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Fixture is the YAML document a memory store is seeded from.
//
//	tables:
//	  - path: /T
//	    title: readings
//	    columns:
//	      - {name: a, type: int64}
//	      - {name: b c, type: float64}
//	      - {name: pos, type: float32, shape: [3]}
//	      - {name: meta, nested: true}
//	    rows:
//	      - [1, 0.5, [1, 2, 3], {unit: m}]
type Fixture struct {
	Tables []FixtureTable `yaml:"tables"`
}

// FixtureTable is one table of a fixture.
type FixtureTable struct {
	Path    string          `yaml:"path"`
	Title   string          `yaml:"title,omitempty"`
	Columns []FixtureColumn `yaml:"columns"`
	Rows    [][]any         `yaml:"rows"`
	// Result is set for tables produced by a query.
	Result *FixtureResult `yaml:"result,omitempty"`
}

// FixtureResult records where a result table came from.
type FixtureResult struct {
	Condition      string    `yaml:"condition"`
	SourceFilepath string    `yaml:"source_filepath"`
	SourceNodepath string    `yaml:"source_nodepath"`
	CreatedAt      time.Time `yaml:"created_at"`
}

// FixtureColumn describes one column. Nested columns carry no type.
type FixtureColumn struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type,omitempty"`
	Shape  []int  `yaml:"shape,omitempty"`
	Nested bool   `yaml:"nested,omitempty"`
}

// DecodeFixture reads a fixture document.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	return &f, nil
}

// EncodeFixture writes a fixture document.
func EncodeFixture(w io.Writer, f *Fixture) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode fixture: %w", err)
	}
	return enc.Close()
}

func (ft FixtureTable) schema() core.TableSchema {
	s := core.TableSchema{
		Names: make([]string, 0, len(ft.Columns)),
		Descs: make(map[string]core.ColumnDesc, len(ft.Columns)),
	}
	for _, c := range ft.Columns {
		s.Names = append(s.Names, c.Name)
		if c.Nested {
			continue
		}
		s.Descs[c.Name] = core.ColumnDesc{Name: c.Name, Type: c.Type, Shape: c.Shape}
	}
	return s
}

func fixtureColumns(s core.TableSchema) []FixtureColumn {
	cols := make([]FixtureColumn, len(s.Names))
	for i, n := range s.Names {
		d, ok := s.Desc(n)
		if !ok {
			cols[i] = FixtureColumn{Name: n, Nested: true}
			continue
		}
		cols[i] = FixtureColumn{Name: n, Type: d.Type, Shape: d.Shape}
	}
	return cols
}

// convertRow types the values of a decoded row.
func convertRow(s core.TableSchema, raw []any) (core.Row, error) {
	if len(raw) != len(s.Names) {
		return nil, fmt.Errorf("row has %d values, want %d", len(raw), len(s.Names))
	}
	row := make(core.Row, len(raw))
	for i, n := range s.Names {
		d, ok := s.Desc(n)
		if !ok {
			row[i] = raw[i]
			continue
		}
		v, err := core.ConvertCell(d, raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", n, err)
		}
		row[i] = v
	}
	return row, nil
}

// plainRow turns typed values back into YAML friendly ones.
func plainRow(row core.Row) []any {
	out := make([]any, len(row))
	for i, v := range row {
		switch x := v.(type) {
		case complex128:
			out[i] = []any{real(x), imag(x)}
		case complex64:
			out[i] = []any{float64(real(x)), float64(imag(x))}
		default:
			out[i] = v
		}
	}
	return out
}
