package core

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// TableRef identifies a table inside a table database file.
// Nodepath is slash-rooted, e.g. "/T" or "/group/T".
type TableRef struct {
	Filepath string
	Nodepath string
}

func (r TableRef) String() string {
	return r.Filepath + ":" + r.Nodepath
}

// IsZero reports whether the ref points nowhere.
func (r TableRef) IsZero() bool {
	return r.Filepath == "" && r.Nodepath == ""
}

// NormalizeNodepath returns a clean slash-rooted nodepath.
func NormalizeNodepath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// TableName returns the last component of a nodepath.
func TableName(nodepath string) string {
	return path.Base(NormalizeNodepath(nodepath))
}

// Type tags understood by the stores.
const (
	TypeBool       = "bool"
	TypeInt8       = "int8"
	TypeInt16      = "int16"
	TypeInt32      = "int32"
	TypeInt64      = "int64"
	TypeUint8      = "uint8"
	TypeUint16     = "uint16"
	TypeUint32     = "uint32"
	TypeUint64     = "uint64"
	TypeFloat32    = "float32"
	TypeFloat64    = "float64"
	TypeComplex64  = "complex64"
	TypeComplex128 = "complex128"
	TypeString     = "string"
	TypeBytes      = "bytes"
	TypeTime       = "time"
	// TypeAny holds values of any scalar type as stored, unconverted.
	TypeAny = "any"
)

// ColumnDesc is the flat descriptor of a column: its scalar type tag and
// its per-row shape. A nil or empty Shape means one scalar per row.
// A negative dimension marks a variable-length axis.
type ColumnDesc struct {
	Name  string
	Type  string
	Shape []int
}

// IsScalar reports whether the column holds one value per row.
func (c ColumnDesc) IsScalar() bool {
	return len(c.Shape) == 0
}

// IsComplex reports whether the type tag denotes a complex number.
func (c ColumnDesc) IsComplex() bool {
	return strings.Contains(strings.ToLower(c.Type), "complex")
}

// ShapeString renders the shape the way it is displayed to users, e.g. "(3,)".
func (c ColumnDesc) ShapeString() string {
	if len(c.Shape) == 0 {
		return "()"
	}
	parts := make([]string, len(c.Shape))
	for i, d := range c.Shape {
		if d < 0 {
			parts[i] = "*"
			continue
		}
		parts[i] = fmt.Sprint(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// TableSchema is a read-only view of a table's columns.
//
// Names lists the top-level columns in storage order; row values are aligned
// with it. Descs holds flat descriptors keyed by name. A nested column
// appears in Names without an entry in Descs.
type TableSchema struct {
	Names []string
	Descs map[string]ColumnDesc
}

// NewSchema builds a schema whose columns all have flat descriptors.
func NewSchema(cols ...ColumnDesc) TableSchema {
	s := TableSchema{
		Names: make([]string, 0, len(cols)),
		Descs: make(map[string]ColumnDesc, len(cols)),
	}
	for _, c := range cols {
		s.Names = append(s.Names, c.Name)
		s.Descs[c.Name] = c
	}
	return s
}

// Index returns the row position of a column, or -1.
func (s TableSchema) Index(name string) int {
	return slices.Index(s.Names, name)
}

// Desc returns the flat descriptor of a column.
func (s TableSchema) Desc(name string) (ColumnDesc, bool) {
	d, ok := s.Descs[name]
	return d, ok
}

// Accessor returns a function that extracts the named column from a row.
func (s TableSchema) Accessor(name string) (func(Row) any, error) {
	idx := s.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return func(r Row) any {
		if idx >= len(r) {
			return nil
		}
		return r[idx]
	}, nil
}

// WithColumn returns a copy of the schema with an extra flat column appended.
func (s TableSchema) WithColumn(c ColumnDesc) TableSchema {
	out := TableSchema{
		Names: append(slices.Clone(s.Names), c.Name),
		Descs: make(map[string]ColumnDesc, len(s.Descs)+1),
	}
	for k, v := range s.Descs {
		out.Descs[k] = v
	}
	out.Descs[c.Name] = c
	return out
}

// Validate checks that column names are unique and non-empty.
func (s TableSchema) Validate() error {
	seen := make(map[string]struct{}, len(s.Names))
	for _, n := range s.Names {
		if n == "" {
			return fmt.Errorf("empty column name")
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("duplicate column name %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Row holds the values of one table row, aligned with TableSchema.Names.
type Row []any

// TableInfo describes a source table ready to be queried.
type TableInfo struct {
	Ref      TableRef
	Name     string
	Title    string
	RowCount int64
	Schema   TableSchema
}

// RowRange selects rows [Start, Stop) every Step rows.
type RowRange struct {
	Start int64
	Stop  int64
	Step  int64
}

// Len returns the number of coordinates the range selects.
func (r RowRange) Len() int64 {
	if r.Step <= 0 || r.Stop <= r.Start {
		return 0
	}
	return (r.Stop - r.Start + r.Step - 1) / r.Step
}

// Contains reports whether coord is selected by the range.
func (r RowRange) Contains(coord int64) bool {
	return r.Step > 0 && coord >= r.Start && coord < r.Stop && (coord-r.Start)%r.Step == 0
}

// ReservedPrefix starts the names of catalog tables kept inside a results
// store. Result tables may not use it.
const ReservedPrefix = "_leapquery"
