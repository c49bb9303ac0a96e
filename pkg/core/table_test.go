package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

func TestNormalizeNodepath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"T", "/T"},
		{"/T", "/T"},
		{" /group/T ", "/group/T"},
		{"/group//T/", "/group/T"},
		{"", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, core.NormalizeNodepath(tt.in))
		})
	}
	assert.Equal(t, "T", core.TableName("/group/T"))
}

func TestTableRef(t *testing.T) {
	assert.True(t, core.TableRef{}.IsZero())
	ref := core.TableRef{Filepath: "data.db", Nodepath: "/T"}
	assert.False(t, ref.IsZero())
	assert.Equal(t, "data.db:/T", ref.String())
}

func TestColumnDesc_ShapeString(t *testing.T) {
	tests := []struct {
		shape []int
		want  string
	}{
		{nil, "()"},
		{[]int{3}, "(3,)"},
		{[]int{2, 4}, "(2, 4)"},
		{[]int{-1}, "(*,)"},
	}
	for _, tt := range tests {
		d := core.ColumnDesc{Name: "c", Type: core.TypeInt32, Shape: tt.shape}
		assert.Equal(t, tt.want, d.ShapeString())
	}
	assert.True(t, core.ColumnDesc{Type: core.TypeComplex128}.IsComplex())
	assert.False(t, core.ColumnDesc{Type: core.TypeFloat64}.IsComplex())
}

func TestTableSchema(t *testing.T) {
	s := core.NewSchema(
		core.ColumnDesc{Name: "a", Type: core.TypeInt64},
		core.ColumnDesc{Name: "b", Type: core.TypeString},
	)
	require.NoError(t, s.Validate())
	assert.Equal(t, 1, s.Index("b"))
	assert.Equal(t, -1, s.Index("missing"))

	get, err := s.Accessor("b")
	require.NoError(t, err)
	assert.Equal(t, "x", get(core.Row{int64(1), "x"}))
	assert.Nil(t, get(core.Row{int64(1)}))

	_, err = s.Accessor("missing")
	assert.Error(t, err)

	ext := s.WithColumn(core.ColumnDesc{Name: "c", Type: core.TypeBool})
	assert.Equal(t, []string{"a", "b", "c"}, ext.Names)
	assert.Equal(t, []string{"a", "b"}, s.Names)
	_, ok := s.Desc("c")
	assert.False(t, ok)

	dup := core.TableSchema{Names: []string{"a", "a"}}
	assert.ErrorContains(t, dup.Validate(), "duplicate")
	empty := core.TableSchema{Names: []string{""}}
	assert.ErrorContains(t, empty.Validate(), "empty")
}

func TestRowRange(t *testing.T) {
	tests := []struct {
		name string
		r    core.RowRange
		len  int64
	}{
		{"full", core.RowRange{Start: 0, Stop: 10, Step: 1}, 10},
		{"stepped", core.RowRange{Start: 0, Stop: 10, Step: 3}, 4},
		{"offset", core.RowRange{Start: 5, Stop: 10, Step: 2}, 3},
		{"empty", core.RowRange{Start: 5, Stop: 5, Step: 1}, 0},
		{"zero step", core.RowRange{Start: 0, Stop: 10, Step: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.len, tt.r.Len())
		})
	}

	r := core.RowRange{Start: 1, Stop: 10, Step: 3}
	assert.True(t, r.Contains(1))
	assert.True(t, r.Contains(7))
	assert.False(t, r.Contains(2))
	assert.False(t, r.Contains(10))
	assert.False(t, r.Contains(0))
}

func TestFieldSet(t *testing.T) {
	fs := &core.FieldSet{
		Fields: []core.Field{
			{Name: "a"},
			{Name: "b c", Alias: "col0"},
		},
		Condvars: map[string]string{"col0": "b c"},
	}
	assert.Equal(t, []string{"a", "col0"}, fs.Idents())
	assert.Equal(t, "col0 (b c)", fs.Fields[1].Label())
	assert.Len(t, fs.Aliased(), 1)

	name, ok := fs.Column("col0")
	require.True(t, ok)
	assert.Equal(t, "b c", name)
	_, ok = fs.Column("b c")
	assert.False(t, ok)
	name, ok = fs.Column("a")
	require.True(t, ok)
	assert.Equal(t, "a", name)
}
