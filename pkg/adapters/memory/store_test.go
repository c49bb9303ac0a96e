package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

const fixtureYAML = `
tables:
  - path: /T
    title: readings
    columns:
      - {name: a, type: int64}
      - {name: b c, type: float64}
      - {name: pos, type: float32, shape: [3]}
      - {name: z, type: complex128}
      - {name: meta, nested: true}
    rows:
      - [1, 0.5, [1, 2, 3], [1, -1], {unit: m}]
      - [7, 1.5, [4, 5, 6], [0, 2], {unit: s}]
      - [9, 2.5, [7, 8, 9], [3, 0], {unit: m}]
  - path: /group/U
    columns:
      - {name: s, type: string}
    rows: []
`

func connectFixture(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	s := New(testutil.NewTestLogger(t))
	require.NoError(t, s.Connect(context.Background(), core.AdapterConfig{Path: path}))
	return s
}

func TestStore_Registered(t *testing.T) {
	assert.True(t, adapter.IsRegistered("memory"))

	st, err := adapter.NewStore(core.AdapterConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Store{}, st)
}

func TestStore_DescribeFixture(t *testing.T) {
	s := connectFixture(t)
	ctx := context.Background()

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/T", "/group/U"}, tables)

	info, err := s.Describe(ctx, "/T")
	require.NoError(t, err)
	assert.Equal(t, "T", info.Name)
	assert.Equal(t, "readings", info.Title)
	assert.Equal(t, int64(3), info.RowCount)
	assert.Equal(t, []string{"a", "b c", "pos", "z", "meta"}, info.Schema.Names)
	_, nested := info.Schema.Desc("meta")
	assert.False(t, nested, "nested columns have no flat descriptor")
	pos, _ := info.Schema.Desc("pos")
	assert.Equal(t, []int{3}, pos.Shape)

	u, err := s.Describe(ctx, "group/U")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.RowCount)

	_, err = s.Describe(ctx, "/missing")
	assert.ErrorIs(t, err, core.ErrTableNotFound)
}

func TestStore_ReadRowsTyped(t *testing.T) {
	s := connectFixture(t)

	it, err := s.ReadRows(context.Background(), "/T", core.RowRange{Start: 0, Stop: 3, Step: 2})
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	var coords []int64
	var rows []core.Row
	for it.Next() {
		coords = append(coords, it.Coord())
		rows = append(rows, it.Row())
	}
	require.NoError(t, it.Err())

	assert.Equal(t, []int64{0, 2}, coords)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, 0.5, rows[0][1])
	assert.Equal(t, []any{float32(1), float32(2), float32(3)}, rows[0][2])
	assert.Equal(t, complex(1, -1), rows[0][3])
	assert.Equal(t, int64(9), rows[1][0])
}

func TestStore_ReadRowsRange(t *testing.T) {
	s := New(nil)
	schema := core.NewSchema(core.ColumnDesc{Name: "i", Type: core.TypeInt64})
	var data []core.Row
	for i := 0; i < 10; i++ {
		data = append(data, core.Row{int64(i)})
	}
	require.NoError(t, s.AddTable("/N", "", schema, data))

	tests := []struct {
		rng  core.RowRange
		want []int64
	}{
		{core.RowRange{Start: 0, Stop: 10, Step: 1}, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{core.RowRange{Start: 3, Stop: 8, Step: 2}, []int64{3, 5, 7}},
		{core.RowRange{Start: 5, Stop: 5, Step: 1}, nil},
		{core.RowRange{Start: 8, Stop: 20, Step: 1}, []int64{8, 9}},
	}
	for _, tt := range tests {
		it, err := s.ReadRows(context.Background(), "/N", tt.rng)
		require.NoError(t, err)
		var got []int64
		for it.Next() {
			got = append(got, it.Row()[0].(int64))
		}
		assert.Equal(t, tt.want, got, "range %+v", tt.rng)
	}
}

func TestStore_WriterCommitAndAbort(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	schema := core.NewSchema(core.ColumnDesc{Name: "a", Type: core.TypeInt64})
	prov := core.Provenance{Condition: "a > 5", Source: core.TableRef{Filepath: "data.db", Nodepath: "/T"}}

	w, err := s.CreateTable(ctx, core.ResultSpec{Name: "aborted", Schema: schema, Provenance: prov})
	require.NoError(t, err)
	require.NoError(t, w.WriteRow(ctx, core.Row{int64(1)}))
	require.NoError(t, w.Abort())
	exists, err := s.Exists(ctx, "aborted")
	require.NoError(t, err)
	assert.False(t, exists, "aborted tables are never visible")

	w, err = s.CreateTable(ctx, core.ResultSpec{Name: "Filtered_T1", Title: "a > 5", Schema: schema, Provenance: prov})
	require.NoError(t, err)
	require.NoError(t, w.WriteRow(ctx, core.Row{int64(7)}))
	require.NoError(t, w.WriteRow(ctx, core.Row{int64(9)}))
	assert.Error(t, w.WriteRow(ctx, core.Row{int64(9), "extra"}))
	res, err := w.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, prov, res.Provenance)

	_, err = s.CreateTable(ctx, core.ResultSpec{Name: "Filtered_T1", Schema: schema})
	assert.ErrorIs(t, err, core.ErrNameCollision)

	results, err := s.ListResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Filtered_T1", results[0].Name)

	info, err := s.Describe(ctx, "/Filtered_T1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.RowCount)

	require.NoError(t, s.DropTable(ctx, "Filtered_T1"))
	assert.ErrorIs(t, s.DropTable(ctx, "Filtered_T1"), core.ErrTableNotFound)
}

func TestStore_PersistsResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.yaml")
	ctx := context.Background()
	schema := core.NewSchema(
		core.ColumnDesc{Name: "a", Type: core.TypeInt64},
		core.ColumnDesc{Name: "z", Type: core.TypeComplex128},
	)
	prov := core.Provenance{Condition: "a > 5", Source: core.TableRef{Filepath: "data.db", Nodepath: "/T"}}

	s := New(nil)
	require.NoError(t, s.Connect(ctx, core.AdapterConfig{Path: path}))
	w, err := s.CreateTable(ctx, core.ResultSpec{Name: "R", Title: "a > 5", Schema: schema, Provenance: prov})
	require.NoError(t, err)
	require.NoError(t, w.WriteRow(ctx, core.Row{int64(7), complex(1, 2)}))
	_, err = w.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := New(nil)
	require.NoError(t, reopened.Connect(ctx, core.AdapterConfig{Path: path}))
	results, err := reopened.ListResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "R", results[0].Name)
	assert.Equal(t, prov, results[0].Provenance)
	assert.Equal(t, int64(1), results[0].Rows)

	it, err := reopened.ReadRows(ctx, "/R", core.RowRange{Stop: 1, Step: 1})
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, core.Row{int64(7), complex(1, 2)}, it.Row())
}

func TestStore_ReadOnly(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Connect(context.Background(), core.AdapterConfig{ReadOnly: true}))

	_, err := s.CreateTable(context.Background(), core.ResultSpec{
		Name:   "R",
		Schema: core.NewSchema(core.ColumnDesc{Name: "a", Type: core.TypeInt64}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestDecodeFixture_UnknownField(t *testing.T) {
	_, err := DecodeFixture(strings.NewReader("tables:\n  - path: /T\n    colums: []\n"))
	require.Error(t, err)
}
