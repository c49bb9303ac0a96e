package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

func TestBaseSQLStore_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB", setupDB: false},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLStore{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			assert.NoError(t, base.Close())
			assert.False(t, base.IsConnected())
		})
	}
}

func TestBaseSQLStore_NotConnected(t *testing.T) {
	base := &BaseSQLStore{}
	ctx := context.Background()

	_, err := base.CountRows(ctx, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection not established")

	_, err = base.ReadRange(ctx, "t", []string{"a"}, "", core.RowRange{Stop: 1, Step: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection not established")
}

func TestBaseSQLStore_CountRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "my ""t"""`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(42))

	base := &BaseSQLStore{DB: db}
	n, err := base.CountRows(context.Background(), QuoteIdent(`my "t"`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLStore_ReadRangeStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"a"})
	for i := 2; i < 9; i++ {
		rows.AddRow(int64(i * 10))
	}
	mock.ExpectQuery(`SELECT "a" FROM "t" ORDER BY rowid LIMIT \? OFFSET \?`).
		WithArgs(int64(7), int64(2)).
		WillReturnRows(rows)

	base := &BaseSQLStore{DB: db}
	it, err := base.ReadRange(context.Background(), QuoteIdent("t"), []string{"a"}, "rowid", core.RowRange{Start: 2, Stop: 9, Step: 3}, nil)
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	var coords []int64
	var vals []any
	for it.Next() {
		coords = append(coords, it.Coord())
		vals = append(vals, it.Row()[0])
	}
	require.NoError(t, it.Err())

	assert.Equal(t, []int64{2, 5, 8}, coords)
	assert.Equal(t, []any{int64(20), int64(50), int64(80)}, vals)
}

func TestBaseSQLStore_ReadRangeDollarPlaceholder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT "a" FROM "public"."t" ORDER BY ctid LIMIT \$1 OFFSET \$2`).
		WithArgs(int64(3), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow("x"))

	base := &BaseSQLStore{DB: db, Placeholder: DollarPlaceholder}
	it, err := base.ReadRange(context.Background(), QuoteQualified("public", "t"), []string{"a"}, "ctid", core.RowRange{Stop: 3, Step: 1}, nil)
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	require.True(t, it.Next())
	assert.Equal(t, core.Row{"x"}, it.Row())
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLStore_ReadRangeQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	base := &BaseSQLStore{DB: db}
	_, err = base.ReadRange(context.Background(), "t", []string{"a"}, "", core.RowRange{Stop: 3, Step: 1}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, `"main"."T"`, QuoteQualified("main", "T"))
	assert.Equal(t, `"a""b"`, QuoteQualified(`a"b`))
}

func TestTableName(t *testing.T) {
	tests := []struct {
		nodepath string
		want     string
		wantErr  bool
	}{
		{nodepath: "/T", want: "T"},
		{nodepath: "T", want: "T"},
		{nodepath: "/my table", want: "my table"},
		{nodepath: "/group/T", wantErr: true},
		{nodepath: "/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.nodepath, func(t *testing.T) {
			got, err := TableName(tt.nodepath)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrTableNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeParams(t *testing.T) {
	type params struct {
		BatchSize int      `mapstructure:"batch_size"`
		Pragmas   []string `mapstructure:"pragmas"`
	}

	var p params
	require.NoError(t, DecodeParams(map[string]any{"batch_size": "64", "pragmas": []any{"journal_mode=WAL"}}, &p))
	assert.Equal(t, params{BatchSize: 64, Pragmas: []string{"journal_mode=WAL"}}, p)

	err := DecodeParams(map[string]any{"unknown": 1}, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid adapter params")

	require.NoError(t, DecodeParams(nil, &p))
}
