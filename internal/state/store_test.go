package state

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var tableT = core.TableRef{Filepath: "data.db", Nodepath: "/T"}

func descriptor(id string, src core.TableRef, cond string) core.QueryDescriptor {
	return core.QueryDescriptor{ID: id, Source: src, Condition: cond, ResultName: "R_" + id, Step: 1}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close is a no-op")
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	_, err := store.CreateRun(descriptor("q1", tableT, "a > 5"))
	assert.EqualError(t, err, "database not opened")
	assert.EqualError(t, store.CompleteRun("q1", core.Completion{}), "database not opened")
	_, err = store.GetRun("q1")
	assert.EqualError(t, err, "database not opened")
	_, err = store.ListRuns(0)
	assert.EqualError(t, err, "database not opened")
	assert.EqualError(t, store.InitSchema(), "database not opened")
}

func TestSQLiteStore_MigrationVersion(t *testing.T) {
	store := setupTestStore(t)
	v, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, store.InitSchema(), "migrating twice is a no-op")
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		completion core.Completion
		wantStatus core.QueryStatus
		wantErr    string
	}{
		{
			name:       "completed",
			completion: core.Completion{Completed: true, Scanned: 100, Matched: 94},
			wantStatus: core.QueryStatusCompleted,
		},
		{
			name:       "failed",
			completion: core.Completion{Scanned: 3, Err: errors.New("unsupported comparison")},
			wantStatus: core.QueryStatusFailed,
			wantErr:    "unsupported comparison",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun(descriptor("q1", tableT, "a > 5"))
			require.NoError(t, err)
			assert.Equal(t, "q1", run.ID)
			assert.Equal(t, core.QueryStatusRunning, run.Status)

			got, err := store.GetRun("q1")
			require.NoError(t, err)
			assert.Equal(t, core.QueryStatusRunning, got.Status)
			assert.Nil(t, got.CompletedAt)

			require.NoError(t, store.CompleteRun("q1", tt.completion))

			got, err = store.GetRun("q1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tableT, got.Source)
			assert.Equal(t, "a > 5", got.Condition)
			assert.Equal(t, "R_q1", got.ResultName)
			assert.Equal(t, tt.completion.Scanned, got.RowsScanned)
			assert.Equal(t, tt.completion.Matched, got.RowsMatched)
			assert.Equal(t, tt.wantErr, got.Error)
			require.NotNil(t, got.CompletedAt)
			assert.False(t, got.CompletedAt.Before(got.StartedAt))
		})
	}
}

func TestSQLiteStore_RunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("missing")
	assert.EqualError(t, err, "run not found: missing")
	assert.EqualError(t, store.CompleteRun("missing", core.Completion{}), "run not found: missing")
}

func TestSQLiteStore_ListAndLatest(t *testing.T) {
	store := setupTestStore(t)
	other := core.TableRef{Filepath: "data.db", Nodepath: "/U"}

	latest, err := store.GetLatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, d := range []core.QueryDescriptor{
		descriptor("q1", tableT, "a > 1"),
		descriptor("q2", other, "b < 0"),
		descriptor("q3", tableT, "a > 3"),
		descriptor("q4", other, "b < 4"),
	} {
		_, err := store.CreateRun(d)
		require.NoError(t, err)
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, "q4", runs[0].ID)
	assert.Equal(t, "q1", runs[3].ID)

	runs, err = store.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err = store.GetLatestRun()
	require.NoError(t, err)
	assert.Equal(t, "q4", latest.ID)

	forT, err := store.GetLatestRunForTable(tableT)
	require.NoError(t, err)
	assert.Equal(t, "a > 3", forT.Condition)

	none, err := store.GetLatestRunForTable(core.TableRef{Filepath: "x", Nodepath: "/T"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.InitSchema())
	_, err := store.CreateRun(descriptor("q1", tableT, "a > 5"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store = NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	defer func() { _ = store.Close() }()
	require.NoError(t, store.InitSchema())

	run, err := store.GetRun("q1")
	require.NoError(t, err)
	assert.Equal(t, "a > 5", run.Condition)
}

func TestSQLiteStore_GeneratesID(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun(core.QueryDescriptor{Source: tableT, Condition: "a > 5", ResultName: "R"})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
}
