package commands

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/internal/cli/config"
	clitestutil "github.com/leapstack-labs/leapquery/internal/cli/testutil"
	"github.com/leapstack-labs/leapquery/internal/descriptor"
	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/core"

	_ "github.com/leapstack-labs/leapquery/pkg/adapters/memory"
)

// newTestContext sets up a project and a command context writing to a
// text renderer. sink may be nil.
func newTestContext(t *testing.T, rows int, sink core.Sink) (*CommandContext, *clitestutil.TestRenderer) {
	t.Helper()
	dir := clitestutil.SetupTestProject(t, rows)
	t.Chdir(dir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)

	logger := testutil.NewTestLogger(t)
	eng, err := createEngine(cfg, logger, sink)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.Restore(context.Background()))

	tr := clitestutil.NewTestRendererText()
	return &CommandContext{Cfg: cfg, Logger: logger, Engine: eng, Renderer: tr.Renderer}, tr
}

// runTestQuery runs a query to completion through the engine.
func runTestQuery(t *testing.T, cmdCtx *CommandContext, table, cond string) core.Completion {
	t.Helper()
	src, err := openSource(context.Background(), cmdCtx, "fixture")
	require.NoError(t, err)
	h, err := cmdCtx.Engine.NewQuery(context.Background(), src, table, descriptor.StaticInput{Condition: cond})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := h.Wait(ctx)
	require.NoError(t, err)
	return c
}

// fakeReader answers prompts from a queue. The answer "<default>" accepts
// the pre-filled value; an exhausted queue reads as Ctrl-D.
type fakeReader struct {
	answers  []string
	prompts  []string
	defaults []string
}

func (f *fakeReader) SetPrompt(p string) { f.prompts = append(f.prompts, p) }

func (f *fakeReader) ReadlineWithDefault(def string) (string, error) {
	f.defaults = append(f.defaults, def)
	if len(f.answers) == 0 {
		return "", io.EOF
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	if a == "<default>" {
		return def, nil
	}
	return a, nil
}

func TestCommandConstructors(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewQueryCommand(), "query <database> <table>", []string{"where", "range", "name", "indices"}},
		{NewTablesCommand(), "tables <database>", nil},
		{NewFieldsCommand(), "fields <database> <table>", nil},
		{NewHistoryCommand(), "history", []string{"limit"}},
		{NewShellCommand(), "shell [database]", nil},
		{NewResultsCommand(), "results", nil},
		{NewVersionCommand("1.0"), "version", nil},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short)
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}

	var subs []string
	for _, c := range NewResultsCommand().Commands() {
		subs = append(subs, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "show", "delete", "clear"}, subs)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		spec       string
		start      int64
		stop, step *int64
		wantErr    bool
	}{
		{"", 0, nil, nil, false},
		{"0:10:1", 0, int64p(10), int64p(1), false},
		{"5:", 5, nil, nil, false},
		{":20", 0, int64p(20), nil, false},
		{"::3", 0, nil, int64p(3), false},
		{"0:0", 0, int64p(0), nil, false},
		{" 2 : 8 : 2 ", 2, int64p(8), int64p(2), false},
		{"1:2:3:4", 0, nil, nil, true},
		{"a:2", 0, nil, nil, true},
		{"0:10:0", 0, nil, nil, true},
		{"::-1", 0, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			start, stop, step, err := ParseRange(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.stop, stop)
			assert.Equal(t, tt.step, step)
		})
	}
}

func TestConditionArg(t *testing.T) {
	assert.Equal(t, "a > 2", conditionArg("query /T a > 2", "/T"))
	assert.Equal(t, "col0 < 1 and a != 3", conditionArg("  q /T   col0 < 1 and a != 3 ", "/T"))
	assert.Equal(t, "", conditionArg("query /T", "/T"))
}

func TestPromptInput_Collect(t *testing.T) {
	fr := &fakeReader{answers: []string{"a > 1", "bad", "2:8:2", "<default>", "idx"}}
	tr := clitestutil.NewTestRendererText()
	p := &PromptInput{rl: fr, r: tr.Renderer}

	req := core.InputRequest{
		Table:            &core.TableInfo{RowCount: 10},
		Fields:           &core.FieldSet{Fields: []core.Field{{Name: "a"}, {Name: "b c", Alias: "col0"}}},
		InitialCondition: "a > 0",
		DefaultName:      "Filtered_T3",
	}
	resp, err := p.Collect(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, core.InputResponse{
		Condition:     "a > 1",
		Start:         2,
		Stop:          int64p(8),
		Step:          int64p(2),
		ResultName:    "Filtered_T3",
		IndicesColumn: "idx",
	}, resp)
	assert.Equal(t, []string{"a > 0", "0:10:1", "0:10:1", "Filtered_T3", ""}, fr.defaults)
	assert.Contains(t, tr.Output(), "Fields: a, col0 (b c)")
	assert.Contains(t, tr.Output(), "not an integer")
}

func TestPromptInput_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
	}{
		{"eof at condition", nil},
		{"empty condition", []string{"   "}},
		{"eof at name", []string{"a > 1", "<default>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PromptInput{rl: &fakeReader{answers: tt.answers}, r: clitestutil.NewTestRendererText().Renderer}
			resp, err := p.Collect(context.Background(), core.InputRequest{
				Table:  &core.TableInfo{RowCount: 3},
				Fields: &core.FieldSet{Fields: []core.Field{{Name: "a"}}},
			})
			require.NoError(t, err)
			assert.Empty(t, resp.Condition)
		})
	}
}

func TestRunTables(t *testing.T) {
	cmdCtx, tr := newTestContext(t, 4, nil)

	require.NoError(t, runTables(context.Background(), cmdCtx, "fixture"))
	out := tr.Output()
	assert.Contains(t, out, "/T")
	assert.Contains(t, out, "/U")
	assert.Contains(t, out, "table T")
}

func TestRunTables_UnknownDatabase(t *testing.T) {
	cmdCtx, _ := newTestContext(t, 4, nil)

	err := runTables(context.Background(), cmdCtx, "nope.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Hint")
}

func TestRunFields(t *testing.T) {
	cmdCtx, tr := newTestContext(t, 4, nil)
	src, err := openSource(context.Background(), cmdCtx, "fixture")
	require.NoError(t, err)

	require.NoError(t, runFields(context.Background(), cmdCtx, src, "/T"))
	out := tr.Output()
	assert.Contains(t, out, "col0")
	assert.Contains(t, out, "excluded: shape (2,)")
	clitestutil.AssertNoANSI(t, out)
}

func TestRunFields_JSON(t *testing.T) {
	cmdCtx, _ := newTestContext(t, 4, nil)
	tr := clitestutil.NewTestRendererJSON()
	cmdCtx.Renderer = tr.Renderer
	src, err := openSource(context.Background(), cmdCtx, "fixture")
	require.NoError(t, err)

	require.NoError(t, runFields(context.Background(), cmdCtx, src, "/T"))

	var got struct {
		Rows   int64 `json:"rows"`
		Fields []struct {
			Name     string `json:"name"`
			Alias    string `json:"alias"`
			Excluded bool   `json:"excluded"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
	assert.Equal(t, int64(4), got.Rows)
	require.Len(t, got.Fields, 3)
	assert.Equal(t, "col0", got.Fields[1].Alias)
	assert.True(t, got.Fields[2].Excluded)
}

func TestRenderCompletion(t *testing.T) {
	cmdCtx, tr := newTestContext(t, 10, nil)

	c := runTestQuery(t, cmdCtx, "/T", "col0 >= 3")
	require.True(t, c.Completed, "err: %v", c.Err)

	renderCompletion(cmdCtx.Renderer, c)
	assert.Contains(t, tr.Output(), "Filtered_T1: 4 of 10 rows matched")
	assert.Contains(t, tr.Output(), "(b c) >= 3")

	tr.Reset()
	renderCompletion(cmdCtx.Renderer, core.Completion{Source: c.Source, Err: core.NewError(core.ErrCancelled, "execute", "", nil)})
	assert.Contains(t, tr.Output(), "cancelled")
	assert.Empty(t, tr.ErrorOutput())

	renderCompletion(cmdCtx.Renderer, core.Completion{Source: c.Source, Err: core.ErrEvaluation})
	assert.Contains(t, tr.ErrorOutput(), "failed")
}

func TestQueryInput_Flags(t *testing.T) {
	in, done, err := queryInput(nil, &QueryOptions{Where: "a > 1", Range: "1:5:2", Name: "x", Indices: "i"})
	require.NoError(t, err)
	defer done()
	assert.Equal(t, descriptor.StaticInput{Condition: "a > 1", Start: 1, Stop: int64p(5), Step: int64p(2), ResultName: "x", IndicesColumn: "i"}, in)

	_, _, err = queryInput(nil, &QueryOptions{Where: "a > 1", Range: "x"})
	require.Error(t, err)
}

func TestResultsCommands(t *testing.T) {
	cmdCtx, tr := newTestContext(t, 10, nil)
	ctx := context.Background()
	runTestQuery(t, cmdCtx, "/T", "a >= 6")
	runTestQuery(t, cmdCtx, "/U", "a < 2")

	require.NoError(t, runResultsList(ctx, cmdCtx))
	assert.Contains(t, tr.Output(), "Filtered_T1")
	assert.Contains(t, tr.Output(), "Filtered_U2")

	tr.Reset()
	require.NoError(t, runResultsShow(ctx, cmdCtx, "Filtered_T1", 2))
	out := tr.Output()
	assert.Contains(t, out, "a >= 6")
	assert.Contains(t, out, "2 more rows")

	require.ErrorIs(t, runResultsShow(ctx, cmdCtx, "missing", 2), core.ErrTableNotFound)

	require.NoError(t, cmdCtx.Engine.DeleteResult(ctx, "Filtered_U2"))
	assert.Equal(t, []string{"Filtered_T1"}, cmdCtx.Engine.UsedNames())
}

func TestAskConfirm(t *testing.T) {
	var out strings.Builder
	assert.True(t, askConfirm(strings.NewReader("y\n"), &out, "Sure?"))
	assert.True(t, askConfirm(strings.NewReader(" YES \n"), &out, "Sure?"))
	assert.False(t, askConfirm(strings.NewReader("n\n"), &out, "Sure?"))
	assert.False(t, askConfirm(strings.NewReader(""), &out, "Sure?"))
	assert.Contains(t, out.String(), "Sure? [y/N]")
}

func TestRunHistory(t *testing.T) {
	cmdCtx, tr := newTestContext(t, 5, nil)
	runTestQuery(t, cmdCtx, "/T", "a > 1")
	runTestQuery(t, cmdCtx, "/T", "nope > 1")

	require.NoError(t, runHistory(cmdCtx, 10))
	out := tr.Output()
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "nope > 1")
}

func TestShell(t *testing.T) {
	completions := make(chan core.Completion, 4)
	cmdCtx, tr := newTestContext(t, 10, core.ChanSink(completions))
	fr := &fakeReader{}
	sh := newShell(cmdCtx, fr, tr.Renderer)
	ctx := context.Background()

	assert.False(t, sh.exec(ctx, "tables"))
	assert.Contains(t, tr.ErrorOutput(), "no database open")

	tr.Reset()
	assert.False(t, sh.exec(ctx, "open fixture"))
	assert.Contains(t, tr.Output(), "/T")

	tr.Reset()
	assert.False(t, sh.exec(ctx, "query /T a >= 7"))
	assert.Contains(t, tr.Output(), "running on /T")

	select {
	case c := <-completions:
		sh.finished(c)
	case <-time.After(10 * time.Second):
		t.Fatal("query did not finish")
	}
	assert.Contains(t, tr.Output(), "Filtered_T1: 3 of 10 rows matched")
	assert.Empty(t, sh.live())

	tr.Reset()
	sh.exec(ctx, "results")
	assert.Contains(t, tr.Output(), "Filtered_T1")

	tr.Reset()
	sh.exec(ctx, "status")
	assert.Contains(t, tr.Output(), "a >= 7")
	assert.Contains(t, tr.Output(), "no queries running")

	tr.Reset()
	sh.exec(ctx, "cancel abc")
	assert.Contains(t, tr.ErrorOutput(), "no running query")

	tr.Reset()
	sh.exec(ctx, "bogus")
	assert.Contains(t, tr.ErrorOutput(), "unknown command")

	tr.Reset()
	fr.answers = []string{"n"}
	sh.exec(ctx, "clear")
	assert.Contains(t, tr.Output(), "Deleted 0 result tables")
	assert.Equal(t, []string{"Filtered_T1"}, cmdCtx.Engine.UsedNames())

	tr.Reset()
	fr.answers = []string{"y"}
	sh.exec(ctx, "clear")
	assert.Contains(t, tr.Output(), "Deleted 1 result tables")
	assert.Empty(t, cmdCtx.Engine.UsedNames())

	tr.Reset()
	sh.exec(ctx, "query /T")
	assert.Empty(t, tr.ErrorOutput(), "a prompt cancelled with Ctrl-D is not an error")

	assert.True(t, sh.exec(ctx, "quit"))
}

func TestShellHistoryFile(t *testing.T) {
	assert.Equal(t, "", shellHistoryFile(":memory:"))
	assert.Equal(t, "", shellHistoryFile(""))
	assert.Equal(t, "/p/.leapquery/shell_history", shellHistoryFile("/p/.leapquery/state.db"))
}

func int64p(v int64) *int64 { return &v }
