// Package main provides tests for the leapquery CLI.
package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapquery/internal/cli"
	"github.com/leapstack-labs/leapquery/internal/cli/config"
	clitestutil "github.com/leapstack-labs/leapquery/internal/cli/testutil"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "leapquery v") {
		t.Errorf("version output should contain 'leapquery v', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := execute(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"tables", "fields", "query", "results", "history", "shell"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestQueryCommand(t *testing.T) {
	t.Chdir(clitestutil.SetupTestProject(t, 8))

	output, err := execute(t, "query", "fixture", "/T", "--where", "a >= 5", "--indices", "src_row", "-o", "json")
	if err != nil {
		t.Fatalf("query command error = %v", err)
	}

	var got struct {
		Status  string  `json:"status"`
		Result  string  `json:"result"`
		Matched int64   `json:"rows_matched"`
		Indices []int64 `json:"indices"`
	}
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("query output is not JSON: %v\n%s", err, output)
	}
	if got.Status != "completed" || got.Result != "Filtered_T1" || got.Matched != 3 {
		t.Errorf("unexpected query output: %+v", got)
	}
	if len(got.Indices) != 3 || got.Indices[0] != 5 {
		t.Errorf("indices = %v, want [5 6 7]", got.Indices)
	}

	// The result store and history persist across invocations.
	output, err = execute(t, "results", "list", "-o", "json")
	if err != nil {
		t.Fatalf("results command error = %v", err)
	}
	if !strings.Contains(output, `"Filtered_T1"`) {
		t.Errorf("results output should list Filtered_T1, got: %s", output)
	}

	output, err = execute(t, "history", "-o", "json")
	if err != nil {
		t.Fatalf("history command error = %v", err)
	}
	if !strings.Contains(output, "a >= 5") {
		t.Errorf("history output should contain the condition, got: %s", output)
	}

	// The next query on the table continues the counter.
	output, err = execute(t, "query", "fixture", "/T", "-w", "a < 1", "-o", "json")
	if err != nil {
		t.Fatalf("second query error = %v", err)
	}
	if !strings.Contains(output, "Filtered_T2") {
		t.Errorf("second query should produce Filtered_T2, got: %s", output)
	}
}

func TestQueryCommand_Failure(t *testing.T) {
	t.Chdir(clitestutil.SetupTestProject(t, 4))

	if _, err := execute(t, "query", "fixture", "/T", "--where", "missing > 1"); err == nil {
		t.Error("query with an undefined name should fail")
	}
	if _, err := execute(t, "query", "fixture", "/T"); err == nil {
		t.Error("query without a condition off a terminal should fail")
	}
}
