// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/testutils"
)

func researchScript() *testutils.ScriptedModel {
	return testutils.NewScriptedModel(
		testutils.CallTools(testutils.Call("c1", "write_todos", map[string]any{
			"todos": []any{map[string]any{"content": "Write report", "status": "in_progress"}},
		})),
		testutils.CallTools(testutils.Call("c2", "write_file", map[string]any{
			"file_path": "report.md",
			"content":   "# Report\nfindings\n",
		})),
		testutils.Reply("done"),
	)
}

func TestRunCmd_StoresRun(t *testing.T) {
	path := writeConfig(t, "")
	cli, out := newTestCLI(t, path, researchScript())

	cmd := &RunCmd{Task: "write a report", RunID: "r1", Output: "json", Quiet: true}
	require.NoError(t, cmd.Run(cli))

	var summary runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, "r1", summary.RunID)
	assert.Equal(t, store.StatusCompleted, summary.Status)
	assert.Equal(t, "done", summary.FinalMessage)
	assert.Equal(t, []string{"report.md"}, summary.Files)
	assert.Equal(t, []state.Todo{{Content: "Write report", Status: state.StatusInProgress}}, summary.Todos)

	t.Run("runs", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&RunsCmd{Output: "table"}).Run(cli))
		assert.Contains(t, out.String(), "ID")
		assert.Contains(t, out.String(), "r1")

		out.Reset()
		require.NoError(t, (&RunsCmd{Output: "json"}).Run(cli))
		var infos []store.Info
		require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, 1, infos[0].Files)
	})

	t.Run("show", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&ShowCmd{RunID: "r1", Output: "yaml"}).Run(cli))
		assert.Contains(t, out.String(), "run_id: r1")
		assert.Contains(t, out.String(), "final_message: done")

		out.Reset()
		require.NoError(t, (&ShowCmd{RunID: "r1", Output: "json", Full: true}).Run(cli))
		var run store.Run
		require.NoError(t, json.Unmarshal(out.Bytes(), &run))
		assert.Equal(t, "# Report\nfindings\n", run.State.Files["report.md"])
	})

	t.Run("files", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&FilesCmd{RunID: "r1"}).Run(cli))
		assert.Contains(t, out.String(), "report.md")

		out.Reset()
		require.NoError(t, (&FilesCmd{RunID: "r1", Path: "report.md", Offset: 1, Limit: 1}).Run(cli))
		assert.Equal(t, "findings\n", out.String())

		err := (&FilesCmd{RunID: "r1", Path: "missing.md"}).Run(cli)
		assert.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("todos", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&TodosCmd{RunID: "r1", Output: "text"}).Run(cli))
		assert.Contains(t, out.String(), "Write report (in_progress)")
	})

	t.Run("rm", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&RmCmd{RunIDs: []string{"r1"}}).Run(cli))
		assert.Equal(t, "deleted r1\n", out.String())

		err := (&ShowCmd{RunID: "r1", Output: "yaml"}).Run(cli)
		assert.ErrorIs(t, err, state.ErrNotFound)
	})
}

func TestRunCmd_ContinuesRun(t *testing.T) {
	path := writeConfig(t, "")
	llm := testutils.NewScriptedModel(testutils.Reply("first"), testutils.Reply("second"))
	cli, out := newTestCLI(t, path, llm)

	require.NoError(t, (&RunCmd{Task: "one", RunID: "chat", Output: "json", Quiet: true}).Run(cli))
	out.Reset()
	require.NoError(t, (&RunCmd{Task: "two", RunID: "chat", Output: "json", Quiet: true}).Run(cli))

	var summary runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, "second", summary.FinalMessage)

	out.Reset()
	require.NoError(t, (&ShowCmd{RunID: "chat", Output: "json", Full: true}).Run(cli))
	var run store.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &run))
	assert.Len(t, run.State.Messages, 4)

	// The second request carries the first exchange.
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3)
}

func TestRunCmd_SeedFiles(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("seeded"), 0o644))

	path := writeConfig(t, "")
	cli, out := newTestCLI(t, path, testutils.NewScriptedModel(testutils.Reply("ok")))

	cmd := &RunCmd{Task: "read", RunID: "seed", Files: []string{notes, "brief.md=" + notes}, Output: "json", Quiet: true}
	require.NoError(t, cmd.Run(cli))

	var summary runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, []string{"brief.md", "notes.txt"}, summary.Files)
}

func TestRunCmd_BudgetExceeded(t *testing.T) {
	path := writeConfig(t, "agent:\n  budget:\n    max_steps: 1\n")
	llm := testutils.NewScriptedModel(
		testutils.CallTools(testutils.Call("c1", "ls", nil)),
		testutils.CallTools(testutils.Call("c2", "ls", nil)),
	)
	cli, out := newTestCLI(t, path, llm)

	err := (&RunCmd{Task: "loop", RunID: "b1", Output: "text"}).Run(cli)
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrBudgetExceeded)
	assert.Contains(t, out.String(), "Run b1 failed")
	assert.Contains(t, cli.errOut.(*bytes.Buffer).String(), "calls ls")

	out.Reset()
	require.NoError(t, (&ShowCmd{RunID: "b1", Output: "json"}).Run(cli))
	var summary runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, store.StatusFailed, summary.Status)
	assert.Contains(t, summary.Error, "budget exceeded")
}

func TestCallCmd(t *testing.T) {
	path := writeConfig(t, "")
	cli, out := newTestCLI(t, path, testutils.NewScriptedModel())

	write := &CallCmd{Tool: "write_file", Args: `{'file_path': 'a.md', 'content': 'hello',}`, RunID: "c1"}
	require.NoError(t, write.Run(cli))
	assert.Contains(t, out.String(), "a.md")

	out.Reset()
	require.NoError(t, (&CallCmd{Tool: "read_file", Args: `{"file_path": "a.md"}`, RunID: "c1"}).Run(cli))
	assert.Contains(t, out.String(), "hello")

	out.Reset()
	require.NoError(t, (&CallCmd{Tool: "ls", RunID: "c1"}).Run(cli))
	assert.Equal(t, "['a.md']\n", out.String())

	err := (&CallCmd{Tool: "read_file", Args: `{"file_path": "missing.md"}`, RunID: "c1"}).Run(cli)
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrNotFound)

	err = (&CallCmd{Tool: "fly"}).Run(cli)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tool "fly"`)

	// Without a run ID nothing is stored.
	require.NoError(t, (&CallCmd{Tool: "write_file", Args: `{"file_path": "b.md", "content": "x"}`}).Run(cli))
	out.Reset()
	require.NoError(t, (&RunsCmd{Output: "json"}).Run(cli))
	var infos []store.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "c1", infos[0].ID)
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]any{}},
		{name: "json", raw: `{"a": 1}`, want: map[string]any{"a": float64(1)}},
		{name: "single quotes and trailing comma", raw: `{'a': 'b',}`, want: map[string]any{"a": "b"}},
		{name: "null", raw: "null", want: map[string]any{}},
		{name: "array", raw: `[1, 2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadSeedFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.md")
	require.NoError(t, os.WriteFile(src, []byte("body"), 0o644))

	files, err := readSeedFiles([]string{src, "docs/plan.md=" + src})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"src.md": "body", "docs/plan.md": "body"}, files)

	_, err = readSeedFiles([]string{"=" + src})
	require.Error(t, err)

	_, err = readSeedFiles([]string{filepath.Join(dir, "missing.md")})
	require.Error(t, err)

	files, err = readSeedFiles(nil)
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestValidateCmd(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret-key")
	path := writeConfig(t, "")
	cli, out := newTestCLI(t, path, nil)

	require.NoError(t, (&ValidateCmd{Format: "compact"}).Run(cli))
	assert.Equal(t, path+": valid\n", out.String())

	out.Reset()
	require.NoError(t, (&ValidateCmd{Format: "json"}).Run(cli))
	var report validationReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Valid)

	out.Reset()
	require.NoError(t, (&ValidateCmd{Format: "compact", PrintConfig: true}).Run(cli))
	assert.Contains(t, out.String(), "********")
	assert.NotContains(t, out.String(), "secret-key")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("model:\n  provider: other\n"), 0o644))
	out.Reset()
	err := (&ValidateCmd{Path: bad, Format: "json"}).Run(cli)
	require.Error(t, err)
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "unsupported model provider")
}

func TestVersionCmd(t *testing.T) {
	cli, out := newTestCLI(t, "", nil)
	require.NoError(t, (&VersionCmd{}).Run(cli))
	assert.True(t, strings.HasPrefix(out.String(), "deepagent "))
}
