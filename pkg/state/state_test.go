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

package state_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

func TestTodos_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		todos []state.Todo
	}{
		{name: "empty", todos: []state.Todo{}},
		{name: "single", todos: []state.Todo{{Content: "search", Status: state.StatusPending}}},
		{name: "mixed", todos: []state.Todo{
			{Content: "plan", Status: state.StatusCompleted},
			{Content: "research", Status: state.StatusInProgress},
			{Content: "write report", Status: state.StatusPending},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := state.WriteTodos(tt.todos, state.DefaultLedgerPolicy)
			require.NoError(t, err)

			s := state.Merge(state.New(), u)
			assert.Equal(t, tt.todos, state.ReadTodos(s))
		})
	}
}

func TestReadTodos_EmptyWhenUnset(t *testing.T) {
	got := state.ReadTodos(state.AgentState{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWriteTodos_Validation(t *testing.T) {
	t.Run("unknown status", func(t *testing.T) {
		_, err := state.WriteTodos([]state.Todo{{Content: "x", Status: "done"}}, state.DefaultLedgerPolicy)
		require.Error(t, err)
		assert.ErrorIs(t, err, state.ErrValidation)

		var verr *state.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "todos[0].status", verr.Field)
	})

	t.Run("two in progress rejected by default", func(t *testing.T) {
		todos := []state.Todo{
			{Content: "a", Status: state.StatusInProgress},
			{Content: "b", Status: state.StatusInProgress},
		}
		_, err := state.WriteTodos(todos, state.DefaultLedgerPolicy)
		assert.ErrorIs(t, err, state.ErrValidation)
	})

	t.Run("two in progress allowed when advisory", func(t *testing.T) {
		todos := []state.Todo{
			{Content: "a", Status: state.StatusInProgress},
			{Content: "b", Status: state.StatusInProgress},
		}
		_, err := state.WriteTodos(todos, state.LedgerPolicy{})
		assert.NoError(t, err)
	})
}

func TestWriteTodos_ReplacesWholeLedger(t *testing.T) {
	first, err := state.WriteTodos([]state.Todo{
		{Content: "a", Status: state.StatusPending},
		{Content: "b", Status: state.StatusPending},
	}, state.DefaultLedgerPolicy)
	require.NoError(t, err)
	second, err := state.WriteTodos([]state.Todo{{Content: "c", Status: state.StatusCompleted}}, state.DefaultLedgerPolicy)
	require.NoError(t, err)

	s := state.Merge(state.New(), first, second)
	assert.Equal(t, []state.Todo{{Content: "c", Status: state.StatusCompleted}}, s.Todos)
}

func TestFormatTodos(t *testing.T) {
	assert.Equal(t, "No todos currently in the list.", state.FormatTodos(nil))

	got := state.FormatTodos([]state.Todo{
		{Content: "search", Status: state.StatusPending},
		{Content: "read", Status: state.StatusInProgress},
		{Content: "plan", Status: state.StatusCompleted},
	})
	want := "Current TODO List:\n" +
		"1. ⏳ search (pending)\n" +
		"2. 🔄 read (in_progress)\n" +
		"3. ✅ plan (completed)"
	assert.Equal(t, want, got)
}

func TestFiles_WriteThenRead(t *testing.T) {
	contents := []string{"", "draft", "line one\nline two\n", "no trailing newline\nsecond", "ünïcödé ✓"}
	for _, c := range contents {
		u, err := state.WriteFile("notes.md", c)
		require.NoError(t, err)

		got, err := state.ReadFile(state.Merge(state.New(), u), "notes.md", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestReadFile_NotFound(t *testing.T) {
	_, err := state.ReadFile(state.New(), "missing.md", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrNotFound)

	var nf *state.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing.md", nf.Path)
}

func TestReadFile_OffsetLimit(t *testing.T) {
	s := state.Merge(state.New(), state.PutFile("f.txt", "a\nb\nc\nd\n"))

	tests := []struct {
		name   string
		offset int
		limit  int
		want   string
	}{
		{"whole", 0, 0, "a\nb\nc\nd\n"},
		{"first two", 0, 2, "a\nb\n"},
		{"middle", 1, 2, "b\nc\n"},
		{"tail unbounded", 2, 0, "c\nd\n"},
		{"limit past end", 3, 10, "d\n"},
		{"offset at end", 4, 1, ""},
		{"offset far past end", 100, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := state.ReadFile(s, "f.txt", tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := state.ReadFile(s, "f.txt", -1, 0)
	assert.ErrorIs(t, err, state.ErrValidation)
}

func TestWriteFile_EmptyPath(t *testing.T) {
	for _, p := range []string{"", "   "} {
		_, err := state.WriteFile(p, "x")
		assert.ErrorIs(t, err, state.ErrValidation)
	}
}

func TestWriteFile_LastWriteWins(t *testing.T) {
	s := state.Merge(state.New(), state.PutFile("q.md", "other"))

	u1, err := state.WriteFile("p.md", "c1")
	require.NoError(t, err)
	u2, err := state.WriteFile("p.md", "c2")
	require.NoError(t, err)
	s = state.Merge(s, u1, u2)

	got, err := state.ReadFile(s, "p.md", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "c2", got)

	other, err := state.ReadFile(s, "q.md", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "other", other)
}

func TestEditFile(t *testing.T) {
	base := state.Merge(state.New(),
		state.PutFile("once.md", "draft version"),
		state.PutFile("twice.md", "foo and foo"),
	)

	t.Run("single replacement", func(t *testing.T) {
		u, res, err := state.EditFile(base, "once.md", "draft", "final", false)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Replacements)
		assert.Equal(t, "final version", u.Files["once.md"])
	})

	t.Run("ambiguous without replace_all", func(t *testing.T) {
		_, _, err := state.EditFile(base, "twice.md", "foo", "bar", false)
		require.Error(t, err)
		assert.ErrorIs(t, err, state.ErrAmbiguousMatch)

		var amb *state.AmbiguousMatchError
		require.ErrorAs(t, err, &amb)
		assert.Equal(t, 2, amb.Count)
	})

	t.Run("replace all", func(t *testing.T) {
		u, res, err := state.EditFile(base, "twice.md", "foo", "bar", true)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Replacements)
		assert.Equal(t, "bar and bar", u.Files["twice.md"])
	})

	t.Run("no match", func(t *testing.T) {
		_, _, err := state.EditFile(base, "once.md", "absent", "x", false)
		assert.ErrorIs(t, err, state.ErrNoMatch)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := state.EditFile(base, "nope.md", "a", "b", false)
		assert.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("empty find", func(t *testing.T) {
		_, _, err := state.EditFile(base, "once.md", "", "b", false)
		assert.ErrorIs(t, err, state.ErrValidation)
	})
}

func TestLs_Sorted(t *testing.T) {
	assert.Equal(t, []string{}, state.Ls(state.New()))

	s := state.Merge(state.New(), state.Update{Files: map[string]string{
		"b.md": "", "a.md": "", "c/d.md": "",
	}})
	assert.Equal(t, []string{"a.md", "b.md", "c/d.md"}, state.Ls(s))
}

func TestMerge_Semantics(t *testing.T) {
	s := state.New(state.HumanMessage("hi"))
	s = state.Merge(s, state.Update{
		Files: map[string]string{"a": "1", "b": "2"},
	})

	next := state.Merge(s,
		state.Update{Messages: []state.Message{state.AIMessage("one")}},
		state.Update{Messages: []state.Message{state.AIMessage("two")}, Files: map[string]string{"b": "3"}},
	)

	require.Len(t, next.Messages, 3)
	assert.Equal(t, "hi", next.Messages[0].Content)
	assert.Equal(t, "one", next.Messages[1].Content)
	assert.Equal(t, "two", next.Messages[2].Content)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, next.Files)

	// inputs untouched
	assert.Len(t, s.Messages, 1)
	assert.Equal(t, "2", s.Files["b"])
}

func TestMerge_EmptyTodosClearsLedger(t *testing.T) {
	s := state.Merge(state.New(), state.ReplaceTodos([]state.Todo{{Content: "x", Status: state.StatusPending}}))
	require.Len(t, s.Todos, 1)

	s = state.Merge(s, state.Update{})
	assert.Len(t, s.Todos, 1, "update without todos leaves the ledger alone")

	s = state.Merge(s, state.ReplaceTodos(nil))
	assert.Empty(t, s.Todos)
}

func TestMerge_Idempotent(t *testing.T) {
	u := state.Combine(
		state.ReplaceTodos([]state.Todo{{Content: "x", Status: state.StatusInProgress}}),
		state.PutFile("a.md", "alpha"),
		state.PutFile("b.md", "beta"),
	)
	base := state.Merge(state.New(), state.PutFile("c.md", "gamma"))

	once := state.Merge(base, u)
	twice := state.Merge(base, u, u)

	assert.Equal(t, once.Todos, twice.Todos)
	assert.Equal(t, once.Files, twice.Files)
}

func TestMerge_DoesNotAliasUpdate(t *testing.T) {
	todos := []state.Todo{{Content: "x", Status: state.StatusPending}}
	u := state.Update{Todos: &todos, Files: map[string]string{"a": "1"}}

	s := state.Merge(state.New(), u)
	todos[0].Content = "mutated"
	u.Files["a"] = "mutated"

	assert.Equal(t, "x", s.Todos[0].Content)
	assert.Equal(t, "1", s.Files["a"])
}

func TestCombine(t *testing.T) {
	u := state.Combine(
		state.Update{Messages: []state.Message{state.AIMessage("a")}},
		state.ReplaceTodos([]state.Todo{{Content: "first", Status: state.StatusPending}}),
		state.PutFile("f", "1"),
		state.ReplaceTodos([]state.Todo{{Content: "second", Status: state.StatusPending}}),
		state.PutFile("f", "2"),
	)
	require.NotNil(t, u.Todos)
	assert.Equal(t, "second", (*u.Todos)[0].Content)
	assert.Equal(t, "2", u.Files["f"])
	assert.Len(t, u.Messages, 1)
	assert.False(t, u.IsEmpty())
	assert.True(t, state.Update{}.IsEmpty())
}

func TestDiff(t *testing.T) {
	before := map[string]string{"same": "x", "changed": "old"}
	after := map[string]string{"same": "x", "changed": "new", "added": "y"}

	assert.Equal(t, map[string]string{"changed": "new", "added": "y"}, state.Diff(before, after))
	assert.Empty(t, state.Diff(before, before))
}

func TestErrors_Messages(t *testing.T) {
	err := &state.BudgetExceededError{Agent: "researcher", Kind: state.BudgetSteps, Limit: 3, Used: 4}
	assert.Equal(t, "researcher: steps budget exceeded (used 4, limit 3)", err.Error())
	assert.ErrorIs(t, err, state.ErrBudgetExceeded)

	perm := &state.ToolNotPermittedError{Tool: "write_file", Allowed: []string{"read_file"}}
	assert.Contains(t, perm.Error(), "allowed tools: read_file")
	assert.ErrorIs(t, perm, state.ErrToolNotPermitted)
	assert.NotErrorIs(t, perm, state.ErrValidation)
}

func TestTrimLineEnding(t *testing.T) {
	assert.Equal(t, "a", state.TrimLineEnding("a\n"))
	assert.Equal(t, "a", state.TrimLineEnding("a\r\n"))
	assert.Equal(t, "a\rb", state.TrimLineEnding("a\rb"))
	assert.Equal(t, "", state.TrimLineEnding("\r\n"))
}
