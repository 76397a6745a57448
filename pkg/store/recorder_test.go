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

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/testutils"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/filetool"
)

func newRunner(t *testing.T, steps ...testutils.Step) *runner.Runner {
	t.Helper()
	write, err := filetool.NewWriteFile(nil)
	require.NoError(t, err)

	r, err := runner.New(runner.Config{
		Name:  "orchestrator",
		Model: testutils.NewScriptedModel(steps...),
		Tools: []tool.Tool{write},
	})
	require.NoError(t, err)
	return r
}

func TestTrack_SavesEverySnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	r := newRunner(t,
		testutils.CallTools(testutils.Call("c1", "write_file", map[string]any{"file_path": "plan.md", "content": "plan"})),
		testutils.Reply("done"),
	)

	var statuses []Status
	events := r.Run(ctx, state.New(state.HumanMessage("go")), runner.WithRunID("tracked"))
	for ev, err := range Track(ctx, s, nil, events) {
		require.NoError(t, err)
		run, lerr := s.Load(ctx, "tracked")
		require.NoError(t, lerr)
		assert.Equal(t, ev.Step, run.Steps)
		statuses = append(statuses, run.Status)
	}

	assert.Equal(t, []Status{StatusRunning, StatusRunning, StatusCompleted}, statuses)

	run, err := s.Load(ctx, "tracked")
	require.NoError(t, err)
	assert.Equal(t, "orchestrator", run.Agent)
	assert.Equal(t, "plan", run.State.Files["plan.md"])
	assert.Equal(t, "done", run.State.Messages[len(run.State.Messages)-1].Content)
}

func TestTrack_RecordsFailure(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	r := newRunner(t,
		testutils.CallTools(testutils.Call("c1", "write_file", map[string]any{"file_path": "a.md", "content": "x"})),
		testutils.Fail(errors.New("model unavailable")),
	)

	var lastErr error
	for _, err := range Track(ctx, s, nil, r.Run(ctx, state.New(state.HumanMessage("go")), runner.WithRunID("broken"))) {
		if err != nil {
			lastErr = err
		}
	}
	require.Error(t, lastErr)

	run, err := s.Load(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.Error, "model unavailable")
	assert.Equal(t, "x", run.State.Files["a.md"], "partial state is kept")
}

func TestRunFromEvent(t *testing.T) {
	ev := &runner.Event{RunID: "r", Agent: "a", Step: 3, Tokens: 40, Type: runner.EventToolResult}
	run := RunFromEvent(ev, nil)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, 3, run.Steps)
	assert.Equal(t, 40, run.Tokens)

	ev.Type = runner.EventFinal
	assert.Equal(t, StatusCompleted, RunFromEvent(ev, nil).Status)

	failed := RunFromEvent(ev, errors.New("x"))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "x", failed.Error)
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	seed := state.Update{Messages: []state.Message{state.HumanMessage("next")}}

	fresh, id, err := Resume(ctx, s, "", seed)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, fresh.Messages, 1)

	named, id, err := Resume(ctx, s, "named", seed)
	require.NoError(t, err)
	assert.Equal(t, "named", id)
	assert.Len(t, named.Messages, 1)

	prev := state.Merge(state.New(state.HumanMessage("first"), state.AIMessage("ok")), state.PutFile("a.md", "x"))
	require.NoError(t, s.Save(ctx, &Run{ID: "old", Agent: "main", Status: StatusCompleted, State: prev}))

	cont, id, err := Resume(ctx, s, "old", seed)
	require.NoError(t, err)
	assert.Equal(t, "old", id)
	require.Len(t, cont.Messages, 3)
	assert.Equal(t, "next", cont.Messages[2].Content)
	assert.Equal(t, "x", cont.Files["a.md"])
}
