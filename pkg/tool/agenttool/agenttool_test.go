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

package agenttool_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/testutils"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/agenttool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/filetool"
)

func fileTools(t *testing.T) []tool.Tool {
	t.Helper()
	tools, err := filetool.Tools(filetool.Config{})
	require.NoError(t, err)
	return tools
}

func newTask(t *testing.T, llm model.LLM, maxDelta int, subagents ...agenttool.SubAgent) tool.CallableTool {
	t.Helper()
	if len(subagents) == 0 {
		subagents = []agenttool.SubAgent{{
			Name:        "research-agent",
			Description: "Delegate research to the sub-agent researcher.",
			Prompt:      "You are a researcher.",
		}}
	}
	task, err := agenttool.New(agenttool.Config{
		SubAgents:     subagents,
		Runtime:       runner.Config{Model: llm, Tools: fileTools(t)},
		MaxDeltaFiles: maxDelta,
	})
	require.NoError(t, err)
	return task
}

func parentState() state.AgentState {
	s := testutils.StateWithFiles(map[string]string{"notes.md": "final", "other.md": "x"})
	todos := []state.Todo{{Content: "search", Status: state.StatusInProgress}}
	return state.Merge(s,
		state.Update{Messages: []state.Message{state.HumanMessage("parent question"), state.AIMessage("thinking")}},
		state.ReplaceTodos(todos),
	)
}

func TestNew_Validation(t *testing.T) {
	llm := testutils.NewScriptedModel()

	tests := []struct {
		name    string
		cfg     agenttool.Config
		wantErr string
	}{
		{
			name:    "no sub-agents",
			cfg:     agenttool.Config{Runtime: runner.Config{Model: llm}},
			wantErr: "at least one sub-agent",
		},
		{
			name:    "no model",
			cfg:     agenttool.Config{SubAgents: []agenttool.SubAgent{{Name: "a"}}},
			wantErr: "model is required",
		},
		{
			name: "unknown tool",
			cfg: agenttool.Config{
				SubAgents: []agenttool.SubAgent{{Name: "a", Tools: []string{"teleport"}}},
				Runtime:   runner.Config{Model: llm, Tools: fileTools(t)},
			},
			wantErr: `unknown tool "teleport"`,
		},
		{
			name: "duplicate sub-agent",
			cfg: agenttool.Config{
				SubAgents: []agenttool.SubAgent{{Name: "a"}, {Name: "a"}},
				Runtime:   runner.Config{Model: llm},
			},
			wantErr: "duplicate sub-agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agenttool.New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTask_Description(t *testing.T) {
	task := newTask(t, testutils.NewScriptedModel(), 0,
		agenttool.SubAgent{Name: "research-agent", Description: "Does research."},
		agenttool.SubAgent{Name: "critique-agent", Description: "Critiques reports.", Tools: []string{"read_file", "task"}},
	)

	assert.Equal(t, agenttool.Name, task.Name())
	assert.Contains(t, task.Description(), "- research-agent: Does research.\n- critique-agent: Critiques reports.")

	ct, ok := task.(tool.ConcurrentTool)
	require.True(t, ok)
	assert.True(t, ct.ConcurrencySafe())

	props := task.Schema()["properties"].(map[string]any)
	assert.Contains(t, props, "description")
	assert.Contains(t, props, "subagent_type")
	assert.Contains(t, props, "files")
}

func TestTask_UnknownSubagent(t *testing.T) {
	task := newTask(t, testutils.NewScriptedModel(), 0,
		agenttool.SubAgent{Name: "research-agent"},
		agenttool.SubAgent{Name: "critique-agent"},
	)

	ctx := testutils.ToolContext(parentState())
	_, err := task.Call(ctx, map[string]any{"description": "do it", "subagent_type": "nope"})
	require.ErrorIs(t, err, state.ErrValidation)
	assert.Contains(t, err.Error(), "invoked agent of type nope, the only allowed types are [`research-agent`, `critique-agent`]")
	assert.True(t, ctx.Actions().Update.IsEmpty())
}

func TestTask_IsolatedChild(t *testing.T) {
	child := testutils.NewScriptedModel(
		testutils.CallTools(testutils.Call("r1", "read_file", map[string]any{"file_path": "notes.md"})),
		testutils.CallTools(testutils.Call("w1", "write_file", map[string]any{"file_path": "summary.md", "content": "summary of final"})),
		testutils.Reply("The notes say final."),
	)
	task := newTask(t, child, 0)

	parent := parentState()
	ctx := testutils.ToolContext(parent)
	result, err := task.Call(ctx, map[string]any{"description": "summarize X", "subagent_type": "research-agent"})
	require.NoError(t, err)

	assert.Equal(t, "The notes say final.", tool.ResultText(result))
	assert.Equal(t, "research-agent", result["subagent"])

	// Only the created file flows back.
	u := ctx.Actions().Update
	assert.Equal(t, map[string]string{"summary.md": "summary of final"}, u.Files)
	assert.Nil(t, u.Todos)
	assert.Empty(t, u.Messages)

	// The child saw only its task and the files.
	reqs := child.Requests()
	require.Len(t, reqs, 3)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, state.HumanMessage("summarize X"), reqs[0].Messages[0])
	assert.Equal(t, "You are a researcher.", reqs[0].SystemInstruction)
	assert.Contains(t, reqs[1].Messages[2].Content, "final")

	// The task tool is not offered to a sub-agent that does not list it.
	for _, def := range reqs[0].Tools {
		assert.NotEqual(t, agenttool.Name, def.Name)
	}

	// The parent snapshot was not touched.
	assert.Len(t, parent.Messages, 2)
	assert.Len(t, parent.Todos, 1)
	assert.NotContains(t, parent.Files, "summary.md")
}

func TestTask_AllowedToolsEnforced(t *testing.T) {
	child := testutils.NewScriptedModel(
		testutils.CallTools(testutils.Call("w1", "write_file", map[string]any{"file_path": "notes.md", "content": "hacked"})),
		testutils.Reply("could not write"),
	)
	task := newTask(t, child, 0, agenttool.SubAgent{Name: "reader", Tools: []string{"read_file"}})

	ctx := testutils.ToolContext(testutils.StateWithFiles(map[string]string{"notes.md": "final"}))
	result, err := task.Call(ctx, map[string]any{
		"description":   "summarize X",
		"subagent_type": "reader",
		"files":         []any{"notes.md"},
	})
	require.NoError(t, err)
	assert.Equal(t, "could not write", tool.ResultText(result))
	assert.True(t, ctx.Actions().Update.IsEmpty())

	reqs := child.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "read_file", reqs[0].Tools[0].Name)

	rejected := reqs[1].Messages[2]
	assert.True(t, rejected.IsError)
	assert.Contains(t, rejected.Content, "tool 'write_file' is not permitted; allowed tools: read_file")
}

func TestTask_FileSubset(t *testing.T) {
	t.Run("only listed files are visible", func(t *testing.T) {
		child := testutils.NewScriptedModel(
			testutils.CallTools(testutils.Call("l1", "ls", nil)),
			testutils.Reply("done"),
		)
		task := newTask(t, child, 0)

		ctx := testutils.ToolContext(parentState())
		_, err := task.Call(ctx, map[string]any{
			"description":   "look",
			"subagent_type": "research-agent",
			"files":         []any{"notes.md"},
		})
		require.NoError(t, err)

		reqs := child.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "['notes.md']", reqs[1].Messages[2].Content)
	})

	t.Run("missing listed file", func(t *testing.T) {
		child := testutils.NewScriptedModel()
		task := newTask(t, child, 0)

		ctx := testutils.ToolContext(parentState())
		_, err := task.Call(ctx, map[string]any{
			"description":   "look",
			"subagent_type": "research-agent",
			"files":         []any{"ghost.md"},
		})
		require.ErrorIs(t, err, state.ErrNotFound)
		assert.Equal(t, 0, child.Calls())
	})
}

func TestTask_BudgetExceeded(t *testing.T) {
	child := testutils.NewScriptedModel(
		testutils.CallTools(testutils.Call("w1", "write_file", map[string]any{"file_path": "draft.md", "content": "partial"})),
		testutils.Reply("never reached"),
	)
	task := newTask(t, child, 0, agenttool.SubAgent{
		Name:   "research-agent",
		Budget: runner.Budget{MaxSteps: 1},
	})

	ctx := testutils.ToolContext(parentState())
	_, err := task.Call(ctx, map[string]any{"description": "long task", "subagent_type": "research-agent"})
	require.ErrorIs(t, err, state.ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "research-agent")
	assert.True(t, ctx.Actions().Update.IsEmpty())
	assert.Equal(t, 1, child.Calls())
}

func TestTask_MaxDeltaFiles(t *testing.T) {
	child := testutils.NewScriptedModel(
		testutils.CallTools(
			testutils.Call("w1", "write_file", map[string]any{"file_path": "b.md", "content": "b"}),
			testutils.Call("w2", "write_file", map[string]any{"file_path": "a.md", "content": "a"}),
			testutils.Call("w3", "write_file", map[string]any{"file_path": "notes.md", "content": "final"}),
		),
		testutils.Reply("wrote two"),
	)
	task := newTask(t, child, 1)

	ctx := testutils.ToolContext(parentState())
	result, err := task.Call(ctx, map[string]any{"description": "write", "subagent_type": "research-agent"})
	require.NoError(t, err)

	// notes.md was rewritten with identical content, so it is not part of the delta.
	assert.Equal(t, map[string]string{"a.md": "a"}, ctx.Actions().Update.Files)
	assert.Equal(t, "wrote two\n\n(1 changed file(s) not returned: b.md)", tool.ResultText(result))
}

func TestDelegate(t *testing.T) {
	child := testutils.NewScriptedModel(
		testutils.CallTools(testutils.Call("r1", "read_file", map[string]any{"file_path": "notes.md"})),
		testutils.Reply("summary of X"),
	)

	res, err := agenttool.Delegate(testutils.TestContext(t), runner.Config{Model: child, Tools: fileTools(t)}, agenttool.Request{
		Agent:        "summarizer",
		Task:         "summarize X",
		AllowedTools: tool.StringPredicate([]string{"read_file"}),
		VisibleFiles: map[string]string{"notes.md": "final"},
	})
	require.NoError(t, err)

	assert.Equal(t, state.RoleAI, res.Summary.Role)
	assert.Equal(t, "summary of X", res.Summary.Content)
	assert.Empty(t, res.FileDelta)
	assert.Equal(t, 2, res.Steps)
	assert.NotEmpty(t, res.RunID)

	_, err = agenttool.Delegate(testutils.TestContext(t), runner.Config{Model: child}, agenttool.Request{Agent: "x", Task: "  "})
	assert.ErrorIs(t, err, state.ErrValidation)
}

// The parent runs two delegations of one turn in parallel; each child
// writes its own file and both deltas are merged in call order.
func TestTask_ParallelDelegationsThroughRunner(t *testing.T) {
	child := testutils.ModelFunc(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		topic := req.Messages[0].Content
		if len(req.Messages) == 1 {
			return &model.Response{Message: state.AIMessage("", testutils.Call("w-"+topic, "write_file", map[string]any{
				"file_path": topic + ".md",
				"content":   "findings on " + topic,
			}))}, nil
		}
		return &model.Response{Message: state.AIMessage("researched " + topic)}, nil
	})
	task := newTask(t, child, 0)

	parentLLM := testutils.NewScriptedModel(
		testutils.CallTools(
			testutils.Call("t1", agenttool.Name, map[string]any{"description": "go", "subagent_type": "research-agent"}),
			testutils.Call("t2", agenttool.Name, map[string]any{"description": "rust", "subagent_type": "research-agent"}),
		),
		testutils.Reply("compared"),
	)
	parent, err := runner.New(runner.Config{
		Name:  "orchestrator",
		Model: parentLLM,
		Tools: append(fileTools(t), task),
	})
	require.NoError(t, err)

	initial := parentState()
	res, err := parent.Invoke(testutils.TestContext(t), initial)
	require.NoError(t, err)

	assert.Equal(t, "findings on go", res.State.Files["go.md"])
	assert.Equal(t, "findings on rust", res.State.Files["rust.md"])
	assert.Equal(t, initial.Todos, res.State.Todos)

	var results []string
	for _, m := range res.State.Messages {
		if m.Role == state.RoleTool {
			results = append(results, fmt.Sprintf("%s=%s", m.ToolCallID, m.Content))
		}
	}
	assert.Equal(t, []string{"t1=researched go", "t2=researched rust"}, results)
	assert.False(t, strings.Contains(res.FinalMessage(), "Error"))
}
