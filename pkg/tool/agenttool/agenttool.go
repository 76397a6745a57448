// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agenttool provides the task tool, which delegates work to a
// registered sub-agent running in an isolated context.
//
// The child starts with a single human message holding the task, an empty
// todo ledger and a private copy of the visible files. It never sees the
// parent's messages or todos. When it finishes, only its final answer and
// the files it created or changed flow back to the parent:
//
//	task, err := agenttool.New(agenttool.Config{
//	    SubAgents: []agenttool.SubAgent{{
//	        Name:        "research-agent",
//	        Description: "Delegate research to the sub-agent researcher.",
//	        Prompt:      researcherInstructions,
//	        Tools:       []string{"tavily_search", "think_tool"},
//	    }},
//	    Runtime: runner.Config{Model: llm, Tools: parentTools},
//	})
package agenttool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/observability"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

// Name is the model-facing name of the delegation tool.
const Name = "task"

const descriptionPrefix = `Delegate a task to a specialized sub-agent with isolated context. Available agents for delegation are:
%s

Each sub-agent starts fresh: it only sees the description you give it and the files you share.
Write a detailed, self-contained description of what it should do and what it should return.
Launch several agents in one message to work on independent tasks in parallel.`

// SubAgent describes a specialised agent the task tool can delegate to.
type SubAgent struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Prompt      string        `yaml:"prompt" json:"prompt"`
	Tools       []string      `yaml:"tools,omitempty" json:"tools,omitempty"`
	Budget      runner.Budget `yaml:"budget,omitempty" json:"budget,omitempty"`
}

// Config holds the configuration for the task tool.
type Config struct {
	// SubAgents are the delegation targets, in description order.
	SubAgents []SubAgent

	// Runtime is the template every child runner is built from. Its Tools
	// are the parent's tools (without the task tool itself). Name,
	// Instruction, AllowedTools and Budget are set per sub-agent; Budget
	// is used when the sub-agent defines none.
	Runtime runner.Config

	// MaxDeltaFiles caps the number of files flowing back from one
	// delegation. 0 means unlimited.
	MaxDeltaFiles int
}

// TaskArgs are the arguments of the task tool.
type TaskArgs struct {
	Description  string   `json:"description" jsonschema:"required,description=Detailed description of the task for the sub-agent"`
	SubagentType string   `json:"subagent_type" jsonschema:"required,description=Name of the sub-agent to delegate to"`
	Files        []string `json:"files,omitempty" jsonschema:"description=Paths of the files the sub-agent may see. All files when omitted"`
}

// Request describes a single delegation.
type Request struct {
	// Agent names the child in events, errors and telemetry.
	Agent string

	// Instruction is the child's system prompt.
	Instruction string

	// Task becomes the child's only human message.
	Task string

	// AllowedTools restricts the child. Nil allows every runtime tool.
	AllowedTools tool.Predicate

	// VisibleFiles is copied into the child's private file map.
	VisibleFiles map[string]string

	// Budget limits the child run.
	Budget runner.Budget

	// MaxDeltaFiles caps the returned delta. 0 means unlimited.
	MaxDeltaFiles int
}

// Result is what a delegation hands back to the parent.
type Result struct {
	RunID string

	// Summary is the child's final AI message.
	Summary state.Message

	// FileDelta holds exactly the paths the child created or changed
	// relative to the visible files.
	FileDelta map[string]string

	// Omitted lists changed paths dropped by MaxDeltaFiles, sorted.
	Omitted []string

	Steps  int
	Tokens int
}

// Delegate runs req in an isolated child built from runtime. A budget
// overrun fails the whole delegation; the partial child state is discarded.
func Delegate(ctx context.Context, runtime runner.Config, req Request) (*Result, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, &state.ValidationError{Field: "description", Reason: "must not be empty"}
	}

	child := runtime
	child.Name = req.Agent
	child.Instruction = req.Instruction
	child.AllowedTools = req.AllowedTools
	if !req.Budget.IsZero() {
		child.Budget = req.Budget
	}

	r, err := runner.New(child)
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-agent %s: %w", req.Agent, err)
	}

	initial := state.New(state.HumanMessage(req.Task))
	maps.Copy(initial.Files, req.VisibleFiles)

	res, err := r.Invoke(ctx, initial)
	if err != nil {
		return nil, fmt.Errorf("sub-agent %s failed: %w", req.Agent, err)
	}

	summary, ok := res.State.LastAIMessage()
	if !ok || strings.TrimSpace(summary.Content) == "" {
		summary = state.AIMessage(fmt.Sprintf("Task completed by %s agent", req.Agent))
	}

	delta, omitted := capDelta(state.Diff(req.VisibleFiles, res.State.Files), req.MaxDeltaFiles)
	return &Result{
		RunID:     res.RunID,
		Summary:   summary,
		FileDelta: delta,
		Omitted:   omitted,
		Steps:     res.Steps,
		Tokens:    res.Tokens,
	}, nil
}

// capDelta keeps the first limit paths in sorted order.
func capDelta(delta map[string]string, limit int) (map[string]string, []string) {
	if limit <= 0 || len(delta) <= limit {
		return delta, nil
	}
	paths := slices.Sorted(maps.Keys(delta))
	kept := make(map[string]string, limit)
	for _, p := range paths[:limit] {
		kept[p] = delta[p]
	}
	return kept, paths[limit:]
}

type taskTool struct {
	tool.CallableTool
	cfg    Config
	agents map[string]SubAgent
	names  []string
}

// New creates the task tool.
func New(cfg Config) (tool.CallableTool, error) {
	if len(cfg.SubAgents) == 0 {
		return nil, fmt.Errorf("at least one sub-agent is required")
	}
	if cfg.Runtime.Model == nil {
		return nil, fmt.Errorf("runtime model is required")
	}
	if cfg.MaxDeltaFiles < 0 {
		return nil, &state.ValidationError{Field: "max_delta_files", Reason: "must not be negative"}
	}

	available := make(map[string]bool, len(cfg.Runtime.Tools)+1)
	for _, t := range cfg.Runtime.Tools {
		if t.Name() == Name {
			return nil, fmt.Errorf("runtime tools must not contain %s", Name)
		}
		available[t.Name()] = true
	}
	available[Name] = true

	t := &taskTool{cfg: cfg, agents: make(map[string]SubAgent, len(cfg.SubAgents))}
	lines := make([]string, 0, len(cfg.SubAgents))
	for _, sa := range cfg.SubAgents {
		if sa.Name == "" {
			return nil, fmt.Errorf("sub-agent name is required")
		}
		if _, dup := t.agents[sa.Name]; dup {
			return nil, fmt.Errorf("duplicate sub-agent %q", sa.Name)
		}
		for _, name := range sa.Tools {
			if !available[name] {
				return nil, fmt.Errorf("sub-agent %s references unknown tool %q", sa.Name, name)
			}
		}
		t.agents[sa.Name] = sa
		t.names = append(t.names, sa.Name)
		lines = append(lines, fmt.Sprintf("- %s: %s", sa.Name, sa.Description))
	}

	ct, err := functiontool.New(functiontool.Config{
		Name:        Name,
		Description: fmt.Sprintf(descriptionPrefix, strings.Join(lines, "\n")),
		Concurrent:  true,
	}, t.call)
	if err != nil {
		return nil, err
	}
	t.CallableTool = ct

	// The child toolset includes the task tool so sub-agents that list it
	// can delegate further.
	t.cfg.Runtime.Tools = append(slices.Clone(cfg.Runtime.Tools), tool.Tool(t))
	return t, nil
}

// ConcurrencySafe reports that several delegations of one turn may run in
// parallel. Each child works on its own copy of the files.
func (t *taskTool) ConcurrencySafe() bool { return true }

// SubAgents returns the registered sub-agent names in order.
func (t *taskTool) SubAgents() []string { return slices.Clone(t.names) }

func (t *taskTool) call(ctx tool.Context, args TaskArgs) (map[string]any, error) {
	sa, ok := t.agents[args.SubagentType]
	if !ok {
		quoted := make([]string, len(t.names))
		for i, n := range t.names {
			quoted[i] = "`" + n + "`"
		}
		return nil, &state.ValidationError{
			Field: "subagent_type",
			Reason: fmt.Sprintf("invoked agent of type %s, the only allowed types are [%s]",
				args.SubagentType, strings.Join(quoted, ", ")),
		}
	}

	visible, err := visibleFiles(ctx.State().Files, args.Files)
	if err != nil {
		return nil, err
	}

	req := Request{
		Agent:         sa.Name,
		Instruction:   sa.Prompt,
		Task:          args.Description,
		AllowedTools:  allowedFor(sa),
		VisibleFiles:  visible,
		Budget:        sa.Budget,
		MaxDeltaFiles: t.cfg.MaxDeltaFiles,
	}

	spanCtx, span := t.cfg.Runtime.Tracer.StartDelegation(ctx, sa.Name)
	defer span.End()

	res, err := Delegate(spanCtx, t.cfg.Runtime, req)
	observability.RecordError(span, err)
	metrics := t.cfg.Runtime.Metrics
	if metrics == nil {
		metrics = observability.GetGlobalMetrics()
	}
	if err != nil {
		metrics.RecordDelegation(spanCtx, sa.Name, 0, err)
		return nil, err
	}
	metrics.RecordDelegation(spanCtx, sa.Name, len(res.FileDelta), nil)

	if len(res.FileDelta) > 0 {
		tool.AddUpdate(ctx, state.Update{Files: res.FileDelta})
	}

	text := res.Summary.Content
	if len(res.Omitted) > 0 {
		text += fmt.Sprintf("\n\n(%d changed file(s) not returned: %s)", len(res.Omitted), strings.Join(res.Omitted, ", "))
	}

	return map[string]any{
		tool.ResultKey: text,
		"subagent":     sa.Name,
		"run_id":       res.RunID,
		"files":        slices.Sorted(maps.Keys(res.FileDelta)),
	}, nil
}

// allowedFor returns the permission predicate of a sub-agent: its listed
// tools, or every tool except task when none are listed.
func allowedFor(sa SubAgent) tool.Predicate {
	if len(sa.Tools) > 0 {
		return tool.StringPredicate(sa.Tools)
	}
	return tool.Not(tool.StringPredicate([]string{Name}))
}

// visibleFiles selects the files a child may see. Every listed path must
// exist in the parent.
func visibleFiles(files map[string]string, paths []string) (map[string]string, error) {
	if paths == nil {
		return maps.Clone(files), nil
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		content, ok := files[p]
		if !ok {
			return nil, &state.NotFoundError{Path: p}
		}
		out[p] = content
	}
	return out, nil
}

var _ tool.ConcurrentTool = (*taskTool)(nil)
