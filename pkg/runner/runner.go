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

// Package runner drives an agent through its reason/act loop.
//
// Each step sends the conversation to the model, appends the AI message,
// executes the requested tool calls and folds their updates into the state
// with state.Merge. The loop ends when the model answers without tool calls
// or a budget is exhausted.
//
// Consecutive calls to concurrency-safe tools run in parallel against the
// same snapshot; their updates are merged in call order, so the result does
// not depend on completion order.
package runner

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/instruction"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/observability"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/utils"
)

const defaultMaxParallelTools = 4

// Budget limits a run. Zero values mean unlimited.
type Budget struct {
	// MaxSteps caps the number of model calls.
	MaxSteps int `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`

	// MaxTokens caps the tokens consumed across model calls. It is checked
	// before each model call.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// IsZero reports whether no limit is set.
func (b Budget) IsZero() bool {
	return b.MaxSteps <= 0 && b.MaxTokens <= 0
}

// Config contains the configuration for creating a Runner.
type Config struct {
	// Name identifies the agent in events, errors and telemetry.
	Name string

	// Model answers each step (required).
	Model model.LLM

	// Instruction is the system prompt.
	Instruction string

	// Tools the agent may be offered.
	Tools []tool.Tool

	// AllowedTools restricts Tools. Nil allows every tool.
	AllowedTools tool.Predicate

	// Budget limits the run.
	Budget Budget

	// GenerateConfig is passed to the model on every call.
	GenerateConfig *model.GenerateConfig

	// MaxParallelTools bounds concurrent tool calls within one step.
	// Default: 4
	MaxParallelTools int

	// TokenCounter counts tokens when the model reports no usage.
	TokenCounter *utils.TokenCounter

	// Tracer and Metrics record telemetry. Both are optional.
	Tracer  *observability.Tracer
	Metrics observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runner executes one agent.
type Runner struct {
	cfg         Config
	instruction *instruction.Template
	tools       map[string]tool.Tool
	allowed     []tool.Tool
	defs        []tool.Definition
	logger      *slog.Logger
	metrics     observability.Metrics
}

// New creates a new Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Name == "" {
		cfg.Name = "agent"
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = defaultMaxParallelTools
	}
	if cfg.TokenCounter == nil {
		cfg.TokenCounter = utils.NewEstimator(cfg.Model.Name())
	}
	if cfg.Budget.MaxSteps < 0 || cfg.Budget.MaxTokens < 0 {
		return nil, &state.ValidationError{Field: "budget", Reason: "limits must not be negative"}
	}
	if err := instruction.Validate(cfg.Instruction); err != nil {
		return nil, &state.ValidationError{Field: "instruction", Reason: err.Error()}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.GetGlobalMetrics()
	}

	tools := make(map[string]tool.Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if t == nil {
			return nil, fmt.Errorf("nil tool in agent %s", cfg.Name)
		}
		if _, dup := tools[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool %q in agent %s", t.Name(), cfg.Name)
		}
		tools[t.Name()] = t
	}

	allowed := tool.Filter(cfg.Tools, cfg.AllowedTools)
	defs := make([]tool.Definition, len(allowed))
	for i, t := range allowed {
		defs[i] = tool.ToDefinition(t)
	}

	return &Runner{
		cfg:         cfg,
		instruction: instruction.New(cfg.Instruction),
		tools:       tools,
		allowed:     allowed,
		defs:        defs,
		logger:      logger.With("agent", cfg.Name),
		metrics:     metrics,
	}, nil
}

// Name returns the agent name.
func (r *Runner) Name() string { return r.cfg.Name }

// Config returns a copy of the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// AllowedTools returns the tools offered to the model.
func (r *Runner) AllowedTools() []tool.Tool {
	return append([]tool.Tool(nil), r.allowed...)
}

// RunOption customises a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID string
}

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// Result is the outcome of Invoke.
type Result struct {
	RunID  string
	State  state.AgentState
	Steps  int
	Tokens int
}

// FinalMessage returns the last AI message of the run.
func (r *Result) FinalMessage() string {
	if r == nil {
		return ""
	}
	if msg, ok := r.State.LastAIMessage(); ok {
		return msg.Content
	}
	return ""
}

// Invoke runs the agent to completion. On a budget or model error the
// partial state reached so far is returned together with the error.
func (r *Runner) Invoke(ctx context.Context, initial state.AgentState, opts ...RunOption) (*Result, error) {
	result := &Result{State: initial.Clone()}
	for event, err := range r.Run(ctx, initial, opts...) {
		if event != nil {
			result.RunID = event.RunID
			result.State = event.State
			result.Steps = event.Step
			result.Tokens = event.Tokens
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// Run executes the agent, yielding one event per model response and per
// tool result, then a final event. A terminal error is yielded with the
// last event so callers keep the partial state.
func (r *Runner) Run(ctx context.Context, initial state.AgentState, opts ...RunOption) iter.Seq2[*Event, error] {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	return func(yield func(*Event, error) bool) {
		start := time.Now()
		ctx, span := r.cfg.Tracer.StartRun(ctx, r.cfg.Name, o.runID)
		defer span.End()

		rs := &run{
			Runner: r,
			id:     o.runID,
			state:  initial.Clone(),
			yield:  yield,
		}

		err := rs.loop(ctx)
		observability.RecordError(span, err)
		r.metrics.RecordRun(ctx, r.cfg.Name, time.Since(start), rs.step, rs.tokens, err)

		if err != nil {
			r.logger.Warn("Run stopped", "run_id", rs.id, "step", rs.step, "error", err)
			if !rs.stopped {
				yield(rs.event(EventError, state.Message{}, state.Update{}), err)
			}
			return
		}
		r.logger.Debug("Run completed", "run_id", rs.id, "steps", rs.step, "tokens", rs.tokens)
	}
}
