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

package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/instruction"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/observability"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
)

// run holds the mutable state of one Run invocation.
type run struct {
	*Runner
	id      string
	state   state.AgentState
	step    int
	tokens  int
	yield   func(*Event, error) bool
	stopped bool
}

// emit yields an event and records whether the consumer stopped iterating.
func (r *run) emit(ev *Event) bool {
	if r.stopped {
		return false
	}
	if !r.yield(ev, nil) {
		r.stopped = true
		return false
	}
	return true
}

func (r *run) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.checkBudget(); err != nil {
			return err
		}
		r.step++

		msg, err := r.callModel(ctx)
		if err != nil {
			return err
		}
		r.state = state.Merge(r.state, state.Update{Messages: []state.Message{msg}})

		// A reply that overspends ends the run before its tool calls execute.
		if err := r.checkTokens(); err != nil {
			return err
		}

		if len(msg.ToolCalls) == 0 {
			r.emit(r.event(EventFinal, msg, state.Update{}))
			return nil
		}
		if !r.emit(r.event(EventModelResponse, msg, state.Update{})) {
			return nil
		}

		if err := r.executeCalls(ctx, msg.ToolCalls); err != nil {
			return err
		}
		if r.stopped {
			return nil
		}
	}
}

// checkBudget runs before every model call. The step about to start and the
// tokens already spent are compared with the limits.
func (r *run) checkBudget() error {
	b := r.cfg.Budget
	if b.MaxSteps > 0 && r.step >= b.MaxSteps {
		return &state.BudgetExceededError{Agent: r.cfg.Name, Kind: state.BudgetSteps, Limit: b.MaxSteps, Used: r.step}
	}
	return r.checkTokens()
}

// checkTokens fails once spending goes past MaxTokens. Using exactly the
// limit is allowed.
func (r *run) checkTokens() error {
	b := r.cfg.Budget
	if b.MaxTokens > 0 && r.tokens > b.MaxTokens {
		return &state.BudgetExceededError{Agent: r.cfg.Name, Kind: state.BudgetTokens, Limit: b.MaxTokens, Used: r.tokens}
	}
	return nil
}

func (r *run) callModel(ctx context.Context) (state.Message, error) {
	system, err := r.instruction.Render(instruction.Context{Agent: r.cfg.Name, State: r.state})
	if err != nil {
		return state.Message{}, fmt.Errorf("instruction: %w", err)
	}
	req := &model.Request{
		SystemInstruction: system,
		Messages:          r.state.Messages,
		Tools:             r.defs,
	}
	if r.cfg.GenerateConfig != nil {
		req.Config = r.cfg.GenerateConfig.Clone()
	}

	ctx, span := r.cfg.Tracer.StartLLMCall(ctx, r.cfg.Model.Name(), r.step)
	defer span.End()

	start := time.Now()
	resp, err := r.cfg.Model.GenerateContent(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("model %s returned no response", r.cfg.Model.Name())
	}
	if err != nil {
		observability.RecordError(span, err)
		r.metrics.RecordLLMCall(ctx, r.cfg.Model.Name(), time.Since(start), 0, 0, err)
		return state.Message{}, fmt.Errorf("step %d: %w", r.step, err)
	}

	input, output := r.usage(req, resp)
	r.tokens += input + output
	observability.AddLLMUsage(span, input, output)
	r.metrics.RecordLLMCall(ctx, r.cfg.Model.Name(), time.Since(start), input, output, nil)

	msg := resp.Message
	msg.Role = state.RoleAI
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}

	r.logger.Debug("Model responded",
		"run_id", r.id,
		"step", r.step,
		"tool_calls", len(msg.ToolCalls),
		"tokens", r.tokens)
	return msg, nil
}

// usage returns the input and output tokens of one call, counting locally
// when the provider reports nothing.
func (r *run) usage(req *model.Request, resp *model.Response) (int, int) {
	if u := resp.Usage; u != nil && (u.TotalTokens > 0 || u.PromptTokens > 0 || u.CompletionTokens > 0) {
		if u.PromptTokens+u.CompletionTokens == 0 {
			return u.TotalTokens, 0
		}
		return u.PromptTokens, u.CompletionTokens
	}
	input := r.cfg.TokenCounter.Count(req.SystemInstruction) + r.cfg.TokenCounter.CountMessages(req.Messages)
	output := r.cfg.TokenCounter.CountMessage(resp.Message)
	return input, output
}

// callResult is the outcome of one tool call before it is merged.
type callResult struct {
	message state.Message
	update  state.Update
}

// executeCalls runs the calls of one AI message. Consecutive calls to
// concurrency-safe tools form a batch that runs in parallel on the same
// snapshot; every other call runs alone and sees all earlier merges.
func (r *run) executeCalls(ctx context.Context, calls []state.ToolCall) error {
	for i := 0; i < len(calls); {
		j := i + 1
		if r.concurrent(calls[i]) {
			for j < len(calls) && r.concurrent(calls[j]) {
				j++
			}
		}

		results, err := r.executeBatch(ctx, calls[i:j])
		if err != nil {
			return err
		}
		for _, res := range results {
			u := res.update.WithMessages(res.message)
			r.state = state.Merge(r.state, u)
			if !r.emit(r.event(EventToolResult, res.message, u)) {
				return nil
			}
		}
		i = j
	}
	return nil
}

func (r *run) executeBatch(ctx context.Context, calls []state.ToolCall) ([]callResult, error) {
	results := make([]callResult, len(calls))
	snapshot := r.state.Clone()

	if len(calls) == 1 {
		results[0] = r.executeCall(ctx, calls[0], snapshot)
		return results, ctx.Err()
	}

	// Each parallel call gets its own copy so siblings never share maps.
	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallelTools)
	for i, call := range calls {
		own := snapshot.Clone()
		g.Go(func() error {
			results[i] = r.executeCall(ctx, call, own)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, ctx.Err()
}

func (r *run) concurrent(call state.ToolCall) bool {
	t, ok := r.permitted(call.Name)
	if !ok {
		return true
	}
	ct, ok := t.(tool.ConcurrentTool)
	return ok && ct.ConcurrencySafe()
}

func (r *run) permitted(name string) (tool.CallableTool, bool) {
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	if r.cfg.AllowedTools != nil && !r.cfg.AllowedTools(t) {
		return nil, false
	}
	ct, ok := t.(tool.CallableTool)
	return ct, ok
}

// executeCall runs a single tool. Failures become error tool messages and
// never abort the run; the update of a failed call is discarded.
func (r *run) executeCall(ctx context.Context, call state.ToolCall, snapshot state.AgentState) (res callResult) {
	ctx, span := r.cfg.Tracer.StartToolExecution(ctx, call.Name, call.ID)
	defer span.End()

	start := time.Now()
	var err error
	defer func() {
		observability.RecordError(span, err)
		r.metrics.RecordToolExecution(ctx, call.Name, time.Since(start), err)
		if err != nil {
			r.logger.Debug("Tool failed", "run_id", r.id, "tool", call.Name, "call_id", call.ID, "error", err)
			res = callResult{message: state.ToolErrorMessage(call.ID, call.Name, err)}
		}
	}()

	t, ok := r.permitted(call.Name)
	if !ok {
		err = &state.ToolNotPermittedError{Tool: call.Name, Allowed: tool.Names(r.allowed)}
		return res
	}

	tctx := tool.NewContext(ctx, call.ID, r.cfg.Name, snapshot)
	result, err := safeCall(t, tctx, call.Args)
	if err != nil {
		return res
	}

	return callResult{
		message: state.ToolMessage(call.ID, call.Name, tool.ResultText(result)),
		update:  tctx.Actions().Update,
	}
}

func safeCall(t tool.CallableTool, ctx tool.Context, args map[string]any) (result map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", t.Name(), p)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return t.Call(ctx, args)
}
