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

// Package testutils provides testing utilities: scripted models, tool
// contexts and state fixtures.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
)

// TestContext returns a context with a 5 second timeout that is cancelled
// when the test finishes.
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 5*time.Second)
}

// TestContextWithTimeout returns a context with custom timeout for testing.
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// ToolContext returns a tool context over snapshot.
func ToolContext(snapshot state.AgentState) tool.Context {
	return tool.NewContext(context.Background(), "test-call", "test-agent", snapshot)
}

// StateWithFiles returns a state holding files.
func StateWithFiles(files map[string]string) state.AgentState {
	s := state.New()
	for path, content := range files {
		s = state.Merge(s, state.PutFile(path, content))
	}
	return s
}

// Step produces one model response.
type Step func(req *model.Request) (*model.Response, error)

// Reply answers with plain text, ending the run.
func Reply(text string) Step {
	return func(*model.Request) (*model.Response, error) {
		return &model.Response{
			Message:      state.AIMessage(text),
			FinishReason: model.FinishReasonStop,
		}, nil
	}
}

// ReplyWithUsage answers with plain text and reports token usage.
func ReplyWithUsage(text string, total int) Step {
	return func(*model.Request) (*model.Response, error) {
		return &model.Response{
			Message:      state.AIMessage(text),
			Usage:        &model.Usage{TotalTokens: total},
			FinishReason: model.FinishReasonStop,
		}, nil
	}
}

// CallTools requests the given tool calls.
func CallTools(calls ...state.ToolCall) Step {
	return func(*model.Request) (*model.Response, error) {
		return &model.Response{
			Message:      state.AIMessage("", calls...),
			FinishReason: model.FinishReasonToolCalls,
		}, nil
	}
}

// Call builds a tool call.
func Call(id, name string, args map[string]any) state.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return state.ToolCall{ID: id, Name: name, Args: args}
}

// Fail returns err from the model.
func Fail(err error) Step {
	return func(*model.Request) (*model.Response, error) {
		return nil, err
	}
}

// ScriptedModel replays steps in order and records every request.
type ScriptedModel struct {
	name  string
	mu    sync.Mutex
	steps []Step
	next  int
	reqs  []*model.Request
}

// NewScriptedModel creates a model that answers with steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{name: "scripted", steps: steps}
}

func (m *ScriptedModel) Name() string             { return m.name }
func (m *ScriptedModel) Provider() model.Provider { return model.ProviderScript }
func (m *ScriptedModel) Close() error             { return nil }

// GenerateContent replays the next step.
func (m *ScriptedModel) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	if m.next >= len(m.steps) {
		m.mu.Unlock()
		return nil, fmt.Errorf("scripted model exhausted after %d steps", len(m.steps))
	}
	step := m.steps[m.next]
	m.next++
	m.mu.Unlock()

	return step(req)
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []*model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Request(nil), m.reqs...)
}

// Calls returns the number of requests received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

// ModelFunc adapts a function to model.LLM. It is safe for concurrent use
// when the function is.
type ModelFunc func(ctx context.Context, req *model.Request) (*model.Response, error)

func (f ModelFunc) Name() string             { return "func" }
func (f ModelFunc) Provider() model.Provider { return model.ProviderScript }
func (f ModelFunc) Close() error             { return nil }

func (f ModelFunc) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	return f(ctx, req)
}

var (
	_ model.LLM = (*ScriptedModel)(nil)
	_ model.LLM = ModelFunc(nil)
)
