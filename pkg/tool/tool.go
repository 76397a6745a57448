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

// Package tool defines interfaces for tools that agents can invoke.
//
// Tools never mutate the agent state. A tool reads the snapshot exposed by
// its Context and records the change it wants through Context.Actions(). The
// step driver merges the collected update once the call returns.
//
// # Creating Tools
//
//	// Typed function tool
//	t, err := functiontool.New(functiontool.Config{...}, fn)
//
//	// Delegation tool
//	task, err := agenttool.New(agenttool.Config{...})
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// Tool defines the base interface for a callable tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// Used by LLMs to decide when to use this tool.
	Description() string

	// IsLongRunning indicates whether this tool is a long-running async operation.
	IsLongRunning() bool

	// RequiresApproval indicates whether this tool needs human approval before execution.
	RequiresApproval() bool
}

// CallableTool extends Tool with synchronous execution capability.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments.
	// Returns the result as a map and any error that occurred.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters.
	// Returns nil if the tool takes no parameters.
	Schema() map[string]any
}

// ConcurrentTool is implemented by tools whose calls may run in parallel
// with other calls of the same model turn. Such tools must not depend on
// updates produced by sibling calls.
type ConcurrentTool interface {
	CallableTool
	ConcurrencySafe() bool
}

// Actions collects the state change requested by a tool call.
type Actions struct {
	Update state.Update
}

// Context provides the execution context for a tool.
type Context interface {
	context.Context

	// FunctionCallID returns the unique ID of this tool invocation.
	FunctionCallID() string

	// AgentName returns the name of the agent running the tool.
	AgentName() string

	// State returns a snapshot of the agent state taken before the call.
	// Each call gets its own copy. Changes to it are not persisted; use
	// Actions instead.
	State() state.AgentState

	// Actions returns the actions used to request state changes.
	Actions() *Actions
}

// NewContext creates a Context for one tool call.
func NewContext(ctx context.Context, callID, agentName string, snapshot state.AgentState) Context {
	return &callContext{
		Context:   ctx,
		callID:    callID,
		agentName: agentName,
		snapshot:  snapshot,
		actions:   &Actions{},
	}
}

type callContext struct {
	context.Context
	callID    string
	agentName string
	snapshot  state.AgentState
	actions   *Actions
}

func (c *callContext) FunctionCallID() string  { return c.callID }
func (c *callContext) AgentName() string       { return c.agentName }
func (c *callContext) State() state.AgentState { return c.snapshot }
func (c *callContext) Actions() *Actions       { return c.actions }

// Predicate determines whether a tool should be available to the LLM.
type Predicate func(tool Tool) bool

// StringPredicate creates a Predicate that allows only named tools.
func StringPredicate(allowedTools []string) Predicate {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	return func(tool Tool) bool {
		return allowed[tool.Name()]
	}
}

// AllowAll returns a Predicate that allows all tools.
func AllowAll() Predicate {
	return func(tool Tool) bool {
		return true
	}
}

// DenyAll returns a Predicate that denies all tools.
func DenyAll() Predicate {
	return func(tool Tool) bool {
		return false
	}
}

// Combine combines multiple predicates with AND logic.
func Combine(predicates ...Predicate) Predicate {
	return func(tool Tool) bool {
		for _, p := range predicates {
			if !p(tool) {
				return false
			}
		}
		return true
	}
}

// Or combines multiple predicates with OR logic.
func Or(predicates ...Predicate) Predicate {
	return func(tool Tool) bool {
		for _, p := range predicates {
			if p(tool) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(tool Tool) bool {
		return !p(tool)
	}
}

// Filter returns the tools accepted by p, preserving order.
func Filter(tools []Tool, p Predicate) []Tool {
	if p == nil {
		return slices.Clone(tools)
	}
	var out []Tool
	for _, t := range tools {
		if p(t) {
			out = append(out, t)
		}
	}
	return out
}

// Names returns the names of tools in order.
func Names(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// Definition represents a tool definition for LLM function calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}
	if ct, ok := t.(CallableTool); ok {
		def.Parameters = ct.Schema()
	}
	return def
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall = state.ToolCall

// ResultKey holds the model-facing text in a tool result map.
const ResultKey = "result"

// Result wraps text into a tool result map.
func Result(text string) map[string]any {
	return map[string]any{ResultKey: text}
}

// ResultText renders a tool result as the content of a tool message.
// A string under ResultKey is used verbatim; anything else is JSON encoded.
func ResultText(result map[string]any) string {
	if result == nil {
		return ""
	}
	if text, ok := result[ResultKey].(string); ok {
		return text
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// AddUpdate appends u to the update requested by the current call.
func AddUpdate(ctx Context, u state.Update) {
	actions := ctx.Actions()
	actions.Update = state.Combine(actions.Update, u)
}
