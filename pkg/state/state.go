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

// Package state defines the agent working state: the message log, the
// planning ledger (todos) and the virtual file store.
//
// The state is never mutated in place by tools. A tool computes an Update
// describing its intended change and the step driver folds it into the
// current state with Merge:
//
//	next := state.Merge(current, update)
//
// Merge rules per field:
//
//	messages  append, order preserved
//	todos     last write wins, full replacement
//	files     last write wins per path, other paths untouched
package state

import (
	"maps"
	"slices"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id" yaml:"id"`
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Message is one entry of the conversation log.
//
// The state container treats messages as opaque; the fields exist so the
// step driver and model adapters can build requests from the log.
type Message struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty"`
	Role       Role       `json:"role" yaml:"role"`
	Content    string     `json:"content" yaml:"content"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	IsError    bool       `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// HumanMessage creates a message authored by the user.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// SystemMessage creates a system instruction message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AIMessage creates a model message, optionally carrying tool calls.
func AIMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAI, Content: content, ToolCalls: calls}
}

// ToolMessage creates the observation for a tool call.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// ToolErrorMessage creates an error observation for a tool call.
func ToolErrorMessage(callID, name string, err error) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: callID,
		Name:       name,
		Content:    "Error: " + err.Error(),
		IsError:    true,
	}
}

// AgentState is the working state of one run.
type AgentState struct {
	Messages []Message         `json:"messages" yaml:"messages"`
	Todos    []Todo            `json:"todos" yaml:"todos"`
	Files    map[string]string `json:"files" yaml:"files"`
}

// New returns an empty state seeded with the given messages.
func New(messages ...Message) AgentState {
	return AgentState{
		Messages: slices.Clone(messages),
		Todos:    []Todo{},
		Files:    map[string]string{},
	}
}

// Clone returns a deep copy of the state.
func (s AgentState) Clone() AgentState {
	out := AgentState{
		Messages: make([]Message, len(s.Messages)),
		Todos:    slices.Clone(s.Todos),
		Files:    maps.Clone(s.Files),
	}
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	if out.Todos == nil {
		out.Todos = []Todo{}
	}
	if out.Files == nil {
		out.Files = map[string]string{}
	}
	return out
}

// LastMessage returns the most recent message and whether one exists.
func (s AgentState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAIMessage returns the most recent model message.
func (s AgentState) LastAIMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAI {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

func (m Message) clone() Message {
	if len(m.ToolCalls) == 0 {
		return m
	}
	calls := make([]ToolCall, len(m.ToolCalls))
	for i, c := range m.ToolCalls {
		calls[i] = ToolCall{ID: c.ID, Name: c.Name, Args: maps.Clone(c.Args)}
	}
	m.ToolCalls = calls
	return m
}
