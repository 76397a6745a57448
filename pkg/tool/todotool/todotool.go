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

// Package todotool exposes the planning ledger to the model.
//
// write_todos replaces the whole ledger on every call. The model is expected
// to resend the full list, updating statuses as work progresses.
package todotool

import (
	"encoding/json"
	"fmt"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const (
	WriteTodosName = "write_todos"
	ReadTodosName  = "read_todos"
)

const writeTodosDescription = `Create and manage a structured task list for tracking progress through complex workflows.

## When to Use
- Multi-step or non-trivial tasks requiring coordination
- When the user provides multiple tasks or explicitly requests a todo list
- Avoid for single, trivial actions unless directed otherwise

## Structure
- Maintain one list containing multiple todo objects (content, status)
- Status must be: pending, in_progress, or completed
- Every call replaces the entire list, so always send the full list

## Best Practices
- Only one in_progress task at a time
- Mark completed immediately when a task is fully done
- Revise the list as new information appears`

const readTodosDescription = `Read the current TODO list from the agent state.

Use this to check progress, see which tasks remain, and decide what to work on next.`

// WriteTodosArgs are the arguments of write_todos.
type WriteTodosArgs struct {
	Todos []state.Todo `json:"todos" jsonschema:"required,description=The complete updated todo list"`
}

// Config configures the ledger tools.
type Config struct {
	Policy state.LedgerPolicy
}

// DefaultConfig enforces a single in_progress entry.
func DefaultConfig() Config {
	return Config{Policy: state.DefaultLedgerPolicy}
}

// NewWriteTodos creates the write_todos tool.
func NewWriteTodos(cfg Config) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        WriteTodosName,
			Description: writeTodosDescription,
		},
		func(ctx tool.Context, args WriteTodosArgs) (map[string]any, error) {
			todos := args.Todos
			if todos == nil {
				todos = []state.Todo{}
			}
			update, err := state.WriteTodos(todos, cfg.Policy)
			if err != nil {
				return nil, err
			}
			tool.AddUpdate(ctx, update)
			return tool.Result(fmt.Sprintf("Updated todo list to %s", renderTodos(todos))), nil
		},
	)
}

// ReadTodosArgs takes no fields.
type ReadTodosArgs struct{}

// NewReadTodos creates the read_todos tool. It reads the ledger only.
func NewReadTodos() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        ReadTodosName,
			Description: readTodosDescription,
			Concurrent:  true,
		},
		func(ctx tool.Context, _ ReadTodosArgs) (map[string]any, error) {
			return tool.Result(state.FormatTodos(state.ReadTodos(ctx.State()))), nil
		},
	)
}

// Tools returns write_todos and read_todos.
func Tools(cfg Config) ([]tool.Tool, error) {
	write, err := NewWriteTodos(cfg)
	if err != nil {
		return nil, err
	}
	read, err := NewReadTodos()
	if err != nil {
		return nil, err
	}
	return []tool.Tool{write, read}, nil
}

func renderTodos(todos []state.Todo) string {
	data, err := json.Marshal(todos)
	if err != nil {
		return fmt.Sprintf("%v", todos)
	}
	return string(data)
}
