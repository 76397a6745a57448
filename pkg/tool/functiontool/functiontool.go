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

// Package functiontool creates tools from typed Go functions.
//
// The argument struct drives both the JSON schema shown to the model and
// the decoding of the arguments the model sends back:
//
//	type ReadArgs struct {
//	    Path   string `json:"file_path" jsonschema:"required,description=Path to read"`
//	    Offset int    `json:"offset,omitempty" jsonschema:"description=First line,default=0"`
//	}
//
//	readTool, err := functiontool.New(
//	    functiontool.Config{Name: "read_file", Description: "Read a file"},
//	    func(ctx tool.Context, args ReadArgs) (map[string]any, error) {
//	        ...
//	    },
//	)
//
// Decoding is weakly typed, so a model sending "10" for an integer field
// still works. Arguments that cannot be decoded yield a state.ValidationError.
package functiontool

import (
	"fmt"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string

	// Concurrent marks the tool safe to run in parallel with sibling calls.
	Concurrent bool
}

// New creates a CallableTool from a typed function.
func New[Args any](cfg Config, fn func(tool.Context, Args) (map[string]any, error)) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("function is required for %s", cfg.Name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// NewWithValidation creates a CallableTool with custom argument validation.
// The validation function runs after decoding and before fn.
func NewWithValidation[Args any](
	cfg Config,
	fn func(tool.Context, Args) (map[string]any, error),
	validate func(Args) error,
) (tool.CallableTool, error) {
	baseTool, err := New(cfg, fn)
	if err != nil {
		return nil, err
	}

	return &functionToolWithValidation[Args]{
		functionTool: baseTool.(*functionTool[Args]),
		validate:     validate,
	}, nil
}

// MustNew is like New but panics on error. Intended for package-level
// tool definitions whose configuration is static.
func MustNew[Args any](cfg Config, fn func(tool.Context, Args) (map[string]any, error)) tool.CallableTool {
	t, err := New(cfg, fn)
	if err != nil {
		panic(err)
	}
	return t
}

type functionTool[Args any] struct {
	config Config
	fn     func(tool.Context, Args) (map[string]any, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string {
	return t.config.Name
}

func (t *functionTool[Args]) Description() string {
	return t.config.Description
}

func (t *functionTool[Args]) IsLongRunning() bool {
	return false
}

func (t *functionTool[Args]) RequiresApproval() bool {
	return false
}

func (t *functionTool[Args]) ConcurrencySafe() bool {
	return t.config.Concurrent
}

func (t *functionTool[Args]) Schema() map[string]any {
	return t.schema
}

// Call decodes args and invokes the function.
func (t *functionTool[Args]) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var typedArgs Args
	if err := decodeArgs(args, &typedArgs); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	return t.fn(ctx, typedArgs)
}

type functionToolWithValidation[Args any] struct {
	*functionTool[Args]
	validate func(Args) error
}

// Call executes validation before calling the function.
func (t *functionToolWithValidation[Args]) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var typedArgs Args
	if err := decodeArgs(args, &typedArgs); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}

	if t.validate != nil {
		if err := t.validate(typedArgs); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", t.config.Name, err)
		}
	}

	return t.fn(ctx, typedArgs)
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var (
	_ tool.ConcurrentTool = (*functionTool[struct{}])(nil)
	_ tool.ConcurrentTool = (*functionToolWithValidation[struct{}])(nil)
)
