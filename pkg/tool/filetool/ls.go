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

// Package filetool exposes the virtual file store to the model.
//
// Files live only in the agent state. The tools read the snapshot from the
// tool context and request writes through its actions; nothing touches the
// host filesystem.
package filetool

import (
	"strings"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const (
	LsName        = "ls"
	ReadFileName  = "read_file"
	WriteFileName = "write_file"
	EditFileName  = "edit_file"
	GrepName      = "grep"
)

const lsDescription = `List all files in the virtual filesystem.

Use this to orient yourself before reading or editing files. Paths are returned sorted.`

// LsArgs takes no fields; ls always lists every path.
type LsArgs struct{}

// NewLs creates the ls tool.
func NewLs() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        LsName,
			Description: lsDescription,
			Concurrent:  true,
		},
		func(ctx tool.Context, _ LsArgs) (map[string]any, error) {
			paths := state.Ls(ctx.State())
			return map[string]any{
				tool.ResultKey: formatPaths(paths),
				"files":        paths,
			}, nil
		},
	)
}

func formatPaths(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + p + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Config configures the file tool set.
type Config struct {
	ReadFile  *ReadFileConfig
	WriteFile *WriteFileConfig
	EditFile  *EditFileConfig
	Grep      *GrepConfig

	// IncludeGrep adds the grep tool to the set.
	IncludeGrep bool
}

// Tools returns ls, read_file, write_file and edit_file, plus grep when
// enabled.
func Tools(cfg Config) ([]tool.Tool, error) {
	ls, err := NewLs()
	if err != nil {
		return nil, err
	}
	read, err := NewReadFile(cfg.ReadFile)
	if err != nil {
		return nil, err
	}
	write, err := NewWriteFile(cfg.WriteFile)
	if err != nil {
		return nil, err
	}
	edit, err := NewEditFile(cfg.EditFile)
	if err != nil {
		return nil, err
	}

	tools := []tool.Tool{ls, read, write, edit}
	if cfg.IncludeGrep {
		grep, err := NewGrep(cfg.Grep)
		if err != nil {
			return nil, err
		}
		tools = append(tools, grep)
	}
	return tools, nil
}
