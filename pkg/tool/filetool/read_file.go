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

package filetool

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const (
	defaultReadLimit     = 2000
	defaultMaxLineLength = 2000

	emptyFileReminder = "System reminder: File exists but has empty contents"
)

const readFileDescription = `Read a file from the virtual filesystem.

Usage:
- The file_path parameter must be a path previously written or listed with ls
- By default reads up to 2000 lines starting from the beginning of the file
- Use offset (0-based line) and limit to page through long files
- Lines longer than 2000 characters are truncated
- Results are returned with 1-based line numbers
- You should ALWAYS read a file before editing it`

// ReadFileArgs defines the parameters for reading a file.
type ReadFileArgs struct {
	Path   string `json:"file_path" jsonschema:"required,description=Path of the file to read"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Line number to start reading from (0-based),default=0,minimum=0"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read,default=2000,minimum=1"`
}

// ReadFileConfig defines configuration for the read_file tool.
type ReadFileConfig struct {
	DefaultLimit  int
	MaxLineLength int
}

// NewReadFile creates the read_file tool.
func NewReadFile(cfg *ReadFileConfig) (tool.CallableTool, error) {
	if cfg == nil {
		cfg = &ReadFileConfig{}
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultReadLimit
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = defaultMaxLineLength
	}

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        ReadFileName,
			Description: readFileDescription,
			Concurrent:  true,
		},
		func(ctx tool.Context, args ReadFileArgs) (map[string]any, error) {
			text, err := readFileImpl(cfg, ctx.State(), args)
			if err != nil {
				return nil, err
			}
			return tool.Result(text), nil
		},
		func(args ReadFileArgs) error {
			if args.Limit < 0 {
				return &state.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", args.Limit)}
			}
			return nil
		},
	)
}

func readFileImpl(cfg *ReadFileConfig, s state.AgentState, args ReadFileArgs) (string, error) {
	limit := args.Limit
	if limit == 0 {
		limit = cfg.DefaultLimit
	}

	content, err := state.ReadFile(s, args.Path, args.Offset, limit)
	if err != nil {
		return "", err
	}
	if s.Files[args.Path] == "" {
		return emptyFileReminder, nil
	}

	return FormatLines(content, args.Offset+1, cfg.MaxLineLength), nil
}

// FormatLines numbers each line of content starting at first, cutting lines
// longer than maxLen runes.
func FormatLines(content string, first, maxLen int) string {
	lines := state.SplitLines(content)
	out := make([]string, len(lines))
	for i, line := range lines {
		line = state.TrimLineEnding(line)
		if maxLen > 0 && utf8.RuneCountInString(line) > maxLen {
			line = string([]rune(line)[:maxLen])
		}
		out[i] = fmt.Sprintf("%6d\t%s", first+i, line)
	}
	return strings.Join(out, "\n")
}
