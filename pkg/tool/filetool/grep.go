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
	"regexp"
	"strings"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const grepDescription = `Search the contents of the virtual filesystem with a regular expression.

Returns matching lines as "path:line: text". Use path_prefix to restrict the
search to files whose path starts with the prefix.`

// GrepArgs defines the parameters for grep.
type GrepArgs struct {
	Pattern         string `json:"pattern" jsonschema:"required,description=Regular expression to search for (Go regex syntax)"`
	PathPrefix      string `json:"path_prefix,omitempty" jsonschema:"description=Only search files whose path starts with this prefix"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" jsonschema:"description=Perform case-insensitive search,default=false"`
	MaxResults      int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of matches to return,default=100,minimum=1,maximum=1000"`
}

// GrepConfig defines configuration for the grep tool.
type GrepConfig struct {
	MaxResults int
}

// Match is one matching line.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// NewGrep creates the grep tool.
func NewGrep(cfg *GrepConfig) (tool.CallableTool, error) {
	if cfg == nil {
		cfg = &GrepConfig{}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 1000
	}

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        GrepName,
			Description: grepDescription,
			Concurrent:  true,
		},
		func(ctx tool.Context, args GrepArgs) (map[string]any, error) {
			return grepImpl(cfg, ctx.State(), args)
		},
		func(args GrepArgs) error {
			_, err := compilePattern(args)
			return err
		},
	)
}

func compilePattern(args GrepArgs) (*regexp.Regexp, error) {
	pattern := args.Pattern
	if args.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &state.ValidationError{Field: "pattern", Reason: err.Error()}
	}
	return re, nil
}

func grepImpl(cfg *GrepConfig, s state.AgentState, args GrepArgs) (map[string]any, error) {
	re, err := compilePattern(args)
	if err != nil {
		return nil, err
	}

	maxResults := 100
	if args.MaxResults > 0 {
		maxResults = args.MaxResults
	}
	maxResults = min(maxResults, cfg.MaxResults)

	matches := Grep(s, re, args.PathPrefix, maxResults+1)
	truncated := len(matches) > maxResults
	if truncated {
		matches = matches[:maxResults]
	}

	var output strings.Builder
	if len(matches) == 0 {
		output.WriteString(fmt.Sprintf("No matches found for pattern '%s'", args.Pattern))
	}
	for i, m := range matches {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "%s:%d: %s", m.Path, m.Line, m.Text)
	}
	if truncated {
		fmt.Fprintf(&output, "\n\nResults limited to %d matches", maxResults)
	}

	return map[string]any{
		tool.ResultKey: output.String(),
		"matches":      matches,
		"truncated":    truncated,
	}, nil
}

// Grep returns up to limit matching lines across files in path order.
// A limit <= 0 returns every match.
func Grep(s state.AgentState, re *regexp.Regexp, pathPrefix string, limit int) []Match {
	var matches []Match
	for _, path := range state.Ls(s) {
		if !strings.HasPrefix(path, pathPrefix) {
			continue
		}
		for i, line := range state.SplitLines(s.Files[path]) {
			line = state.TrimLineEnding(line)
			if !re.MatchString(line) {
				continue
			}
			matches = append(matches, Match{Path: path, Line: i + 1, Text: line})
			if limit > 0 && len(matches) >= limit {
				return matches
			}
		}
	}
	return matches
}
