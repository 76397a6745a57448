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

package searchtool

import (
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const thinkDescription = `Tool for strategic reflection on research progress and decision-making.

Use this tool after each search to analyze results and plan next steps systematically.

When to use:
- After receiving search results: What key information did I find?
- Before deciding next steps: Do I have enough to answer comprehensively?
- When assessing research gaps: What specific information am I still missing?
- Before concluding research: Can I provide a complete answer now?

Reflection should address:
1. Analysis of current findings - What concrete information have I gathered?
2. Gap assessment - What crucial information is still missing?
3. Quality evaluation - Do I have sufficient evidence/examples for a good answer?
4. Strategic decision - Should I continue searching or provide my answer?`

// ThinkArgs are the arguments of think_tool.
type ThinkArgs struct {
	Reflection string `json:"reflection" jsonschema:"required,description=Your detailed reflection on research progress and next steps"`
}

// NewThink creates think_tool. It records nothing in the state; the
// reflection only lives in the conversation.
func NewThink() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        ThinkName,
			Description: thinkDescription,
			Concurrent:  true,
		},
		func(ctx tool.Context, args ThinkArgs) (map[string]any, error) {
			return tool.Result("Reflection recorded: " + args.Reflection), nil
		},
	)
}

// Tools returns tavily_search and think_tool.
func Tools(cfg Config) ([]tool.Tool, error) {
	search, err := NewSearch(cfg)
	if err != nil {
		return nil, err
	}
	think, err := NewThink()
	if err != nil {
		return nil, err
	}
	return []tool.Tool{search, think}, nil
}
