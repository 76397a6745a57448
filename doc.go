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

// Package deepagents is a deep agent runtime: a tool-calling loop whose
// working state carries a todo ledger and a virtual file system next to the
// conversation, and whose task tool delegates work to isolated sub-agents.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/teddynote-lab/deep-agents-from-scratch/cmd/deepagent@latest
//
// Create a configuration:
//
//	model:
//	  name: gemini-2.0-flash
//	  api_key: ${GEMINI_API_KEY}
//	search:
//	  enabled: true
//	subagents:
//	  - name: research-agent
//	    description: Researches one topic in depth.
//	    prompt: You are a researcher. Today is {date}.
//	    tools: [tavily_search, think_tool, write_file, read_file]
//
// Run a task, then inspect what the agent left behind:
//
//	deepagent run -c deepagent.yaml "Compare MCP and A2A"
//	deepagent todos RUN_ID
//	deepagent files RUN_ID final_report.md
//
// # Using as a Go Library
//
//	import (
//	    "github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
//	    "github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
//	    "github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/filetool"
//	    "github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/todotool"
//	)
//
// # Packages
//
//   - pkg/state: AgentState, the merge policy, the todo ledger and virtual files
//   - pkg/tool/...: file, todo, search and task tools
//   - pkg/runner: the agent loop with step and token budgets
//   - pkg/store: run snapshots in memory or SQL
//   - pkg/server, pkg/mcpserver: HTTP and MCP front ends
//   - pkg/config, pkg/logger, pkg/observability: ambient plumbing
package deepagents
