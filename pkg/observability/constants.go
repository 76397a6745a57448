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

package observability

const (
	AttrServiceName     = "service.name"
	AttrAgentName       = "agent.name"
	AttrRunID           = "run.id"
	AttrStep            = "run.step"
	AttrToolName        = "tool.name"
	AttrToolCallID      = "tool.call_id"
	AttrSubAgent        = "delegation.subagent"
	AttrFilesChanged    = "delegation.files_changed"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrLLMFinish       = "llm.finish_reason"
	AttrErrorType       = "error.type"
	AttrHTTPMethod      = "http.method"
	AttrHTTPPath        = "http.path"
	AttrHTTPStatusCode  = "http.status_code"

	SpanAgentRun      = "agent.run"
	SpanLLMCall       = "agent.llm_call"
	SpanToolExecution = "agent.tool_execution"
	SpanDelegation    = "agent.delegation"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName  = "deepagent"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultNamespace    = "deepagent"
)
