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

// Package config loads the deepagent configuration.
//
// Configuration is a single YAML (or JSON) document. String values may
// reference environment variables as ${VAR} or ${VAR:-default}; .env and
// .env.local are loaded first so API keys can live there.
//
// Example:
//
//	model:
//	  provider: gemini
//	  name: gemini-2.0-flash
//	agent:
//	  name: research-orchestrator
//	  instruction_file: prompts/orchestrator.md
//	  tools: [write_todos, read_todos, ls, read_file, write_file, task]
//	  budget:
//	    max_steps: 50
//	subagents:
//	  - name: research-agent
//	    description: Delegate research to the sub-agent researcher.
//	    tools: [tavily_search, think_tool]
//	search:
//	  api_key: ${TAVILY_API_KEY}
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/observability"
)

// Config is the root configuration document.
type Config struct {
	Version string `yaml:"version,omitempty"`

	Logger        LoggerConfig         `yaml:"logger,omitempty"`
	Model         ModelConfig          `yaml:"model,omitempty"`
	Agent         AgentConfig          `yaml:"agent,omitempty"`
	SubAgents     []SubAgentConfig     `yaml:"subagents,omitempty"`
	Delegation    DelegationConfig     `yaml:"delegation,omitempty"`
	Files         FilesConfig          `yaml:"files,omitempty"`
	Search        SearchConfig         `yaml:"search,omitempty"`
	Storage       StorageConfig        `yaml:"storage,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
	Server        ServerConfig         `yaml:"server,omitempty"`
}

// ModelConfig selects the LLM.
type ModelConfig struct {
	// Provider is the model backend. Only "gemini" is supported.
	Provider string `yaml:"provider,omitempty"`

	// Name is the model name.
	// Default: gemini-2.0-flash
	Name string `yaml:"name,omitempty"`

	// APIKey defaults to GEMINI_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`

	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
}

// SetDefaults applies default values.
func (c *ModelConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.Name == "" {
		c.Name = "gemini-2.0-flash"
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Provider)
	}
}

// Validate checks the model configuration. A missing API key is not an
// error here; commands that call the model check it.
func (c *ModelConfig) Validate() error {
	if c.Provider != "gemini" {
		return fmt.Errorf("unsupported model provider %q (supported: gemini)", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// BudgetConfig limits a run. Zero means unlimited.
type BudgetConfig struct {
	MaxSteps  int `yaml:"max_steps,omitempty"`
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// Validate checks the budget.
func (c BudgetConfig) Validate() error {
	if c.MaxSteps < 0 || c.MaxTokens < 0 {
		return fmt.Errorf("budget limits must be non-negative")
	}
	return nil
}

// TodosConfig configures the todo ledger.
type TodosConfig struct {
	// SingleInProgress rejects lists with more than one in_progress entry.
	// Default: true
	SingleInProgress *bool `yaml:"single_in_progress,omitempty"`
}

// AgentConfig configures the main agent.
type AgentConfig struct {
	// Name identifies the agent.
	// Default: deepagent
	Name string `yaml:"name,omitempty"`

	// Instruction is the system prompt. InstructionFile, when set, is read
	// instead.
	Instruction     string `yaml:"instruction,omitempty"`
	InstructionFile string `yaml:"instruction_file,omitempty"`

	// Tools lists the tools offered to the agent. Empty means every
	// configured tool.
	Tools []string `yaml:"tools,omitempty"`

	Budget BudgetConfig `yaml:"budget,omitempty"`
	Todos  TodosConfig  `yaml:"todos,omitempty"`

	// MaxParallelTools bounds concurrent tool calls in one step.
	// Default: 4
	MaxParallelTools int `yaml:"max_parallel_tools,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "deepagent"
	}
	if c.Todos.SingleInProgress == nil {
		v := true
		c.Todos.SingleInProgress = &v
	}
	if c.MaxParallelTools == 0 {
		c.MaxParallelTools = 4
	}
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	if c.Instruction != "" && c.InstructionFile != "" {
		return fmt.Errorf("instruction and instruction_file are mutually exclusive")
	}
	if c.MaxParallelTools < 0 {
		return fmt.Errorf("max_parallel_tools must be non-negative")
	}
	return c.Budget.Validate()
}

// ResolveInstruction returns the instruction text, reading InstructionFile
// when set.
func (c *AgentConfig) ResolveInstruction() (string, error) {
	if c.InstructionFile == "" {
		return c.Instruction, nil
	}
	data, err := os.ReadFile(c.InstructionFile)
	if err != nil {
		return "", fmt.Errorf("failed to read instruction file: %w", err)
	}
	return string(data), nil
}

// SingleInProgress reports the ledger policy.
func (c *AgentConfig) SingleInProgress() bool {
	return c.Todos.SingleInProgress == nil || *c.Todos.SingleInProgress
}

// SubAgentConfig describes a delegation target of the task tool.
type SubAgentConfig struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Prompt      string       `yaml:"prompt,omitempty"`
	PromptFile  string       `yaml:"prompt_file,omitempty"`
	Tools       []string     `yaml:"tools,omitempty"`
	Budget      BudgetConfig `yaml:"budget,omitempty"`
}

// ResolvePrompt returns the prompt text, reading PromptFile when set.
func (c *SubAgentConfig) ResolvePrompt() (string, error) {
	if c.PromptFile == "" {
		return c.Prompt, nil
	}
	data, err := os.ReadFile(c.PromptFile)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file for sub-agent %s: %w", c.Name, err)
	}
	return string(data), nil
}

// DelegationConfig configures the task tool.
type DelegationConfig struct {
	// MaxDeltaFiles caps the files returned by one delegation. 0 means
	// unlimited.
	MaxDeltaFiles int `yaml:"max_delta_files,omitempty"`

	// DefaultBudget applies to sub-agents without a budget.
	DefaultBudget BudgetConfig `yaml:"default_budget,omitempty"`
}

// FilesConfig configures the file tools.
type FilesConfig struct {
	// ReadLimit is the default number of lines read_file returns.
	// Default: 2000
	ReadLimit int `yaml:"read_limit,omitempty"`

	// MaxFileSize rejects writes and edits producing larger files. 0 means unlimited.
	MaxFileSize int `yaml:"max_file_size,omitempty"`

	// ShowDiff appends a diff to edit_file results.
	// Default: true
	ShowDiff *bool `yaml:"show_diff,omitempty"`

	// Grep enables the grep tool.
	Grep bool `yaml:"grep,omitempty"`
}

// SetDefaults applies default values.
func (c *FilesConfig) SetDefaults() {
	if c.ReadLimit == 0 {
		c.ReadLimit = 2000
	}
	if c.ShowDiff == nil {
		v := true
		c.ShowDiff = &v
	}
}

// SearchConfig configures tavily_search.
type SearchConfig struct {
	// Enabled adds tavily_search and think_tool.
	Enabled bool `yaml:"enabled,omitempty"`

	// APIKey defaults to TAVILY_API_KEY.
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxResults is the default number of results per query.
	// Default: 1
	MaxResults int `yaml:"max_results,omitempty"`

	// MaxResultsLimit caps what the model may request.
	// Default: 5
	MaxResultsLimit int `yaml:"max_results_limit,omitempty"`

	// Summarize uses the model to summarise results.
	// Default: true
	Summarize *bool `yaml:"summarize,omitempty"`

	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey("tavily")
	}
	if c.MaxResults == 0 {
		c.MaxResults = 1
	}
	if c.MaxResultsLimit == 0 {
		c.MaxResultsLimit = 5
	}
	if c.Summarize == nil {
		v := true
		c.Summarize = &v
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.MaxResults < 0 || c.MaxResultsLimit < 0 {
		return fmt.Errorf("max_results must be non-negative")
	}
	if c.MaxResults > c.MaxResultsLimit && c.MaxResultsLimit > 0 {
		return fmt.Errorf("max_results (%d) exceeds max_results_limit (%d)", c.MaxResults, c.MaxResultsLimit)
	}
	return nil
}

// StorageConfig selects the run store.
type StorageConfig struct {
	// Backend is "sql" or "memory".
	// Default: sql
	Backend string `yaml:"backend,omitempty"`

	Database DatabaseConfig `yaml:"database,omitempty"`
}

// SetDefaults applies default values.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sql"
	}
	if c.Backend == "sql" {
		c.Database.SetDefaults()
	}
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sql":
		return c.Database.Validate()
	default:
		return fmt.Errorf("invalid storage backend %q (valid: sql, memory)", c.Backend)
	}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Address to listen on.
	// Default: 127.0.0.1:8080
	Address string `yaml:"address,omitempty"`

	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = "127.0.0.1:8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	// Runs started through the API may take minutes.
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Model.SetDefaults()
	c.Agent.SetDefaults()
	c.Files.SetDefaults()
	c.Search.SetDefaults()
	c.Storage.SetDefaults()
	c.Observability.SetDefaults()
	c.Server.SetDefaults()
}

// Validate checks every section and the references between them.
func (c *Config) Validate() error {
	var errs []error
	wrap := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	wrap("logger", c.Logger.Validate())
	wrap("model", c.Model.Validate())
	wrap("agent", c.Agent.Validate())
	wrap("search", c.Search.Validate())
	wrap("storage", c.Storage.Validate())
	wrap("observability", c.Observability.Validate())

	if c.Delegation.MaxDeltaFiles < 0 {
		wrap("delegation", fmt.Errorf("max_delta_files must be non-negative"))
	}
	wrap("delegation", c.Delegation.DefaultBudget.Validate())

	seen := make(map[string]bool, len(c.SubAgents))
	for i, sa := range c.SubAgents {
		section := fmt.Sprintf("subagents[%d]", i)
		switch {
		case sa.Name == "":
			wrap(section, fmt.Errorf("name is required"))
		case seen[sa.Name]:
			wrap(section, fmt.Errorf("duplicate sub-agent %q", sa.Name))
		case sa.Prompt != "" && sa.PromptFile != "":
			wrap(section, fmt.Errorf("prompt and prompt_file are mutually exclusive"))
		}
		seen[sa.Name] = true
		wrap(section, sa.Budget.Validate())
	}

	return errors.Join(errs...)
}
