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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config/provider"
)

const sampleConfig = `
model:
  name: gemini-2.5-flash
  api_key: ${TEST_DEEPAGENT_KEY}
agent:
  name: orchestrator
  instruction: You coordinate research.
  tools: write_todos,read_todos,ls,task
  budget:
    max_steps: 30
subagents:
  - name: research-agent
    description: Delegate research
    tools: [tavily_search, think_tool]
    budget:
      max_steps: 10
delegation:
  max_delta_files: 5
search:
  enabled: true
  api_key: ${TEST_TAVILY_KEY:-fallback-key}
  timeout: 5s
storage:
  backend: memory
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_DEEPAGENT_KEY", "secret")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Model.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	assert.Equal(t, "secret", cfg.Model.APIKey)

	assert.Equal(t, "orchestrator", cfg.Agent.Name)
	assert.Equal(t, []string{"write_todos", "read_todos", "ls", "task"}, cfg.Agent.Tools)
	assert.Equal(t, 30, cfg.Agent.Budget.MaxSteps)
	assert.True(t, cfg.Agent.SingleInProgress())
	assert.Equal(t, 4, cfg.Agent.MaxParallelTools)

	require.Len(t, cfg.SubAgents, 1)
	assert.Equal(t, "research-agent", cfg.SubAgents[0].Name)
	assert.Equal(t, 10, cfg.SubAgents[0].Budget.MaxSteps)

	assert.Equal(t, 5, cfg.Delegation.MaxDeltaFiles)

	assert.Equal(t, "fallback-key", cfg.Search.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 1, cfg.Search.MaxResults)
	assert.Equal(t, 5, cfg.Search.MaxResultsLimit)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 2000, cfg.Files.ReadLimit)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"agent": {"name": "json-agent", "todos": {"single_in_progress": false}}}`))
	require.NoError(t, err)
	assert.Equal(t, "json-agent", cfg.Agent.Name)
	assert.False(t, cfg.Agent.SingleInProgress())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Agent, cfg.Agent)
	assert.Equal(t, "sql", cfg.Storage.Backend)
	assert.Equal(t, "sqlite", cfg.Storage.Database.Driver)
	assert.Equal(t, "runs.db", cfg.Storage.Database.Database)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "unknown field",
			input:   "agent:\n  nmae: typo\n",
			wantErr: "nmae",
		},
		{
			name:    "unsupported provider",
			input:   "model:\n  provider: openai\n",
			wantErr: "unsupported model provider",
		},
		{
			name:    "negative budget",
			input:   "agent:\n  budget:\n    max_steps: -1\n",
			wantErr: "agent: budget limits must be non-negative",
		},
		{
			name:    "duplicate subagent",
			input:   "subagents:\n  - name: a\n  - name: a\n",
			wantErr: `duplicate sub-agent "a"`,
		},
		{
			name:    "unnamed subagent",
			input:   "subagents:\n  - description: x\n",
			wantErr: "subagents[0]: name is required",
		},
		{
			name:    "bad storage backend",
			input:   "storage:\n  backend: redis\n",
			wantErr: "invalid storage backend",
		},
		{
			name:    "postgres without host",
			input:   "storage:\n  database:\n    driver: postgres\n    database: runs\n",
			wantErr: "host is required for postgres",
		},
		{
			name:    "max results over limit",
			input:   "search:\n  max_results: 9\n  max_results_limit: 3\n",
			wantErr: "exceeds max_results_limit",
		},
		{
			name:    "bad log level",
			input:   "logger:\n  level: loud\n",
			wantErr: "invalid log level",
		},
		{
			name:    "not a document",
			input:   "[unterminated",
			wantErr: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DA_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${DA_SET}", "value"},
		{"$DA_SET/path", "value/path"},
		{"${DA_UNSET_VAR:-dflt}", "dflt"},
		{"${DA_SET:-dflt}", "value"},
		{"${DA_UNSET_VAR}", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnv(tt.in), tt.in)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DA_FROM_DOTENV=loaded\n"), 0o644))
	t.Setenv("DA_FROM_DOTENV", "")
	os.Unsetenv("DA_FROM_DOTENV")

	require.NoError(t, LoadEnvFiles(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("DA_FROM_DOTENV"))
}

func TestResolveInstruction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))

	agent := AgentConfig{InstructionFile: path}
	text, err := agent.ResolveInstruction()
	require.NoError(t, err)
	assert.Equal(t, "from file", text)

	sub := SubAgentConfig{Name: "x", PromptFile: filepath.Join(dir, "missing.md")}
	_, err = sub.ResolvePrompt()
	assert.ErrorContains(t, err, "sub-agent x")
}

func TestLoader_LoadAndCurrent(t *testing.T) {
	loader := NewLoader(provider.NewBytesProvider([]byte("agent:\n  name: bytes\n")))
	assert.Nil(t, loader.Current())

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bytes", cfg.Agent.Name)
	assert.Same(t, cfg, loader.Current())
	assert.Equal(t, provider.TypeBytes, loader.Provider().Type())
	require.NoError(t, loader.Close())
}

func TestLoadConfigFile_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deepagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: first\n"), 0o644))

	changed := make(chan *Config, 1)
	cfg, loader, err := LoadConfigFile(context.Background(), path, WithOnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}))
	require.NoError(t, err)
	defer loader.Close()
	assert.Equal(t, "first", cfg.Agent.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loader.Watch(ctx)

	// Give the watcher time to register.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: second\n"), 0o644))

	select {
	case c := <-changed:
		assert.Equal(t, "second", c.Agent.Name)
		assert.Equal(t, "second", loader.Current().Agent.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not detected")
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, _, err := LoadConfigFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
