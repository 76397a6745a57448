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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/httpclient"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/instruction"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/logger"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model/gemini"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/observability"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/agenttool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/filetool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/searchtool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/todotool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/utils"
)

const defaultInstruction = `You are a deep agent. Work through the task step by step. Today is {date}.

Plan with write_todos before starting anything that takes more than a couple of steps, keep exactly one item in_progress, and mark items completed as soon as they are done. Re-read the list with read_todos before deciding what comes next.

Keep intermediate material in files: save notes, search results and drafts with write_file, find them again with ls and read_file, and revise them with edit_file.

When a task tool is available, hand self-contained pieces of work to sub-agents and read the files they leave behind.`

// modelFactory creates the LLM for a model configuration.
type modelFactory func(cfg config.ModelConfig) (model.LLM, error)

func newGeminiModel(cfg config.ModelConfig) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for %s (set GEMINI_API_KEY or model.api_key)", cfg.Provider)
	}
	gc := gemini.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Name,
		MaxTokens: cfg.MaxTokens,
	}
	if cfg.Temperature != nil {
		gc.Temperature = *cfg.Temperature
	}
	return gemini.New(gc)
}

// app is the runtime assembled from one configuration. The runner is
// rebuilt when the configuration reloads; storage and observability are
// fixed for the life of the process.
type app struct {
	logger   *slog.Logger
	obs      *observability.Manager
	store    store.Store
	loader   *config.Loader
	newModel modelFactory

	mu     sync.RWMutex
	cfg    *config.Config
	models []model.LLM
	tools  []tool.Tool
	runner *runner.Runner
}

// loadConfig reads the config file, or returns the defaults when none is
// given. File logging settings are applied under the flags.
func (cli *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		return config.Default(), nil, nil
	}
	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := cli.setupLogger(cfg.Logger); err != nil {
		loader.Close()
		return nil, nil, err
	}
	return cfg, loader, nil
}

// openStore opens only the run store, for commands that never call the
// model.
func (cli *CLI) openStore(ctx context.Context) (store.Store, error) {
	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if loader != nil {
		loader.Close()
	}
	return store.New(ctx, &cfg.Storage)
}

// openApp assembles the full runtime.
func (cli *CLI) openApp(ctx context.Context, opts ...config.LoaderOption) (*app, error) {
	cfg, loader, err := cli.loadConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	a := &app{
		logger:   logger.GetLogger(),
		loader:   loader,
		newModel: cli.newModel,
	}
	if a.newModel == nil {
		a.newModel = newGeminiModel
	}

	a.obs = observability.NewManager(cfg.Observability)
	if err := a.obs.Initialize(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	a.store, err = store.New(ctx, &cfg.Storage)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if err := a.rebuild(cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// rebuild creates the model, tools and runner for cfg and swaps them in.
func (a *app) rebuild(cfg *config.Config) error {
	llm, err := a.newModel(cfg.Model)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	r, tools, err := buildRunner(cfg, llm, a.obs, a.logger)
	if err != nil {
		llm.Close()
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.tools = tools
	a.runner = r
	// In-flight runs may still hold a previous model.
	a.models = append(a.models, llm)
	return nil
}

func (a *app) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *app) Runner() *runner.Runner {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runner
}

func (a *app) Tools() []tool.Tool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.tools)
}

// Close releases the store, models and telemetry providers.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.loader != nil {
		errs = append(errs, a.loader.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	a.mu.Lock()
	for _, m := range a.models {
		errs = append(errs, m.Close())
	}
	a.models = nil
	a.mu.Unlock()
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// buildRunner wires the configured tools around llm. It returns the main
// runner and every tool it knows, the task tool included.
func buildRunner(cfg *config.Config, llm model.LLM, obs *observability.Manager, logger *slog.Logger) (*runner.Runner, []tool.Tool, error) {
	base, err := buildTools(cfg, llm, logger)
	if err != nil {
		return nil, nil, err
	}

	runtime := runner.Config{
		Model:            llm,
		Tools:            base,
		GenerateConfig:   generateConfig(cfg.Model),
		MaxParallelTools: cfg.Agent.MaxParallelTools,
		TokenCounter:     utils.NewTokenCounterOrEstimate(cfg.Model.Name),
		Tracer:           obs.Tracer(),
		Metrics:          obs.Metrics(),
		Logger:           logger,
	}

	tools := base
	if len(cfg.SubAgents) > 0 {
		task, err := buildTaskTool(cfg, runtime)
		if err != nil {
			return nil, nil, err
		}
		tools = append(slices.Clone(base), task)
	}

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, nil, err
	}
	var allowed tool.Predicate
	if len(cfg.Agent.Tools) > 0 {
		if _, err := registry.Select(cfg.Agent.Tools); err != nil {
			return nil, nil, fmt.Errorf("agent: %w", err)
		}
		allowed = tool.StringPredicate(cfg.Agent.Tools)
	}

	instruction, err := cfg.Agent.ResolveInstruction()
	if err != nil {
		return nil, nil, err
	}
	if instruction == "" {
		instruction = defaultInstruction
	}

	agent := runtime
	agent.Name = cfg.Agent.Name
	agent.Instruction = instruction
	agent.Tools = registry.All()
	agent.AllowedTools = allowed
	agent.Budget = runner.Budget{MaxSteps: cfg.Agent.Budget.MaxSteps, MaxTokens: cfg.Agent.Budget.MaxTokens}

	r, err := runner.New(agent)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, registry.All(), nil
}

// buildTools creates the file, todo and search tools.
func buildTools(cfg *config.Config, llm model.LLM, logger *slog.Logger) ([]tool.Tool, error) {
	files, err := filetool.Tools(filetool.Config{
		ReadFile:  &filetool.ReadFileConfig{DefaultLimit: cfg.Files.ReadLimit},
		WriteFile: &filetool.WriteFileConfig{MaxFileSize: cfg.Files.MaxFileSize},
		EditFile: &filetool.EditFileConfig{
			ShowDiff:    cfg.Files.ShowDiff == nil || *cfg.Files.ShowDiff,
			MaxFileSize: cfg.Files.MaxFileSize,
		},
		IncludeGrep: cfg.Files.Grep,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file tools: %w", err)
	}

	policy := state.DefaultLedgerPolicy
	policy.SingleInProgress = cfg.Agent.SingleInProgress()
	todos, err := todotool.Tools(todotool.Config{Policy: policy})
	if err != nil {
		return nil, fmt.Errorf("failed to create todo tools: %w", err)
	}

	tools := append(files, todos...)
	if !cfg.Search.Enabled {
		return tools, nil
	}

	client, err := searchtool.NewTavilyClient(searchtool.TavilyConfig{
		APIKey:  cfg.Search.APIKey,
		BaseURL: cfg.Search.BaseURL,
		HTTPClient: httpclient.New(
			httpclient.WithTimeout(cfg.Search.Timeout),
			httpclient.WithMaxRetries(cfg.Search.MaxRetries),
			httpclient.WithLogger(logger),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var summarizer searchtool.Summarizer
	if cfg.Search.Summarize == nil || *cfg.Search.Summarize {
		summarizer = &searchtool.ModelSummarizer{Model: llm}
	}
	search, err := searchtool.Tools(searchtool.Config{
		Searcher:          client,
		Summarizer:        summarizer,
		DefaultMaxResults: cfg.Search.MaxResults,
		MaxResultsLimit:   cfg.Search.MaxResultsLimit,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search tools: %w", err)
	}
	return append(tools, search...), nil
}

func buildTaskTool(cfg *config.Config, runtime runner.Config) (tool.Tool, error) {
	subs := make([]agenttool.SubAgent, 0, len(cfg.SubAgents))
	for _, sc := range cfg.SubAgents {
		prompt, err := sc.ResolvePrompt()
		if err != nil {
			return nil, err
		}
		if err := instruction.Validate(prompt); err != nil {
			return nil, fmt.Errorf("sub-agent %s: %w", sc.Name, err)
		}
		budget := sc.Budget
		if budget == (config.BudgetConfig{}) {
			budget = cfg.Delegation.DefaultBudget
		}
		subs = append(subs, agenttool.SubAgent{
			Name:        sc.Name,
			Description: sc.Description,
			Prompt:      prompt,
			Tools:       sc.Tools,
			Budget:      runner.Budget{MaxSteps: budget.MaxSteps, MaxTokens: budget.MaxTokens},
		})
	}

	task, err := agenttool.New(agenttool.Config{
		SubAgents:     subs,
		Runtime:       runtime,
		MaxDeltaFiles: cfg.Delegation.MaxDeltaFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task tool: %w", err)
	}
	return task, nil
}

func generateConfig(cfg config.ModelConfig) *model.GenerateConfig {
	gc := &model.GenerateConfig{Temperature: cfg.Temperature}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		gc.MaxTokens = &maxTokens
	}
	return gc
}
