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
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
)

// RunCmd runs the agent on a task and stores every snapshot.
type RunCmd struct {
	Task   string   `arg:"" help:"Task for the agent."`
	RunID  string   `name:"run-id" help:"Continue a stored run, or name a new one."`
	Files  []string `name:"file" short:"f" help:"Seed a virtual file from disk (PATH or NAME=PATH)." placeholder:"FILE"`
	Output string   `short:"o" help:"Output format: text or json." default:"text" enum:"text,json"`
	Quiet  bool     `short:"q" help:"Do not print progress."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := readSeedFiles(c.Files)
	if err != nil {
		return err
	}

	a, err := cli.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	initial, runID, err := store.Resume(ctx, a.store, c.RunID, state.Update{
		Messages: []state.Message{state.HumanMessage(c.Task)},
		Files:    files,
	})
	if err != nil {
		return err
	}

	var (
		last   *runner.Event
		runErr error
	)
	events := a.Runner().Run(ctx, initial, runner.WithRunID(runID))
	for ev, err := range store.Track(ctx, a.store, a.logger, events) {
		if ev != nil {
			last = ev
			if !c.Quiet {
				printProgress(cli.stderr(), ev)
			}
		}
		if err != nil {
			runErr = err
		}
	}
	if last == nil {
		return fmt.Errorf("run %s produced no events", runID)
	}

	summary := summarizeRun(store.RunFromEvent(last, runErr))
	if err := summary.write(cli.stdout(), c.Output); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", runID, runErr)
	}
	return nil
}

// readSeedFiles reads PATH or NAME=PATH arguments. A bare PATH is stored
// under its base name.
func readSeedFiles(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	files := make(map[string]string, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
			name = filepath.Base(arg)
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid --file %q (want PATH or NAME=PATH)", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
		files[name] = string(data)
	}
	return files, nil
}

func printProgress(w io.Writer, ev *runner.Event) {
	switch ev.Type {
	case runner.EventModelResponse:
		if len(ev.Message.ToolCalls) == 0 {
			fmt.Fprintf(w, "%s %s answered\n", gray(fmt.Sprintf("[step %d]", ev.Step)), ev.Agent)
			return
		}
		names := make([]string, len(ev.Message.ToolCalls))
		for i, call := range ev.Message.ToolCalls {
			names[i] = call.Name
		}
		fmt.Fprintf(w, "%s %s calls %s\n", gray(fmt.Sprintf("[step %d]", ev.Step)), ev.Agent, cyan(strings.Join(names, ", ")))
	case runner.EventToolResult:
		status := green("ok")
		if ev.Message.IsError {
			status = red("error: " + firstLine(ev.Message.Content))
		}
		fmt.Fprintf(w, "%s   %s %s\n", gray(fmt.Sprintf("[step %d]", ev.Step)), ev.Message.Name, status)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// runSummary is what run and show print.
type runSummary struct {
	RunID        string       `json:"run_id" yaml:"run_id"`
	Agent        string       `json:"agent" yaml:"agent"`
	Status       store.Status `json:"status" yaml:"status"`
	Error        string       `json:"error,omitempty" yaml:"error,omitempty"`
	Steps        int          `json:"steps" yaml:"steps"`
	Tokens       int          `json:"tokens" yaml:"tokens"`
	FinalMessage string       `json:"final_message,omitempty" yaml:"final_message,omitempty"`
	Todos        []state.Todo `json:"todos" yaml:"todos"`
	Files        []string     `json:"files" yaml:"files"`
}

func summarizeRun(run *store.Run) runSummary {
	s := runSummary{
		RunID:  run.ID,
		Agent:  run.Agent,
		Status: run.Status,
		Error:  run.Error,
		Steps:  run.Steps,
		Tokens: run.Tokens,
		Todos:  state.ReadTodos(run.State),
		Files:  state.Ls(run.State),
	}
	if msg, ok := run.State.LastAIMessage(); ok {
		s.FinalMessage = msg.Content
	}
	return s
}

func (s runSummary) write(w io.Writer, format string) error {
	if format == "json" {
		return writeJSON(w, s)
	}

	if s.FinalMessage != "" {
		fmt.Fprintln(w, s.FinalMessage)
		fmt.Fprintln(w)
	}
	if len(s.Todos) > 0 {
		fmt.Fprintln(w, state.FormatTodos(s.Todos))
		fmt.Fprintln(w)
	}
	if len(s.Files) > 0 {
		fmt.Fprintf(w, "Files: %s\n", strings.Join(s.Files, ", "))
	}
	fmt.Fprintf(w, "Run %s %s (%d steps, %d tokens)\n", s.RunID, statusText(s.Status), s.Steps, s.Tokens)
	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", red(s.Error))
	}
	return nil
}
