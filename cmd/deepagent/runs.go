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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

func statusText(s store.Status) string {
	switch s {
	case store.StatusCompleted:
		return green(string(s))
	case store.StatusFailed:
		return red(string(s))
	default:
		return cyan(string(s))
	}
}

// withStore opens the run store for the duration of fn.
func (cli *CLI) withStore(fn func(ctx context.Context, s store.Store) error) error {
	ctx := context.Background()
	s, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// RunsCmd lists stored runs.
type RunsCmd struct {
	Output string `short:"o" help:"Output format: table or json." default:"table" enum:"table,json"`
}

func (c *RunsCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, s store.Store) error {
		infos, err := s.List(ctx)
		if err != nil {
			return err
		}
		if c.Output == "json" {
			return writeJSON(cli.stdout(), infos)
		}
		if len(infos) == 0 {
			fmt.Fprintln(cli.stdout(), "No runs.")
			return nil
		}

		tw := tabwriter.NewWriter(cli.stdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tAGENT\tSTATUS\tSTEPS\tTOKENS\tTODOS\tFILES\tUPDATED")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				info.ID, info.Agent, statusText(info.Status), info.Steps, info.Tokens,
				info.Todos, info.Files, info.UpdatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	})
}

// ShowCmd prints a stored run.
type ShowCmd struct {
	RunID  string `arg:"" name:"run-id" help:"Run to show."`
	Output string `short:"o" help:"Output format: yaml or json." default:"yaml" enum:"yaml,json"`
	Full   bool   `help:"Include the full state with every message."`
}

func (c *ShowCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, s store.Store) error {
		run, err := s.Load(ctx, c.RunID)
		if err != nil {
			return err
		}
		var v any = summarizeRun(run)
		if c.Full {
			v = run
		}
		if c.Output == "json" {
			return writeJSON(cli.stdout(), v)
		}
		return writeYAML(cli.stdout(), v)
	})
}

// FilesCmd lists the files of a run, or prints one of them.
type FilesCmd struct {
	RunID  string `arg:"" name:"run-id" help:"Run to inspect."`
	Path   string `arg:"" optional:"" help:"File to print. Omit to list files."`
	Offset int    `help:"First line to print (0-based)."`
	Limit  int    `help:"Maximum number of lines to print (0 = all)."`
}

func (c *FilesCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, s store.Store) error {
		run, err := s.Load(ctx, c.RunID)
		if err != nil {
			return err
		}
		if c.Path == "" {
			for _, path := range state.Ls(run.State) {
				fmt.Fprintf(cli.stdout(), "%s\t%s\n", path, gray(fmt.Sprintf("%d lines", state.CountLines(run.State.Files[path]))))
			}
			return nil
		}
		content, err := state.ReadFile(run.State, c.Path, c.Offset, c.Limit)
		if err != nil {
			return err
		}
		fmt.Fprint(cli.stdout(), content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			fmt.Fprintln(cli.stdout())
		}
		return nil
	})
}

// TodosCmd prints the todo ledger of a run.
type TodosCmd struct {
	RunID  string `arg:"" name:"run-id" help:"Run to inspect."`
	Output string `short:"o" help:"Output format: text or json." default:"text" enum:"text,json"`
}

func (c *TodosCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, s store.Store) error {
		run, err := s.Load(ctx, c.RunID)
		if err != nil {
			return err
		}
		todos := state.ReadTodos(run.State)
		if c.Output == "json" {
			return writeJSON(cli.stdout(), todos)
		}
		fmt.Fprintln(cli.stdout(), state.FormatTodos(todos))
		return nil
	})
}

// RmCmd deletes stored runs.
type RmCmd struct {
	RunIDs []string `arg:"" name:"run-id" help:"Runs to delete."`
}

func (c *RmCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, s store.Store) error {
		for _, id := range c.RunIDs {
			if err := s.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cli.stdout(), "deleted %s\n", id)
		}
		return nil
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}
