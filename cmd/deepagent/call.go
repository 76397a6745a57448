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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
)

// CallCmd calls one tool outside the agent loop. With --run-id the tool
// sees that run's state and its update is saved back.
type CallCmd struct {
	Tool  string `arg:"" help:"Tool name."`
	Args  string `arg:"" optional:"" help:"Arguments as a JSON object. Malformed JSON is repaired."`
	RunID string `name:"run-id" help:"Run whose state the tool reads and updates."`
}

func (c *CallCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args, err := parseArgs(c.Args)
	if err != nil {
		return err
	}

	a, err := cli.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	t, err := findCallable(a.Tools(), c.Tool)
	if err != nil {
		return err
	}

	agent := a.Config().Agent.Name
	run := &store.Run{ID: c.RunID, Agent: agent, Status: store.StatusCompleted, State: state.New()}
	if c.RunID != "" {
		prev, err := a.store.Load(ctx, c.RunID)
		switch {
		case err == nil:
			run = prev
		case !errors.Is(err, state.ErrNotFound):
			return err
		}
	}

	tctx := tool.NewContext(ctx, "cli_"+uuid.NewString()[:8], agent, run.State.Clone())
	result, err := t.Call(tctx, args)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Tool, err)
	}
	fmt.Fprintln(cli.stdout(), tool.ResultText(result))

	update := tctx.Actions().Update
	if c.RunID == "" || update.IsEmpty() {
		return nil
	}
	run.State = state.Merge(run.State, update)
	if err := a.store.Save(ctx, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", c.RunID, err)
	}
	return nil
}

func findCallable(tools []tool.Tool, name string) (tool.CallableTool, error) {
	for _, t := range tools {
		if t.Name() != name {
			continue
		}
		ct, ok := t.(tool.CallableTool)
		if !ok {
			return nil, fmt.Errorf("tool %q cannot be called directly", name)
		}
		return ct, nil
	}
	return nil, fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(tool.Names(tools), ", "))
}

// parseArgs decodes a JSON object, repairing common damage such as
// single quotes or trailing commas first.
func parseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
