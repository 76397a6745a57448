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
	"os"
	"os/signal"
	"syscall"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/mcpserver"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// MCPCmd serves the agent's tools to an MCP client over stdio. Every call
// shares one state, snapshotted to the run store.
type MCPCmd struct {
	RunID string `name:"run-id" help:"Run to continue and snapshot to. Defaults to a new run."`
}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := cli.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	initial := state.New()
	if c.RunID != "" {
		prev, err := a.store.Load(ctx, c.RunID)
		switch {
		case err == nil:
			initial = prev.State
		case !errors.Is(err, state.ErrNotFound):
			return err
		}
	}

	srv, err := mcpserver.New(mcpserver.Config{
		Name:    a.Config().Agent.Name,
		Version: version(),
		Tools:   a.Tools(),
		Initial: initial,
		Store:   a.store,
		RunID:   c.RunID,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	return srv.ServeStdio(ctx, os.Stdin, cli.stdout())
}
