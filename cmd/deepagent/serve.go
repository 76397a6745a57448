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
	"os"
	"os/signal"
	"syscall"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/server"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Address string `short:"a" help:"Listen address. Overrides server.address."`
	Watch   bool   `help:"Rebuild the agent when the config file changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		a   *app
		srv *server.Server
		err error
	)
	// Reloads only arrive from Watch, after a and srv are set.
	a, err = cli.openApp(ctx, config.WithOnChange(func(cfg *config.Config) {
		if err := a.rebuild(cfg); err != nil {
			a.logger.Error("Config reload failed, keeping the previous agent", "error", err)
			return
		}
		srv.SetRunner(a.Runner())
		a.logger.Info("Agent reloaded", "agent", cfg.Agent.Name)
	}))
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	cfg := a.Config()
	serverCfg := cfg.Server
	if c.Address != "" {
		serverCfg.Address = c.Address
	}

	srv, err = server.New(server.Options{
		Config:        serverCfg,
		Runner:        a.Runner(),
		Store:         a.store,
		Observability: a.obs,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}

	if c.Watch {
		if a.loader == nil {
			return fmt.Errorf("--watch requires a config file")
		}
		go func() {
			if err := a.loader.Watch(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("Config watch error", "error", err)
			}
		}()
	}

	fmt.Fprintf(cli.stderr(), "%s serving agent %s\n", green("deepagent"), cfg.Agent.Name)
	fmt.Fprintf(cli.stderr(), "   Runs:    http://%s/runs\n", serverCfg.Address)
	fmt.Fprintf(cli.stderr(), "   Health:  http://%s/healthz\n", serverCfg.Address)
	if a.obs.MetricsHandler() != nil {
		fmt.Fprintf(cli.stderr(), "   Metrics: http://%s%s\n", serverCfg.Address, a.obs.MetricsPath())
	}
	if c.Watch {
		fmt.Fprintf(cli.stderr(), "   Watching %s for changes\n", cli.Config)
	}

	return srv.Start(ctx)
}
