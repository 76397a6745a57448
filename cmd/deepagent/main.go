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

// Command deepagent runs a deep agent: a tool-calling loop that plans with a
// todo ledger, works in a virtual file system and delegates to sub-agents.
//
// Usage:
//
//	deepagent run "Research the history of MCP" -c deepagent.yaml
//	deepagent runs
//	deepagent files RUN_ID report.md
//	deepagent serve --watch -c deepagent.yaml
//	deepagent mcp -c deepagent.yaml
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	deepagents "github.com/teddynote-lab/deep-agents-from-scratch"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`
	Run      RunCmd      `cmd:"" help:"Run the agent on a task."`
	Runs     RunsCmd     `cmd:"" help:"List stored runs."`
	Show     ShowCmd     `cmd:"" help:"Show a stored run."`
	Files    FilesCmd    `cmd:"" help:"List or read the files of a stored run."`
	Todos    TodosCmd    `cmd:"" help:"Show the todo ledger of a stored run."`
	Rm       RmCmd       `cmd:"" help:"Delete a stored run."`
	Call     CallCmd     `cmd:"" help:"Call one tool against a stored run's state."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve the tools over MCP on stdio."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API."`

	Config    string `short:"c" help:"Config file, '-' for stdin, or a consul://, etcd:// or zk:// URL." env:"DEEPAGENT_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config file."`
	LogFile   string `help:"Log file path (empty = stderr). Overrides the config file."`
	LogFormat string `help:"Log format (simple, verbose, json). Overrides the config file."`

	out      io.Writer    `kong:"-"`
	errOut   io.Writer    `kong:"-"`
	newModel modelFactory `kong:"-"`
	cleanup  func()       `kong:"-"`
}

func (cli *CLI) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *CLI) stderr() io.Writer {
	if cli.errOut == nil {
		return os.Stderr
	}
	return cli.errOut
}

// loggerConfig merges the logging flags over the config file section.
func (cli *CLI) loggerConfig(cfg config.LoggerConfig) config.LoggerConfig {
	if cli.LogLevel != "" {
		cfg.Level = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.File = cli.LogFile
	}
	if cli.LogFormat != "" {
		cfg.Format = cli.LogFormat
	}
	cfg.SetDefaults()
	return cfg
}

func (cli *CLI) setupLogger(cfg config.LoggerConfig) error {
	_, cleanup, err := logger.Setup(cli.loggerConfig(cfg))
	if err != nil {
		return err
	}
	if cli.cleanup != nil {
		cli.cleanup()
	}
	cli.cleanup = cleanup
	return nil
}

func (cli *CLI) close() {
	if cli.cleanup != nil {
		cli.cleanup()
		cli.cleanup = nil
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Fprintln(cli.stdout(), deepagents.GetVersion())
	return nil
}

func version() string {
	return deepagents.GetVersion().Version
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("deepagent"),
		kong.Description("Deep agent with a todo ledger, virtual files and sub-agent delegation"),
		kong.UsageOnError(),
	)

	// Flags only until a command loads the config file.
	if err := cli.setupLogger(config.LoggerConfig{}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	cli.close()
	ctx.FatalIfErrorf(err)
}
