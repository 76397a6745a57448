// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcpserver exposes the working-state tools over the Model Context
// Protocol, so an external agent can keep its todo ledger and virtual files
// in this process.
//
// All calls share one AgentState. Calls are applied one at a time; each
// tool sees the state left by the previous call.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
)

const (
	TodosURI     = "state://todos"
	FileTemplate = "file:///{path}"
)

// Config configures a Server.
type Config struct {
	Name    string
	Version string

	// Tools are served as MCP tools. They must be callable.
	Tools []tool.Tool

	// Initial seeds the shared state.
	Initial state.AgentState

	// Store, when set, receives a snapshot after every call that changed
	// the state.
	Store store.Store
	RunID string

	Logger *slog.Logger
}

// Server serves tools against a shared AgentState.
type Server struct {
	cfg    Config
	mcp    *server.MCPServer
	logger *slog.Logger

	mu    sync.Mutex
	state state.AgentState
	calls int
}

// New creates a Server and registers its tools and resources.
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "deepagent"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.RunID == "" {
		cfg.RunID = "mcp-" + uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  cfg.Initial.Clone(),
		mcp: server.NewMCPServer(cfg.Name, cfg.Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithRecovery(),
		),
	}

	seen := make(map[string]bool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		ct, ok := t.(tool.CallableTool)
		if !ok {
			return nil, fmt.Errorf("tool %s is not callable", t.Name())
		}
		if seen[ct.Name()] {
			return nil, fmt.Errorf("duplicate tool %q", ct.Name())
		}
		seen[ct.Name()] = true

		schema := ct.Schema()
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", ct.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(ct.Name(), ct.Description(), raw), s.handler(ct))
	}

	s.mcp.AddResource(
		mcp.NewResource(TodosURI, "todos",
			mcp.WithResourceDescription("The current todo ledger"),
			mcp.WithMIMEType("text/plain"),
		),
		s.readTodos,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(FileTemplate, "file",
			mcp.WithTemplateDescription("A virtual file"),
			mcp.WithTemplateMIMEType("text/plain"),
		),
		s.readFile,
	)

	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// State returns a copy of the shared state.
func (s *Server) State() state.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// ServeStdio serves MCP over r and w until ctx is cancelled or r closes.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, r, w)
}

func (s *Server) handler(t tool.CallableTool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := s.call(ctx, t, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// call runs t against the shared state and applies its update. A failed
// call leaves the state unchanged.
func (s *Server) call(ctx context.Context, t tool.CallableTool, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	callID := fmt.Sprintf("mcp_%d", s.calls)
	tctx := tool.NewContext(ctx, callID, s.cfg.Name, s.state.Clone())

	result, err := t.Call(tctx, args)
	if err != nil {
		s.logger.Debug("MCP tool call failed", "tool", t.Name(), "error", err)
		return "", err
	}

	update := tctx.Actions().Update
	if !update.IsEmpty() {
		s.state = state.Merge(s.state, update)
		s.snapshot(ctx)
	}
	return tool.ResultText(result), nil
}

// snapshot saves the state. Failures are logged; the call already
// succeeded.
func (s *Server) snapshot(ctx context.Context) {
	if s.cfg.Store == nil {
		return
	}
	run := &store.Run{
		ID:     s.cfg.RunID,
		Agent:  s.cfg.Name,
		Status: store.StatusRunning,
		Steps:  s.calls,
		State:  s.state.Clone(),
	}
	if err := s.cfg.Store.Save(ctx, run); err != nil {
		s.logger.Warn("Failed to save MCP state", "run_id", s.cfg.RunID, "error", err)
	}
}

func (s *Server) readTodos(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	s.mu.Lock()
	text := state.FormatTodos(state.ReadTodos(s.state))
	s.mu.Unlock()

	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: TodosURI, MIMEType: "text/plain", Text: text},
	}, nil
}

func (s *Server) readFile(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	path, err := pathFromURI(uri)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	content, ok := s.state.Files[path]
	s.mu.Unlock()
	if !ok {
		return nil, &state.NotFoundError{Path: path}
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: content},
	}, nil
}

// pathFromURI maps file:///notes.md to notes.md. Paths are virtual keys,
// so the leading slash is not part of them.
func pathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid resource URI %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported resource URI %q", uri)
	}
	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return "", &state.ValidationError{Field: "uri", Reason: "file path is empty"}
	}
	return path, nil
}
