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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
)

// CreateRunRequest is the body of POST /runs.
type CreateRunRequest struct {
	// Task is the user message.
	Task string `json:"task"`

	// RunID continues a stored run when it exists, otherwise names the new
	// run.
	RunID string `json:"run_id,omitempty"`

	// Files are written into the state before the run starts.
	Files map[string]string `json:"files,omitempty"`

	Stream bool `json:"stream,omitempty"`
}

// RunResponse summarises a finished run.
type RunResponse struct {
	RunID        string       `json:"run_id"`
	Agent        string       `json:"agent"`
	Status       store.Status `json:"status"`
	Error        string       `json:"error,omitempty"`
	Steps        int          `json:"steps"`
	Tokens       int          `json:"tokens"`
	FinalMessage string       `json:"final_message,omitempty"`
	Todos        []state.Todo `json:"todos"`
	Files        []string     `json:"files"`
}

// StreamEvent is the data of one SSE event.
type StreamEvent struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	Step      int              `json:"step"`
	Type      runner.EventType `json:"type"`
	Message   state.Message    `json:"message"`
	Update    state.Update     `json:"update"`
	Tokens    int              `json:"tokens"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []store.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": infos})
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	run, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if run, ok := s.loadRun(w, r); ok {
		writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	todos := state.ReadTodos(run.State)
	writeJSON(w, http.StatusOK, map[string]any{
		"todos":  todos,
		"counts": state.CountByStatus(todos),
		"text":   state.FormatTodos(todos),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": state.Ls(run.State)})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	offset, err := intQuery(r, "offset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}

	content, err := state.ReadFile(run.State, chi.URLParam(r, "*"), offset, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	debug := s.obs.DebugExporter()
	if debug == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "debug tracing is not enabled"})
		return
	}
	spans := debug.SpansForRun(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"spans": spans})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &state.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		s.writeError(w, &state.ValidationError{Field: "task", Reason: "must not be empty"})
		return
	}

	rn := s.currentRunner()
	if rn == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no agent configured"})
		return
	}

	initial, runID, err := s.initialState(r, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.claim(runID) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("run %s is already running", runID)})
		return
	}
	defer s.release(runID)

	events := store.Track(r.Context(), s.store, s.logger, rn.Run(r.Context(), initial, runner.WithRunID(runID)))

	if req.Stream || r.URL.Query().Get("stream") == "true" || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamRun(w, events)
		return
	}

	var (
		last   *runner.Event
		runErr error
	)
	for ev, err := range events {
		if ev != nil {
			last = ev
		}
		if err != nil {
			runErr = err
		}
	}
	if last == nil {
		if runErr == nil {
			runErr = fmt.Errorf("run %s produced no events", runID)
		}
		s.writeError(w, runErr)
		return
	}
	writeJSON(w, http.StatusOK, summarize(last, runErr))
}

// initialState builds the starting state: the stored state of req.RunID
// when it exists, else a fresh state.
func (s *Server) initialState(r *http.Request, req CreateRunRequest) (state.AgentState, string, error) {
	return store.Resume(r.Context(), s.store, req.RunID, state.Update{
		Messages: []state.Message{state.HumanMessage(req.Task)},
		Files:    req.Files,
	})
}

func (s *Server) claim(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		s.active = make(map[string]bool)
	}
	if s.active[runID] {
		return false
	}
	s.active[runID] = true
	return true
}

func (s *Server) release(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, runID)
}

func (s *Server) streamRun(w http.ResponseWriter, events iter.Seq2[*runner.Event, error]) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev, err := range events {
		if ev == nil {
			continue
		}
		out := StreamEvent{
			ID:        ev.ID,
			RunID:     ev.RunID,
			Step:      ev.Step,
			Type:      ev.Type,
			Message:   ev.Message,
			Update:    ev.Update,
			Tokens:    ev.Tokens,
			Timestamp: ev.Timestamp,
		}
		if err != nil {
			out.Error = err.Error()
		}
		data, merr := json.Marshal(out)
		if merr != nil {
			s.logger.Error("Failed to encode event", "error", merr)
			continue
		}
		if _, werr := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); werr != nil {
			// Client went away.
			return
		}
		flusher.Flush()
	}
}

func summarize(ev *runner.Event, err error) RunResponse {
	run := store.RunFromEvent(ev, err)
	resp := RunResponse{
		RunID:  run.ID,
		Agent:  run.Agent,
		Status: run.Status,
		Error:  run.Error,
		Steps:  run.Steps,
		Tokens: run.Tokens,
		Todos:  state.ReadTodos(run.State),
		Files:  state.Ls(run.State),
	}
	if msg, ok := run.State.LastAIMessage(); ok && run.Status == store.StatusCompleted {
		resp.FinalMessage = msg.Content
	}
	return resp
}

func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &state.ValidationError{Field: key, Reason: fmt.Sprintf("must be a non-negative integer, got %q", raw)}
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, state.ErrValidation):
		status = http.StatusBadRequest
	default:
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
