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

package store

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// Resume returns the state a run starts from. An empty runID starts a new
// run with a generated ID. A known runID continues from its stored state;
// an unknown one starts fresh under that ID. seed is merged on top.
func Resume(ctx context.Context, s Store, runID string, seed state.Update) (state.AgentState, string, error) {
	if runID == "" {
		return state.Merge(state.New(), seed), uuid.NewString(), nil
	}

	prev, err := s.Load(ctx, runID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return state.Merge(state.New(), seed), runID, nil
	case err != nil:
		return state.AgentState{}, "", err
	}
	return state.Merge(prev.State, seed), runID, nil
}

// RunFromEvent builds the snapshot of the run an event belongs to. err is
// the terminal error yielded with the event, if any.
func RunFromEvent(ev *runner.Event, err error) *Run {
	status := StatusRunning
	var errText string
	switch {
	case err != nil:
		status = StatusFailed
		errText = err.Error()
	case ev.IsFinal():
		status = StatusCompleted
	}
	return &Run{
		ID:     ev.RunID,
		Agent:  ev.Agent,
		Status: status,
		Error:  errText,
		Steps:  ev.Step,
		Tokens: ev.Tokens,
		State:  ev.State,
	}
}

// Track passes events through unchanged and saves a snapshot after each
// one. Save failures are logged and do not stop the run. Snapshots are
// saved even after ctx is cancelled so a stopped run keeps its state.
func Track(ctx context.Context, s Store, logger *slog.Logger, events iter.Seq2[*runner.Event, error]) iter.Seq2[*runner.Event, error] {
	if logger == nil {
		logger = slog.Default()
	}
	saveCtx := context.WithoutCancel(ctx)

	return func(yield func(*runner.Event, error) bool) {
		for ev, err := range events {
			if ev != nil {
				if serr := s.Save(saveCtx, RunFromEvent(ev, err)); serr != nil {
					logger.Warn("Failed to save run snapshot", "run_id", ev.RunID, "error", serr)
				}
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}
