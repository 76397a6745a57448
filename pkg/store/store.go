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

// Package store persists run snapshots so a run can be inspected or
// continued after the process that produced it exits.
//
// A snapshot is the whole AgentState of a run plus bookkeeping. Saving the
// same run ID again replaces the previous snapshot.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// Status is the lifecycle state of a stored run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is a persisted snapshot of one run.
type Run struct {
	ID        string           `json:"id" yaml:"id"`
	Agent     string           `json:"agent" yaml:"agent"`
	Status    Status           `json:"status" yaml:"status"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Steps     int              `json:"steps" yaml:"steps"`
	Tokens    int              `json:"tokens" yaml:"tokens"`
	State     state.AgentState `json:"state" yaml:"state"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
}

// Info summarises a run without its state.
type Info struct {
	ID        string    `json:"id" yaml:"id"`
	Agent     string    `json:"agent" yaml:"agent"`
	Status    Status    `json:"status" yaml:"status"`
	Steps     int       `json:"steps" yaml:"steps"`
	Tokens    int       `json:"tokens" yaml:"tokens"`
	Files     int       `json:"files" yaml:"files"`
	Todos     int       `json:"todos" yaml:"todos"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Info returns the summary of r.
func (r *Run) Info() Info {
	return Info{
		ID:        r.ID,
		Agent:     r.Agent,
		Status:    r.Status,
		Steps:     r.Steps,
		Tokens:    r.Tokens,
		Files:     len(r.State.Files),
		Todos:     len(r.State.Todos),
		UpdatedAt: r.UpdatedAt,
	}
}

// Store persists runs. Load of an unknown ID returns a *state.NotFoundError
// with Kind "run".
type Store interface {
	Save(ctx context.Context, run *Run) error
	Load(ctx context.Context, id string) (*Run, error)

	// List returns all runs, most recently updated first.
	List(ctx context.Context) ([]Info, error)

	Delete(ctx context.Context, id string) error
	Close() error
}

func notFound(id string) error {
	return &state.NotFoundError{Kind: "run", Path: id}
}

// stamp fills the timestamps of a run being saved.
func stamp(run *Run, now time.Time) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
}

// New creates the store selected by cfg.
func New(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	if cfg == nil {
		return NewInMemoryStore(), nil
	}
	switch cfg.Backend {
	case "memory":
		return NewInMemoryStore(), nil
	case "sql", "":
		return OpenSQL(ctx, &cfg.Database)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
