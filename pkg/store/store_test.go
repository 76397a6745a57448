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

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlStore, err := OpenSQL(context.Background(), &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": sqlStore,
	}
}

func sampleRun(id string) *Run {
	st := state.Merge(state.New(state.HumanMessage("research go")), state.Update{
		Todos: &[]state.Todo{{Content: "search", Status: state.StatusInProgress}},
		Files: map[string]string{"notes.md": "line one\nline two"},
	})
	return &Run{
		ID:     id,
		Agent:  "orchestrator",
		Status: StatusRunning,
		Steps:  2,
		Tokens: 120,
		State:  st,
	}
}

func TestStore_SaveLoad(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun("run-1")
			require.NoError(t, s.Save(ctx, run))
			assert.False(t, run.CreatedAt.IsZero())

			got, err := s.Load(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, "orchestrator", got.Agent)
			assert.Equal(t, StatusRunning, got.Status)
			assert.Equal(t, 2, got.Steps)
			assert.Equal(t, 120, got.Tokens)
			assert.Equal(t, "line one\nline two", got.State.Files["notes.md"])
			require.Len(t, got.State.Todos, 1)
			assert.Equal(t, state.StatusInProgress, got.State.Todos[0].Status)
			require.Len(t, got.State.Messages, 1)
			assert.Equal(t, "research go", got.State.Messages[0].Content)

			// Mutating the loaded copy must not reach the store.
			got.State.Files["notes.md"] = "changed"
			again, err := s.Load(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, "line one\nline two", again.State.Files["notes.md"])
		})
	}
}

func TestStore_UpsertKeepsCreatedAt(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := sampleRun("run-1")
			require.NoError(t, s.Save(ctx, first))
			created := first.CreatedAt

			time.Sleep(5 * time.Millisecond)
			second := sampleRun("run-1")
			second.Status = StatusFailed
			second.Error = "steps budget exceeded"
			require.NoError(t, s.Save(ctx, second))

			got, err := s.Load(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, got.Status)
			assert.Equal(t, "steps budget exceeded", got.Error)
			assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
			assert.True(t, got.UpdatedAt.After(got.CreatedAt))
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, sampleRun("older")))
			time.Sleep(5 * time.Millisecond)
			require.NoError(t, s.Save(ctx, sampleRun("newer")))

			infos, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 2)
			assert.Equal(t, "newer", infos[0].ID)
			assert.Equal(t, "older", infos[1].ID)
			assert.Equal(t, 1, infos[0].Files)
			assert.Equal(t, 1, infos[0].Todos)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Load(ctx, "missing")
			require.ErrorIs(t, err, state.ErrNotFound)
			assert.Contains(t, err.Error(), "missing")

			assert.ErrorIs(t, s.Delete(ctx, "missing"), state.ErrNotFound)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, sampleRun("gone")))
			require.NoError(t, s.Delete(ctx, "gone"))

			_, err := s.Load(ctx, "gone")
			assert.ErrorIs(t, err, state.ErrNotFound)
		})
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Save(context.Background(), &Run{}))
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, s)

	s, err = New(ctx, &config.StorageConfig{
		Backend:  "sql",
		Database: config.DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "x.db")},
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, &config.StorageConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "SELECT * FROM runs WHERE id = $1 AND agent = $2",
		s.rebind("SELECT * FROM runs WHERE id = ? AND agent = ?"))

	s.dialect = "mysql"
	assert.Contains(t, s.upsertQuery(), "ON DUPLICATE KEY UPDATE agent = VALUES(agent)")
	s.dialect = "sqlite"
	assert.Contains(t, s.upsertQuery(), "ON CONFLICT (id) DO UPDATE SET agent = excluded.agent")
}
