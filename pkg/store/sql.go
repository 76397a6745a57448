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
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/utils"
)

const createRunsTable = `CREATE TABLE IF NOT EXISTS runs (
    id VARCHAR(255) PRIMARY KEY,
    agent VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL,
    error TEXT,
    steps INTEGER NOT NULL,
    tokens INTEGER NOT NULL,
    files INTEGER NOT NULL,
    todos INTEGER NOT NULL,
    state %s NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`

const runColumns = "id, agent, status, error, steps, tokens, files, todos, state, created_at, updated_at"

// SQLStore persists runs in a SQL database. Supported dialects are
// sqlite, postgres and mysql.
type SQLStore struct {
	db      *sql.DB
	dialect string
	owned   bool
}

// NewSQLStore wraps an open database and creates the schema if needed.
// The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// OpenSQL opens the database described by cfg and returns a store owning
// the connection. A relative SQLite path is placed in the data directory.
func OpenSQL(ctx context.Context, cfg *config.DatabaseConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	dsn := cfg.DSN()
	if cfg.Dialect() == "sqlite" && dsn != ":memory:" && !filepath.IsAbs(dsn) && filepath.Dir(dsn) == "." {
		dir, err := utils.EnsureDataDir("")
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, dsn)
	}

	db, err := sql.Open(cfg.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids "database is locked".
	if cfg.Dialect() == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Dialect() == "sqlite" {
		if _, err := db.ExecContext(pingCtx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("Failed to enable WAL mode", "error", err)
		}
		if _, err := db.ExecContext(pingCtx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("Failed to set busy timeout", "error", err)
		}
	}

	s, err := NewSQLStore(ctx, db, cfg.Dialect())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	stateType := "TEXT"
	if s.dialect == "mysql" {
		stateType = "LONGTEXT"
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createRunsTable, stateType)); err != nil {
		return err
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if s.dialect != "mysql" {
		if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at)"); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) upsertQuery() string {
	insert := "INSERT INTO runs (" + runColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	updated := []string{"agent", "status", "error", "steps", "tokens", "files", "todos", "state", "updated_at"}

	sets := make([]string, len(updated))
	for i, col := range updated {
		if s.dialect == "mysql" {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", col, col)
		}
	}
	if s.dialect == "mysql" {
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return s.rebind(insert + " ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", "))
}

// Save inserts or replaces the snapshot of run. The original creation time
// of an existing run is kept.
func (s *SQLStore) Save(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	stamp(run, time.Now())

	data, err := json.Marshal(run.State)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.upsertQuery(),
		run.ID, run.Agent, string(run.Status), run.Error, run.Steps, run.Tokens,
		len(run.State.Files), len(run.State.Todos), string(data),
		run.CreatedAt.UnixMilli(), run.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+runColumns+" FROM runs WHERE id = ?"), id)

	var (
		run                  Run
		status, data         string
		errText              sql.NullString
		files, todos         int
		createdAt, updatedAt int64
	)
	err := row.Scan(&run.ID, &run.Agent, &status, &errText, &run.Steps, &run.Tokens,
		&files, &todos, &data, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var st state.AgentState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to decode state of run %s: %w", id, err)
	}
	run.State = st.Clone()
	run.Status = Status(status)
	run.Error = errText.String
	run.CreatedAt = time.UnixMilli(createdAt)
	run.UpdatedAt = time.UnixMilli(updatedAt)
	return &run, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, agent, status, steps, tokens, files, todos, updated_at FROM runs ORDER BY updated_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var (
			info      Info
			status    string
			updatedAt int64
		)
		if err := rows.Scan(&info.ID, &info.Agent, &status, &info.Steps, &info.Tokens,
			&info.Files, &info.Todos, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.Status = Status(status)
		info.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM runs WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
