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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_Simple(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, "simple")

	l.Debug("hidden")
	l.With("agent", "main").WithGroup("tool").Info("called", "name", "ls")
	l.Warn("careful")

	assert.Equal(t, "INFO called agent=main tool.name=ls\nWARN careful\n", buf.String())
}

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelDebug, &buf, "verbose").Debug("step", "n", 1)
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} DEBUG step n=1\n$`, buf.String())
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, "json").Info("saved", "run_id", "r1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "saved", rec["msg"])
	assert.Equal(t, "r1", rec["run_id"])
}

func TestFilteringHandler_DropsForeignRecords(t *testing.T) {
	var buf bytes.Buffer
	h := &filteringHandler{
		handler:  slog.NewTextHandler(&buf, nil),
		minLevel: slog.LevelInfo,
	}

	// A PC outside this module: a function from the standard library.
	pcs := make([]uintptr, 1)
	pcs[0] = funcPC(bytes.NewBufferString)
	assert.False(t, fromModule(pcs[0]))

	assert.True(t, fromModule(0))
	require.NoError(t, h.Handle(t.Context(), slog.NewRecord(timeZero, slog.LevelInfo, "dropped", pcs[0])))
	assert.Empty(t, buf.String())

	debug := &filteringHandler{handler: h.handler, minLevel: slog.LevelDebug}
	require.NoError(t, debug.Handle(t.Context(), slog.NewRecord(timeZero, slog.LevelInfo, "kept", pcs[0])))
	assert.Contains(t, buf.String(), "kept")
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deepagent.log")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	l, cleanup, err := Setup(config.LoggerConfig{Level: "info", Format: "simple", File: path})
	require.NoError(t, err)
	l.Info("to file")
	assert.Same(t, l, GetLogger())
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO to file\n", string(data))
}
