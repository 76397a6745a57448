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

package instruction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

func testContext() Context {
	s := state.Merge(state.New(),
		state.PutFile("notes.md", "alpha\n"),
		state.ReplaceTodos([]state.Todo{{Content: "plan", Status: state.StatusInProgress}}),
	)
	return Context{
		Agent: "researcher",
		State: s,
		Now:   time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC),
	}
}

func TestInjectState(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
		wantErr  string
	}{
		{name: "empty", template: "", want: ""},
		{name: "no placeholders", template: "plain text", want: "plain text"},
		{name: "agent", template: "You are {agent}.", want: "You are researcher."},
		{name: "date", template: "Today is {date}.", want: "Today is Mar 7, 2025 09:30:00 (Friday)."},
		{name: "files", template: "{files}", want: "notes.md"},
		{name: "todos", template: "{todos}", want: "Current TODO List:\n1. 🔄 plan (in_progress)"},
		{name: "file content", template: "[{file.notes.md}]", want: "[alpha\n]"},
		{name: "optional missing file", template: "[{file.missing.md?}]", want: "[]"},
		{name: "required missing file", template: "{file.missing.md}", wantErr: "file 'missing.md' not found"},
		{name: "optional unknown", template: "[{user?}]", want: "[]"},
		{name: "required unknown", template: "{user}", wantErr: `unknown instruction placeholder "user"`},
		{name: "json left as-is", template: `Reply with {"summary": "..."}`, want: `Reply with {"summary": "..."}`},
		{name: "spaces trimmed", template: "{ agent }", want: "researcher"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InjectState(testContext(), tt.template)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInjectState_NoFiles(t *testing.T) {
	got, err := InjectState(Context{State: state.New()}, "{files}")
	require.NoError(t, err)
	assert.Equal(t, "(no files)", got)
}

func TestTemplate_Render(t *testing.T) {
	tmpl := New("{agent}: {file.notes.md}")
	assert.Equal(t, "{agent}: {file.notes.md}", tmpl.Raw())

	got, err := tmpl.Render(testContext())
	require.NoError(t, err)
	assert.Equal(t, "researcher: alpha\n", got)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(""))
	assert.NoError(t, Validate("{agent} {date} {todos} {files} {file.any.md} {custom?} {\"json\": 1}"))
	assert.Error(t, Validate("Hello {user_name}"))
}

func TestPlaceholders(t *testing.T) {
	assert.False(t, HasPlaceholders("plain"))
	assert.False(t, HasPlaceholders(`{"a": 1}`))
	assert.True(t, HasPlaceholders("{date}"))
	assert.True(t, HasPlaceholders("{file.a.md}"))

	assert.Equal(t, []string{"agent", "file.a.md", "x"}, ListPlaceholders("{agent} {file.a.md} {x?} {agent} {\"k\": 1}"))
}
