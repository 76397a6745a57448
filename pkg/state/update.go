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

package state

import (
	"maps"
	"slices"
)

// Update is a partial state change produced by one tool call or one model
// turn. Zero-valued fields leave the corresponding state field untouched.
type Update struct {
	// Messages are appended to the log.
	Messages []Message `json:"messages,omitempty" yaml:"messages,omitempty"`

	// Todos replaces the whole ledger when non-nil. A pointer to an empty
	// slice clears the ledger.
	Todos *[]Todo `json:"todos,omitempty" yaml:"todos,omitempty"`

	// Files are written key by key.
	Files map[string]string `json:"files,omitempty" yaml:"files,omitempty"`
}

// IsEmpty reports whether applying the update would change nothing.
func (u Update) IsEmpty() bool {
	return len(u.Messages) == 0 && u.Todos == nil && len(u.Files) == 0
}

// WithMessages returns a copy of u with msgs appended to its messages.
func (u Update) WithMessages(msgs ...Message) Update {
	u.Messages = append(slices.Clone(u.Messages), msgs...)
	return u
}

// ReplaceTodos builds an update that replaces the ledger.
func ReplaceTodos(todos []Todo) Update {
	cp := slices.Clone(todos)
	if cp == nil {
		cp = []Todo{}
	}
	return Update{Todos: &cp}
}

// PutFile builds an update that writes a single file.
func PutFile(path, content string) Update {
	return Update{Files: map[string]string{path: content}}
}

// Combine folds several updates into one, preserving merge semantics:
// messages concatenate, the last todos win, files merge per key.
func Combine(updates ...Update) Update {
	var out Update
	for _, u := range updates {
		out.Messages = append(out.Messages, u.Messages...)
		if u.Todos != nil {
			cp := slices.Clone(*u.Todos)
			if cp == nil {
				cp = []Todo{}
			}
			out.Todos = &cp
		}
		if len(u.Files) > 0 {
			if out.Files == nil {
				out.Files = make(map[string]string, len(u.Files))
			}
			maps.Copy(out.Files, u.Files)
		}
	}
	return out
}

// Merge applies updates to s in order and returns the resulting state.
// Neither s nor the updates are modified.
func Merge(s AgentState, updates ...Update) AgentState {
	out := s.Clone()
	for _, u := range updates {
		for _, m := range u.Messages {
			out.Messages = append(out.Messages, m.clone())
		}
		if u.Todos != nil {
			out.Todos = slices.Clone(*u.Todos)
			if out.Todos == nil {
				out.Todos = []Todo{}
			}
		}
		maps.Copy(out.Files, u.Files)
	}
	return out
}
