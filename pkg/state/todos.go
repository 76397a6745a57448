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
	"fmt"
	"slices"
	"strings"
)

// Status is the progress of a ledger entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Todo is one ledger entry. Its identity is its position in the ledger.
type Todo struct {
	Content string `json:"content" yaml:"content" mapstructure:"content" jsonschema:"required,description=Task description"`
	Status  Status `json:"status" yaml:"status" mapstructure:"status" jsonschema:"required,description=Task status,enum=pending,enum=in_progress,enum=completed"`
}

// LedgerPolicy controls ledger validation.
type LedgerPolicy struct {
	// SingleInProgress rejects ledgers with more than one in_progress entry.
	SingleInProgress bool
}

// DefaultLedgerPolicy enforces a single in_progress entry.
var DefaultLedgerPolicy = LedgerPolicy{SingleInProgress: true}

// ValidateTodos checks every entry of a proposed ledger.
func ValidateTodos(todos []Todo, policy LedgerPolicy) error {
	inProgress := 0
	for i, t := range todos {
		if !t.Status.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("todos[%d].status", i),
				Reason: fmt.Sprintf("%q is not one of pending, in_progress, completed", t.Status),
			}
		}
		if t.Status == StatusInProgress {
			inProgress++
		}
	}
	if policy.SingleInProgress && inProgress > 1 {
		return &ValidationError{
			Field:  "todos",
			Reason: fmt.Sprintf("%d entries are in_progress; at most one task may be in progress at a time", inProgress),
		}
	}
	return nil
}

// WriteTodos validates a complete ledger and returns the update replacing it.
func WriteTodos(todos []Todo, policy LedgerPolicy) (Update, error) {
	if err := ValidateTodos(todos, policy); err != nil {
		return Update{}, err
	}
	return ReplaceTodos(todos), nil
}

// ReadTodos returns a copy of the current ledger, never nil.
func ReadTodos(s AgentState) []Todo {
	out := slices.Clone(s.Todos)
	if out == nil {
		out = []Todo{}
	}
	return out
}

var statusEmoji = map[Status]string{
	StatusPending:    "⏳",
	StatusInProgress: "🔄",
	StatusCompleted:  "✅",
}

// FormatTodos renders the ledger the way it is shown to the model.
func FormatTodos(todos []Todo) string {
	if len(todos) == 0 {
		return "No todos currently in the list."
	}

	var b strings.Builder
	b.WriteString("Current TODO List:")
	for i, t := range todos {
		emoji, ok := statusEmoji[t.Status]
		if !ok {
			emoji = "❓"
		}
		fmt.Fprintf(&b, "\n%d. %s %s (%s)", i+1, emoji, t.Content, t.Status)
	}
	return b.String()
}

// CountByStatus tallies ledger entries per status.
func CountByStatus(todos []Todo) map[Status]int {
	counts := make(map[Status]int, 3)
	for _, t := range todos {
		counts[t.Status]++
	}
	return counts
}
