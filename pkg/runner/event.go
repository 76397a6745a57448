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

package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// EventType classifies run events.
type EventType string

const (
	// EventModelResponse carries the AI message of a step.
	EventModelResponse EventType = "model_response"

	// EventToolResult carries one tool message and the update it applied.
	EventToolResult EventType = "tool_result"

	// EventFinal is emitted once when the model answers without tool calls.
	EventFinal EventType = "final"

	// EventError accompanies a terminal error.
	EventError EventType = "error"
)

// Event is a single observation of a run. State is the full state after
// the event was applied.
type Event struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	Agent     string           `json:"agent"`
	Step      int              `json:"step"`
	Type      EventType        `json:"type"`
	Message   state.Message    `json:"message"`
	Update    state.Update     `json:"update"`
	State     state.AgentState `json:"state"`
	Tokens    int              `json:"tokens"`
	Timestamp time.Time        `json:"timestamp"`
}

// IsFinal reports whether the event ends a successful run.
func (e *Event) IsFinal() bool {
	return e != nil && e.Type == EventFinal
}

func (r *run) event(typ EventType, msg state.Message, u state.Update) *Event {
	return &Event{
		ID:        uuid.NewString(),
		RunID:     r.id,
		Agent:     r.cfg.Name,
		Step:      r.step,
		Type:      typ,
		Message:   msg,
		Update:    u,
		State:     r.state.Clone(),
		Tokens:    r.tokens,
		Timestamp: time.Now(),
	}
}
