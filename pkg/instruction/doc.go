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

// Package instruction renders agent instructions that reference the
// working state.
//
// Placeholders are resolved before every model call:
//
//	{agent}        - the agent name
//	{date}         - the current date and time
//	{todos}        - the todo ledger, formatted
//	{files}        - the virtual file names
//	{file.PATH}    - the content of a virtual file
//	{name?}        - optional (empty string if not resolvable)
//
// Required placeholders that cannot be resolved are an error. Braces whose
// content is not a placeholder name, such as JSON examples, are left as-is.
//
// Example:
//
//	tmpl := instruction.New("Today is {date}.\n\nBrief:\n{file.brief.md?}")
//	resolved, err := tmpl.Render(instruction.Context{State: s, Now: time.Now()})
package instruction
