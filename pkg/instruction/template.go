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

package instruction

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// DateLayout formats {date}.
const DateLayout = "Jan 2, 2006 15:04:05 (Monday)"

// Placeholder names.
const (
	VarAgent = "agent"
	VarDate  = "date"
	VarTodos = "todos"
	VarFiles = "files"

	// FilePrefix introduces a file reference: {file.notes.md}.
	FilePrefix = "file."
)

// placeholderRegex matches one or more opening braces, content without
// braces, one or more closing braces.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// Context supplies placeholder values.
type Context struct {
	Agent string
	State state.AgentState

	// Now is used for {date}. Zero means time.Now.
	Now time.Time
}

// Template is an instruction with placeholders.
type Template struct {
	raw string
}

// New creates a template.
func New(template string) *Template {
	return &Template{raw: template}
}

// Raw returns the template text.
func (t *Template) Raw() string {
	return t.raw
}

// Render resolves every placeholder.
func (t *Template) Render(c Context) (string, error) {
	return InjectState(c, t.raw)
}

// InjectState resolves the placeholders of template against c.
func InjectState(c Context, template string) (string, error) {
	if template == "" {
		return "", nil
	}

	var result strings.Builder
	lastIndex := 0
	for _, m := range placeholderRegex.FindAllStringIndex(template, -1) {
		start, end := m[0], m[1]
		result.WriteString(template[lastIndex:start])

		match := template[start:end]
		replacement, err := replaceMatch(c, match)
		if err != nil {
			return "", err
		}
		result.WriteString(replacement)
		lastIndex = end
	}
	result.WriteString(template[lastIndex:])
	return result.String(), nil
}

func parseMatch(match string) (name string, optional bool) {
	name = strings.TrimSpace(strings.Trim(match, "{}"))
	if strings.HasSuffix(name, "?") {
		return strings.TrimSuffix(name, "?"), true
	}
	return name, false
}

func replaceMatch(c Context, match string) (string, error) {
	name, optional := parseMatch(match)

	if path, ok := strings.CutPrefix(name, FilePrefix); ok {
		if path == "" {
			return match, nil
		}
		content, found := c.State.Files[path]
		if !found && !optional {
			return "", &state.NotFoundError{Kind: "file", Path: path}
		}
		return content, nil
	}

	if !isIdentifier(name) {
		return match, nil
	}

	switch name {
	case VarAgent:
		return c.Agent, nil
	case VarDate:
		now := c.Now
		if now.IsZero() {
			now = time.Now()
		}
		return now.Format(DateLayout), nil
	case VarTodos:
		return state.FormatTodos(state.ReadTodos(c.State)), nil
	case VarFiles:
		return formatFiles(state.Ls(c.State)), nil
	}
	if optional {
		return "", nil
	}
	return "", fmt.Errorf("unknown instruction placeholder %q", name)
}

func formatFiles(paths []string) string {
	if len(paths) == 0 {
		return "(no files)"
	}
	return strings.Join(paths, "\n")
}

// Validate reports required placeholders that can never resolve. File
// references are checked at render time.
func Validate(template string) error {
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name, optional := parseMatch(match)
		if optional || strings.HasPrefix(name, FilePrefix) || !isIdentifier(name) {
			continue
		}
		switch name {
		case VarAgent, VarDate, VarTodos, VarFiles:
		default:
			return fmt.Errorf("unknown instruction placeholder %q", name)
		}
	}
	return nil
}

// isIdentifier reports whether s starts with a letter or underscore and
// continues with letters, digits or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// HasPlaceholders reports whether the template contains any placeholder
// that Render would replace.
func HasPlaceholders(template string) bool {
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name, _ := parseMatch(match)
		if isIdentifier(name) || (strings.HasPrefix(name, FilePrefix) && len(name) > len(FilePrefix)) {
			return true
		}
	}
	return false
}

// ListPlaceholders returns the placeholder names in the template, in order
// of first appearance.
func ListPlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name, _ := parseMatch(match)
		if !isIdentifier(name) && !strings.HasPrefix(name, FilePrefix) {
			continue
		}
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}
