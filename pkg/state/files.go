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
	"maps"
	"slices"
	"strings"
)

// Ls returns every path in the file store, sorted.
func Ls(s AgentState) []string {
	paths := slices.Collect(maps.Keys(s.Files))
	slices.Sort(paths)
	if paths == nil {
		paths = []string{}
	}
	return paths
}

// SplitLines splits content into lines, keeping each line's terminator so
// that joining the result yields the original content.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// TrimLineEnding drops a trailing "\n" or "\r\n" from a line.
func TrimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// CountLines returns the number of lines in content.
func CountLines(content string) int {
	return len(SplitLines(content))
}

// ReadFile returns up to limit lines of the file at path, starting at line
// offset (0-based). A limit <= 0 reads to the end. An offset past the end of
// the file yields an empty string.
func ReadFile(s AgentState, path string, offset, limit int) (string, error) {
	content, ok := s.Files[path]
	if !ok {
		return "", &NotFoundError{Path: path}
	}
	if offset < 0 {
		return "", &ValidationError{Field: "offset", Reason: fmt.Sprintf("must be non-negative, got %d", offset)}
	}
	if offset == 0 && limit <= 0 {
		return content, nil
	}

	lines := SplitLines(content)
	if offset >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return strings.Join(lines[offset:end], ""), nil
}

// WriteFile returns an update that creates or overwrites the file at path.
func WriteFile(path, content string) (Update, error) {
	if strings.TrimSpace(path) == "" {
		return Update{}, &ValidationError{Field: "file_path", Reason: "must not be empty"}
	}
	return PutFile(path, content), nil
}

// EditResult describes a successful edit.
type EditResult struct {
	Path         string
	Before       string
	After        string
	Replacements int
}

// EditFile replaces find with replace in the file at path. Without
// replaceAll the target must occur exactly once.
func EditFile(s AgentState, path, find, replace string, replaceAll bool) (Update, EditResult, error) {
	content, ok := s.Files[path]
	if !ok {
		return Update{}, EditResult{}, &NotFoundError{Path: path}
	}
	if find == "" {
		return Update{}, EditResult{}, &ValidationError{Field: "old_string", Reason: "must not be empty"}
	}

	count := strings.Count(content, find)
	switch {
	case count == 0:
		return Update{}, EditResult{}, &NoMatchError{Path: path, Find: find}
	case count > 1 && !replaceAll:
		return Update{}, EditResult{}, &AmbiguousMatchError{Path: path, Find: find, Count: count}
	}

	var updated string
	replaced := 1
	if replaceAll {
		updated = strings.ReplaceAll(content, find, replace)
		replaced = count
	} else {
		updated = strings.Replace(content, find, replace, 1)
	}

	return PutFile(path, updated), EditResult{
		Path:         path,
		Before:       content,
		After:        updated,
		Replacements: replaced,
	}, nil
}

// Diff returns the paths in after whose content is new or different
// compared to before, with their content in after.
func Diff(before, after map[string]string) map[string]string {
	delta := make(map[string]string)
	for path, content := range after {
		if prev, ok := before[path]; !ok || prev != content {
			delta[path] = content
		}
	}
	return delta
}
