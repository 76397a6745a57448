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

package filetool

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const defaultMaxDiffLines = 40

const editFileDescription = `Perform exact string replacement in a file of the virtual filesystem.

Usage:
- You must read the file with read_file before editing it
- old_string must match the file content exactly, including whitespace
- The edit fails if old_string is not found
- The edit fails if old_string occurs more than once, unless replace_all is true
- Provide more surrounding context to make old_string unique`

// EditFileArgs defines the parameters for edit_file.
type EditFileArgs struct {
	Path       string `json:"file_path" jsonschema:"required,description=Path of the file to edit"`
	OldString  string `json:"old_string" jsonschema:"required,description=Exact text to replace (must be unique unless replace_all=true)"`
	NewString  string `json:"new_string" jsonschema:"required,description=Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence,default=false"`
}

// EditFileConfig defines configuration for the edit_file tool.
type EditFileConfig struct {
	ShowDiff     bool
	MaxDiffLines int

	// MaxFileSize caps the edited file size in bytes. Zero means unlimited.
	MaxFileSize int
}

// NewEditFile creates the edit_file tool.
func NewEditFile(cfg *EditFileConfig) (tool.CallableTool, error) {
	if cfg == nil {
		cfg = &EditFileConfig{ShowDiff: true}
	}
	if cfg.MaxDiffLines <= 0 {
		cfg.MaxDiffLines = defaultMaxDiffLines
	}

	return functiontool.New(
		functiontool.Config{
			Name:        EditFileName,
			Description: editFileDescription,
		},
		func(ctx tool.Context, args EditFileArgs) (map[string]any, error) {
			update, res, err := state.EditFile(ctx.State(), args.Path, args.OldString, args.NewString, args.ReplaceAll)
			if err != nil {
				return nil, err
			}
			if cfg.MaxFileSize > 0 && len(res.After) > cfg.MaxFileSize {
				return nil, &state.ValidationError{
					Field:  "new_string",
					Reason: fmt.Sprintf("file too large after edit: %d bytes (max: %d)", len(res.After), cfg.MaxFileSize),
				}
			}
			tool.AddUpdate(ctx, update)

			var message strings.Builder
			fmt.Fprintf(&message, "Successfully replaced %d instance(s) of the string in '%s'", res.Replacements, res.Path)
			if cfg.ShowDiff {
				if diff := LineDiff(res.Before, res.After, cfg.MaxDiffLines); diff != "" {
					message.WriteString("\n\n")
					message.WriteString(diff)
				}
			}
			return tool.Result(message.String()), nil
		},
	)
}

// LineDiff renders the changed lines between before and after, prefixed
// with "- " and "+ ". Output is capped at maxLines lines.
func LineDiff(before, after string, maxLines int) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for _, line := range state.SplitLines(d.Text) {
			out = append(out, prefix+state.TrimLineEnding(line))
		}
	}

	if maxLines > 0 && len(out) > maxLines {
		hidden := len(out) - maxLines
		out = append(out[:maxLines], fmt.Sprintf("... %d more changed line(s)", hidden))
	}
	return strings.Join(out, "\n")
}
