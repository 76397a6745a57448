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

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const writeFileDescription = `Create a new file or completely overwrite an existing file in the virtual filesystem.

Usage:
- The file_path parameter must be a non-empty path
- The content parameter is the complete file content
- Files are shared with the rest of the run and survive between steps
- Prefer edit_file for small changes to existing files`

// WriteFileArgs defines the parameters for writing a file.
type WriteFileArgs struct {
	Path    string `json:"file_path" jsonschema:"required,description=Path where the file should be written"`
	Content string `json:"content" jsonschema:"required,description=Content to write to the file"`
}

// WriteFileConfig defines configuration for the write_file tool.
type WriteFileConfig struct {
	// MaxFileSize caps the content size in bytes. Zero means unlimited.
	MaxFileSize int
}

// NewWriteFile creates the write_file tool.
func NewWriteFile(cfg *WriteFileConfig) (tool.CallableTool, error) {
	if cfg == nil {
		cfg = &WriteFileConfig{}
	}

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        WriteFileName,
			Description: writeFileDescription,
		},
		func(ctx tool.Context, args WriteFileArgs) (map[string]any, error) {
			update, err := state.WriteFile(args.Path, args.Content)
			if err != nil {
				return nil, err
			}
			tool.AddUpdate(ctx, update)
			return tool.Result(fmt.Sprintf("Updated file %s", args.Path)), nil
		},
		func(args WriteFileArgs) error {
			if cfg.MaxFileSize > 0 && len(args.Content) > cfg.MaxFileSize {
				return &state.ValidationError{
					Field:  "content",
					Reason: fmt.Sprintf("file too large: %d bytes (max: %d)", len(args.Content), cfg.MaxFileSize),
				}
			}
			return nil
		},
	)
}
