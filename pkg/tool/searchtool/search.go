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

// Package searchtool provides the research tools: a web search that
// offloads full results into virtual files, and a reflection tool.
//
// tavily_search keeps the model context small. Every result is summarised,
// written to its own file and only a short listing is returned; the agent
// reads the files it needs with read_file.
package searchtool

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/tool/functiontool"
)

const (
	SearchName = "tavily_search"
	ThinkName  = "think_tool"
)

const searchDescription = `Search the web and save detailed results to files while returning minimal context.

Performs a web search, summarises every result and stores the full content in files for context offloading.
Returns only the essential information needed to decide the next step.`

// SearchArgs are the arguments of tavily_search.
type SearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query to execute"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return,default=1,minimum=1"`
	Topic      Topic  `json:"topic,omitempty" jsonschema:"description=Topic filter,enum=general,enum=news,enum=finance,default=general"`
}

// Config configures tavily_search.
type Config struct {
	// Searcher runs the queries (required).
	Searcher Searcher

	// Summarizer condenses each page. Nil uses FallbackSummary.
	Summarizer Summarizer

	// DefaultMaxResults applies when the model sends none.
	// Default: 1
	DefaultMaxResults int

	// MaxResultsLimit caps what the model may request.
	// Default: 5
	MaxResultsLimit int

	// MaxParallel bounds concurrent summaries.
	// Default: 4
	MaxParallel int

	// Now is the clock used in result files.
	Now func() time.Time

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.DefaultMaxResults <= 0 {
		c.DefaultMaxResults = 1
	}
	if c.MaxResultsLimit <= 0 {
		c.MaxResultsLimit = 5
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewSearch creates the tavily_search tool.
func NewSearch(cfg Config) (tool.CallableTool, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required for %s", SearchName)
	}
	cfg.setDefaults()

	return functiontool.New(
		functiontool.Config{
			Name:        SearchName,
			Description: searchDescription,
			Concurrent:  true,
		},
		func(ctx tool.Context, args SearchArgs) (map[string]any, error) {
			if strings.TrimSpace(args.Query) == "" {
				return nil, &state.ValidationError{Field: "query", Reason: "must not be empty"}
			}
			if args.Topic == "" {
				args.Topic = TopicGeneral
			}
			if !args.Topic.Valid() {
				return nil, &state.ValidationError{
					Field:  "topic",
					Reason: fmt.Sprintf("%q is not one of general, news, finance", args.Topic),
				}
			}
			if args.MaxResults <= 0 {
				args.MaxResults = cfg.DefaultMaxResults
			}
			args.MaxResults = min(args.MaxResults, cfg.MaxResultsLimit)

			resp, err := cfg.Searcher.Search(ctx, SearchRequest{
				Query:             args.Query,
				MaxResults:        args.MaxResults,
				Topic:             args.Topic,
				IncludeRawContent: true,
			})
			if err != nil {
				return nil, err
			}

			contents := make([]string, len(resp.Results))
			for i, r := range resp.Results {
				contents[i] = r.RawContent
			}
			summaries := SummarizeAll(ctx, cfg.Summarizer, contents, cfg.MaxParallel)

			date := cfg.Now().Format(DateLayout)
			files := make(map[string]string, len(summaries))
			names := make([]string, len(summaries))
			lines := make([]string, len(summaries))
			for i, r := range resp.Results {
				sum := summaries[i]
				files[sum.Filename] = FormatResultFile(r, args.Query, date, sum.Summary)
				names[i] = sum.Filename
				lines[i] = fmt.Sprintf("- %s: %s...", sum.Filename, sum.Summary)
			}

			cfg.Logger.Debug("Web search completed", "query", args.Query, "results", len(resp.Results))

			if len(files) > 0 {
				tool.AddUpdate(ctx, state.Update{Files: files})
			}
			return map[string]any{
				tool.ResultKey: FormatListing(args.Query, names, lines),
				"files":        names,
			}, nil
		},
	)
}

// FormatResultFile renders the file stored for one search result.
func FormatResultFile(r SearchResult, query, date, summary string) string {
	raw := r.RawContent
	if raw == "" {
		raw = "No raw content available"
	}
	return fmt.Sprintf(`# Search Result: %s

**URL:** %s
**Query:** %s
**Date:** %s

## Summary
%s

## Raw Content
%s
`, r.Title, r.URL, query, date, summary, raw)
}

// FormatListing renders the short text returned to the model.
func FormatListing(query string, files, lines []string) string {
	return fmt.Sprintf("🔍 Found %d result(s) for '%s':\n\n%s\n\nFiles: %s\n💡 Use read_file() to access full details when needed.",
		len(files), query, strings.Join(lines, "\n"), strings.Join(files, ", "))
}
