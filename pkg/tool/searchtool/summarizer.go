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

package searchtool

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/errgroup"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/model"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// DateLayout renders the current time in prompts and result files.
const DateLayout = "Jan 2, 2006 15:04:05 (Monday)"

const fallbackSummaryLength = 1000

const summarizePrompt = `You are creating a summary of raw webpage content. The summary will be saved to a file and used by a research agent, so keep the key facts, figures, quotes and dates and drop navigation, ads and boilerplate.

Today's date is %s.

Reply with a JSON object with exactly two fields:
- "filename": a short descriptive file name in snake_case ending in .md
- "summary": the summary, about 25-30%% of the original length

<webpage_content>
%s
</webpage_content>`

// Summary is the condensed form of one page.
type Summary struct {
	Filename string `json:"filename"`
	Summary  string `json:"summary"`
}

// Summarizer condenses raw page content.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (Summary, error)
}

// ModelSummarizer asks an LLM for a JSON summary.
type ModelSummarizer struct {
	Model model.LLM
	Now   func() time.Time
}

// Summarize implements Summarizer. Malformed JSON from the model is
// repaired before decoding.
func (s *ModelSummarizer) Summarize(ctx context.Context, content string) (Summary, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	temp := 0.0
	resp, err := s.Model.GenerateContent(ctx, &model.Request{
		Messages: []state.Message{state.HumanMessage(fmt.Sprintf(summarizePrompt, now().Format(DateLayout), content))},
		Config: &model.GenerateConfig{
			Temperature:      &temp,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize: %w", err)
	}

	raw := strings.TrimSpace(resp.TextContent())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to repair summary JSON: %w", err)
	}

	var out Summary
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return Summary{}, fmt.Errorf("failed to decode summary: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return Summary{}, fmt.Errorf("model returned an empty summary")
	}
	return out, nil
}

// FallbackSummary is used when no summarizer is configured or it fails.
func FallbackSummary(index int, content string) Summary {
	summary := content
	if r := []rune(content); len(r) > fallbackSummaryLength {
		summary = string(r[:fallbackSummaryLength]) + "..."
	}
	return Summary{Filename: fmt.Sprintf("search_result_%d.md", index), Summary: summary}
}

// SummarizeAll summarises contents concurrently, at most limit at a time.
// Each failed item falls back to FallbackSummary. Filenames are sanitised
// and made unique within the batch.
func SummarizeAll(ctx context.Context, s Summarizer, contents []string, limit int) []Summary {
	out := make([]Summary, len(contents))
	if s == nil {
		for i, c := range contents {
			out[i] = FallbackSummary(i, c)
		}
		return uniqueFilenames(out)
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, content := range contents {
		g.Go(func() error {
			sum, err := s.Summarize(ctx, content)
			if err != nil {
				sum = FallbackSummary(i, content)
			}
			if sum.Filename = sanitizeFilename(sum.Filename); sum.Filename == "" {
				sum.Filename = FallbackSummary(i, "").Filename
			}
			out[i] = sum
			return nil
		})
	}
	_ = g.Wait()
	return uniqueFilenames(out)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "_"), "_")
	if name == "" || name == ".md" {
		return ""
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return name
}

func uniqueFilenames(summaries []Summary) []Summary {
	seen := make(map[string]int, len(summaries))
	for i := range summaries {
		name := summaries[i].Filename
		seen[name]++
		if n := seen[name]; n > 1 {
			summaries[i].Filename = fmt.Sprintf("%s_%d.md", strings.TrimSuffix(name, ".md"), n)
		}
	}
	return summaries
}
