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

// Package utils provides token counting and filesystem helpers.
package utils

import (
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

const (
	// tokensPerMessage approximates <|start|>role|message<|end|>.
	tokensPerMessage = 3

	defaultCacheSize = 4096
)

// TokenCounter counts tokens for budget accounting. Without an encoding it
// estimates four characters per token.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
	cache    *lru.Cache[string, int]
	mu       sync.Mutex
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for a specific model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoding, err := encodingFor(model)
	if err != nil {
		return nil, err
	}
	return newCounter(model, encoding), nil
}

// NewEstimator creates a counter that only estimates.
func NewEstimator(model string) *TokenCounter {
	return newCounter(model, nil)
}

// NewTokenCounterOrEstimate returns an accurate counter when an encoding is
// available and an estimator otherwise.
func NewTokenCounterOrEstimate(model string) *TokenCounter {
	tc, err := NewTokenCounter(model)
	if err != nil {
		return NewEstimator(model)
	}
	return tc
}

func newCounter(model string, encoding *tiktoken.Tiktoken) *TokenCounter {
	cache, _ := lru.New[string, int](defaultCacheSize)
	return &TokenCounter{
		encoding: encoding,
		model:    model,
		cache:    cache,
	}
}

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()
	if exists {
		return cached, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(GetEncodingForModel(model))
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()
	return encoding, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if tc == nil || tc.encoding == nil {
		return EstimateTokens(text)
	}

	if n, ok := tc.cache.Get(text); ok {
		return n
	}

	// Tiktoken encoders are not safe for concurrent use.
	tc.mu.Lock()
	n := len(tc.encoding.Encode(text, nil, nil))
	tc.mu.Unlock()

	tc.cache.Add(text, n)
	return n
}

// CountMessage counts one message including role overhead and tool calls.
func (tc *TokenCounter) CountMessage(msg state.Message) int {
	total := tokensPerMessage + tc.Count(string(msg.Role)) + tc.Count(msg.Content)
	if msg.Name != "" {
		total += tc.Count(msg.Name)
	}
	for _, call := range msg.ToolCalls {
		total += tc.Count(call.Name)
		if len(call.Args) > 0 {
			if data, err := json.Marshal(call.Args); err == nil {
				total += tc.Count(string(data))
			}
		}
	}
	return total
}

// CountMessages counts a conversation. Every reply is primed with
// <|start|>assistant<|message|>, which adds three tokens.
func (tc *TokenCounter) CountMessages(messages []state.Message) int {
	total := 0
	for _, msg := range messages {
		total += tc.CountMessage(msg)
	}
	return total + tokensPerMessage
}

// IsEstimate reports whether counts are estimated.
func (tc *TokenCounter) IsEstimate() bool {
	return tc == nil || tc.encoding == nil
}

// GetModel returns the model name this counter is configured for.
func (tc *TokenCounter) GetModel() string {
	return tc.model
}

// EstimateTokens estimates four characters per token, rounding up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// GetEncodingForModel returns the appropriate encoding name for a model.
// Non-OpenAI models are approximated with cl100k_base.
func GetEncodingForModel(model string) string {
	encodingMap := map[string]string{
		"gpt-4o":      "o200k_base",
		"gpt-4o-mini": "o200k_base",
		"gpt-4":       "cl100k_base",
		"gpt-3.5":     "cl100k_base",
		"claude":      "cl100k_base",
		"gemini":      "cl100k_base",
	}

	if encoding, exists := encodingMap[model]; exists {
		return encoding
	}
	for _, prefix := range []string{"gpt-4o", "gpt-4", "gpt-3.5", "claude", "gemini"} {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return encodingMap[prefix]
		}
	}
	return "cl100k_base"
}
