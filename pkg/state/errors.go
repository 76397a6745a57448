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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrAmbiguousMatch   = errors.New("ambiguous match")
	ErrNoMatch          = errors.New("no match")
	ErrToolNotPermitted = errors.New("tool not permitted")
	ErrBudgetExceeded   = errors.New("budget exceeded")
)

// ValidationError reports malformed tool arguments.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a reference to a file (or run) that does not exist.
type NotFoundError struct {
	Kind string // "file" when empty
	Path string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "file"
	}
	return fmt.Sprintf("%s '%s' not found", kind, e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousMatchError reports that an edit target occurs more than once.
type AmbiguousMatchError struct {
	Path  string
	Find  string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("string to replace appears %d times in '%s'; provide more context to make it unique or set replace_all", e.Count, e.Path)
}

func (e *AmbiguousMatchError) Is(target error) bool { return target == ErrAmbiguousMatch }

// NoMatchError reports that an edit target does not occur at all.
type NoMatchError struct {
	Path string
	Find string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("string to replace not found in '%s': %q", e.Path, e.Find)
}

func (e *NoMatchError) Is(target error) bool { return target == ErrNoMatch }

// ToolNotPermittedError reports a call to a tool outside the allowed set.
type ToolNotPermittedError struct {
	Tool    string
	Allowed []string
}

func (e *ToolNotPermittedError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("tool '%s' is not permitted; no tools are available", e.Tool)
	}
	return fmt.Sprintf("tool '%s' is not permitted; allowed tools: %s", e.Tool, strings.Join(e.Allowed, ", "))
}

func (e *ToolNotPermittedError) Is(target error) bool { return target == ErrToolNotPermitted }

// BudgetKind names the resource a budget limits.
type BudgetKind string

const (
	BudgetSteps  BudgetKind = "steps"
	BudgetTokens BudgetKind = "tokens"
)

// BudgetExceededError reports that a run used more steps or tokens than allowed.
type BudgetExceededError struct {
	Agent string
	Kind  BudgetKind
	Limit int
	Used  int
}

func (e *BudgetExceededError) Error() string {
	who := ""
	if e.Agent != "" {
		who = e.Agent + ": "
	}
	return fmt.Sprintf("%s%s budget exceeded (used %d, limit %d)", who, e.Kind, e.Used, e.Limit)
}

func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }
