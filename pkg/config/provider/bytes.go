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

package provider

import (
	"context"
	"fmt"
	"io"
)

// BytesProvider serves a fixed document. It never signals changes.
type BytesProvider struct {
	data []byte
	typ  Type
}

// NewBytesProvider returns a provider serving data.
func NewBytesProvider(data []byte) *BytesProvider {
	return &BytesProvider{data: data, typ: TypeBytes}
}

// NewBytesProviderFromFile reads r fully and serves the result.
func NewBytesProviderFromFile(r io.Reader, typ Type) (*BytesProvider, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &BytesProvider{data: data, typ: typ}, nil
}

func (p *BytesProvider) Type() Type { return p.typ }

func (p *BytesProvider) Load(ctx context.Context) ([]byte, error) {
	return p.data, nil
}

func (p *BytesProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	return nil, nil
}

func (p *BytesProvider) Close() error { return nil }

var _ Provider = (*BytesProvider)(nil)
