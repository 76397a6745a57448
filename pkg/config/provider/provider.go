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

// Package provider abstracts where configuration bytes come from.
package provider

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Type identifies the config source.
type Type string

const (
	TypeFile  Type = "file"
	TypeStdin Type = "stdin"
	TypeBytes Type = "bytes"

	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// Provider abstracts config sources. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Type returns the provider type for logging.
	Type() Type

	// Load reads raw config bytes.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the source changes.
	// Cancel ctx to stop. A nil channel means watching is unsupported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases resources.
	Close() error
}

// ProviderConfig configures provider creation.
type ProviderConfig struct {
	// Path is the config file. "-" reads stdin once. A URL with a
	// consul://, etcd:// or zk:// scheme reads a key from that store,
	// e.g. etcd://10.0.0.1:2379,10.0.0.2:2379/deepagent/config.
	Path string

	// Debounce coalesces file events. Default: 100ms.
	Debounce time.Duration
}

// New creates a Provider for cfg.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Path {
	case "":
		return nil, fmt.Errorf("config path is required")
	case "-":
		return NewBytesProviderFromFile(os.Stdin, TypeStdin)
	}

	remote, ok, err := ParseRemote(cfg.Path)
	if err != nil {
		return nil, err
	}
	if ok {
		switch remote.Type {
		case TypeConsul:
			return NewConsulProvider(remote)
		case TypeEtcd:
			return NewEtcdProvider(remote)
		default:
			return NewZookeeperProvider(remote)
		}
	}

	var opts []FileOption
	if cfg.Debounce > 0 {
		opts = append(opts, WithDebounce(cfg.Debounce))
	}
	return NewFileProvider(cfg.Path, opts...)
}
