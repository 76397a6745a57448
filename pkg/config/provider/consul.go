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
	"log/slog"

	"github.com/hashicorp/consul/api"
)

// ConsulProvider reads a Consul KV entry and watches it with blocking
// queries.
type ConsulProvider struct {
	remote Remote
	client *api.Client
	logger *slog.Logger
}

// NewConsulProvider creates a client for the first endpoint.
// No request is made until Load.
func NewConsulProvider(remote Remote) (*ConsulProvider, error) {
	cfg := api.DefaultConfig()
	if len(remote.Endpoints) > 0 {
		cfg.Address = remote.Endpoints[0]
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return &ConsulProvider{remote: remote, client: client, logger: slog.Default()}, nil
}

func (p *ConsulProvider) Type() Type { return TypeConsul }

// Load fetches the current value.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := p.client.KV().Get(p.remote.Key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.remote, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("config key not found: %s", p.remote)
	}
	return pair.Value, nil
}

// Watch long-polls the key and signals whenever its modify index moves.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)

		var index uint64
		for ctx.Err() == nil {
			opts := (&api.QueryOptions{WaitIndex: index}).WithContext(ctx)
			_, meta, err := p.client.KV().Get(p.remote.Key, opts)
			if err != nil {
				if ctx.Err() != nil || !backoff(ctx, p.logger, p.remote, err) {
					return
				}
				continue
			}
			if index != 0 && meta.LastIndex != index {
				p.logger.Debug("Config key changed", "source", p.remote.String())
				signal(ch)
			}
			// A reset index (e.g. after a snapshot restore) restarts from zero.
			if meta.LastIndex < index {
				index = 0
				continue
			}
			index = meta.LastIndex
		}
	}()

	p.logger.Info("Watching config key", "source", p.remote.String())
	return ch, nil
}

func (p *ConsulProvider) Close() error { return nil }

var _ Provider = (*ConsulProvider)(nil)
