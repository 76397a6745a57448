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
	"errors"
	"fmt"
	"log/slog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdProvider reads a single etcd key and watches it.
type EtcdProvider struct {
	remote Remote
	client *clientv3.Client
	logger *slog.Logger
}

// NewEtcdProvider creates a client for remote's endpoints. The connection
// is established lazily.
func NewEtcdProvider(remote Remote) (*EtcdProvider, error) {
	client, err := clientv3.New(clientv3.Config{Endpoints: remote.Endpoints})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &EtcdProvider{remote: remote, client: client, logger: slog.Default()}, nil
}

func (p *EtcdProvider) Type() Type { return TypeEtcd }

// Load fetches the current value.
func (p *EtcdProvider) Load(ctx context.Context) ([]byte, error) {
	resp, err := p.client.Get(ctx, p.remote.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.remote, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("config key not found: %s", p.remote)
	}
	return resp.Kvs[0].Value, nil
}

// Watch signals on every put or delete of the key.
func (p *EtcdProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for ctx.Err() == nil {
			for resp := range p.client.Watch(ctx, p.remote.Key) {
				if err := resp.Err(); err != nil {
					p.logger.Warn("Config watch error", "source", p.remote.String(), "error", err)
					continue
				}
				if len(resp.Events) > 0 {
					p.logger.Debug("Config key changed", "source", p.remote.String())
					signal(ch)
				}
			}
			// The watch channel closes on cancellation or a compacted revision.
			if ctx.Err() != nil || !backoff(ctx, p.logger, p.remote, fmt.Errorf("watch channel closed")) {
				return
			}
		}
	}()

	p.logger.Info("Watching config key", "source", p.remote.String())
	return ch, nil
}

// Close closes the client.
func (p *EtcdProvider) Close() error {
	if err := p.client.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var _ Provider = (*EtcdProvider)(nil)
