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
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const zkSessionTimeout = 10 * time.Second

// ZookeeperProvider reads a znode and re-arms a data watch after each event.
type ZookeeperProvider struct {
	remote Remote
	logger *slog.Logger

	mu   sync.Mutex
	conn *zk.Conn
}

// NewZookeeperProvider validates remote. The session is opened on first use.
func NewZookeeperProvider(remote Remote) (*ZookeeperProvider, error) {
	if len(remote.Endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if remote.Key == "" || remote.Key[0] != '/' {
		return nil, fmt.Errorf("zookeeper path must be absolute: %q", remote.Key)
	}
	return &ZookeeperProvider{remote: remote, logger: slog.Default()}, nil
}

func (p *ZookeeperProvider) Type() Type { return TypeZookeeper }

func (p *ZookeeperProvider) connect() (*zk.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	conn, _, err := zk.Connect(p.remote.Endpoints, zkSessionTimeout, zk.WithLogger(zkLogger{p.logger}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// Load reads the znode data.
func (p *ZookeeperProvider) Load(ctx context.Context) ([]byte, error) {
	conn, err := p.connect()
	if err != nil {
		return nil, err
	}
	data, _, err := conn.Get(p.remote.Key)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, fmt.Errorf("config key not found: %s", p.remote)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.remote, err)
	}
	return data, nil
}

// Watch signals when the znode changes, is deleted or is created again.
func (p *ZookeeperProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	conn, err := p.connect()
	if err != nil {
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for ctx.Err() == nil {
			events, err := p.arm(conn)
			if err != nil {
				if !backoff(ctx, p.logger, p.remote, err) {
					return
				}
				continue
			}

			var event zk.Event
			select {
			case <-ctx.Done():
				return
			case event = <-events:
			}

			switch event.Type {
			case zk.EventNodeDataChanged, zk.EventNodeDeleted, zk.EventNodeCreated:
				p.logger.Debug("Config key changed", "source", p.remote.String(), "event", event.Type.String())
				signal(ch)
			case zk.EventNotWatching:
				if !backoff(ctx, p.logger, p.remote, fmt.Errorf("watch lost: %v", event.Err)) {
					return
				}
			}
		}
	}()

	p.logger.Info("Watching config key", "source", p.remote.String())
	return ch, nil
}

// arm sets a data watch, or an existence watch while the node is missing.
func (p *ZookeeperProvider) arm(conn *zk.Conn) (<-chan zk.Event, error) {
	_, _, events, err := conn.GetW(p.remote.Key)
	if errors.Is(err, zk.ErrNoNode) {
		_, _, events, err = conn.ExistsW(p.remote.Key)
	}
	return events, err
}

// Close ends the session.
func (p *ZookeeperProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

type zkLogger struct {
	logger *slog.Logger
}

func (l zkLogger) Printf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "zookeeper")
}

var _ Provider = (*ZookeeperProvider)(nil)
