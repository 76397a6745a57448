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
	"net/url"
	"strings"
	"time"
)

// remoteRetryDelay is the pause before re-arming a failed remote watch.
const remoteRetryDelay = 5 * time.Second

var defaultEndpoints = map[Type]string{
	TypeConsul:    "localhost:8500",
	TypeEtcd:      "localhost:2379",
	TypeZookeeper: "localhost:2181",
}

// Remote addresses a config document kept in a key-value store.
type Remote struct {
	Type      Type
	Endpoints []string
	Key       string
}

// ParseRemote recognizes consul://, etcd:// and zk:// URLs. ok is false
// for anything else, which callers treat as a file path.
//
// Several endpoints may be given comma separated in the host part. Consul
// keys drop the leading slash; etcd and zookeeper keep it.
func ParseRemote(raw string) (Remote, bool, error) {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return Remote{}, false, nil
	}

	var typ Type
	switch strings.ToLower(scheme) {
	case "consul":
		typ = TypeConsul
	case "etcd":
		typ = TypeEtcd
	case "zk", "zookeeper":
		typ = TypeZookeeper
	default:
		return Remote{}, false, nil
	}

	u, err := url.Parse("remote://" + rest)
	if err != nil {
		return Remote{}, true, fmt.Errorf("invalid %s address %q: %w", typ, raw, err)
	}

	r := Remote{Type: typ, Key: u.Path}
	for _, ep := range strings.Split(u.Host, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			r.Endpoints = append(r.Endpoints, ep)
		}
	}
	if len(r.Endpoints) == 0 {
		r.Endpoints = []string{defaultEndpoints[typ]}
	}

	if typ == TypeConsul {
		r.Key = strings.TrimPrefix(r.Key, "/")
	}
	if strings.Trim(r.Key, "/") == "" {
		return Remote{}, true, fmt.Errorf("%s address %q has no key", typ, raw)
	}
	return r, true, nil
}

// String renders r back as a URL.
func (r Remote) String() string {
	scheme := string(r.Type)
	if r.Type == TypeZookeeper {
		scheme = "zk"
	}
	key := r.Key
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return scheme + "://" + strings.Join(r.Endpoints, ",") + key
}

// signal delivers a change without blocking; one pending signal is enough.
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// backoff waits before retrying a watch. It returns false once ctx is done.
func backoff(ctx context.Context, logger *slog.Logger, remote Remote, err error) bool {
	logger.Warn("Config watch failed, retrying", "source", remote.String(), "error", err, "retry_in", remoteRetryDelay)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(remoteRetryDelay):
		return true
	}
}
