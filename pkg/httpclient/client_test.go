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

package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		options  []Option
		validate func(t *testing.T, client *Client)
	}{
		{
			name: "default_configuration",
			validate: func(t *testing.T, client *Client) {
				assert.Equal(t, 3, client.maxRetries)
				assert.Equal(t, 2*time.Second, client.baseDelay)
				assert.Equal(t, 60*time.Second, client.client.Timeout)
				assert.NotNil(t, client.strategyFunc)
				assert.NotNil(t, client.headerParser)
			},
		},
		{
			name:    "custom_max_retries",
			options: []Option{WithMaxRetries(1)},
			validate: func(t *testing.T, client *Client) {
				assert.Equal(t, 1, client.maxRetries)
			},
		},
		{
			name:    "custom_http_client_and_timeout",
			options: []Option{WithHTTPClient(&http.Client{}), WithTimeout(5 * time.Second)},
			validate: func(t *testing.T, client *Client) {
				assert.Equal(t, 5*time.Second, client.client.Timeout)
			},
		},
		{
			name: "custom_retry_strategy",
			options: []Option{WithRetryStrategy(func(int) RetryStrategy {
				return SmartRetry
			})},
			validate: func(t *testing.T, client *Client) {
				assert.Equal(t, SmartRetry, client.strategyFunc(500))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, New(tt.options...))
		})
	}
}

func TestDefaultRetryStrategy(t *testing.T) {
	tests := []struct {
		status int
		want   RetryStrategy
	}{
		{http.StatusTooManyRequests, SmartRetry},
		{http.StatusServiceUnavailable, SmartRetry},
		{http.StatusInternalServerError, ConservativeRetry},
		{http.StatusBadGateway, ConservativeRetry},
		{http.StatusGatewayTimeout, ConservativeRetry},
		{http.StatusRequestTimeout, ConservativeRetry},
		{http.StatusBadRequest, NoRetry},
		{http.StatusUnauthorized, NoRetry},
		{http.StatusNotFound, NoRetry},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryStrategy(tt.status))
		})
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseDelay(time.Millisecond), WithMaxRetries(5))
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(WithBaseDelay(time.Millisecond), WithMaxRetries(2))
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	var retryErr *RetryableError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, http.StatusServiceUnavailable, retryErr.StatusCode)
	assert.True(t, retryErr.IsRetryable())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_NoRetryReturnsResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := New().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = New().Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"bad query"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":42}`))
	}))
	defer server.Close()

	client := New()
	headers := map[string]string{"Authorization": "Bearer key"}

	var out struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, client.DoJSON(context.Background(), http.MethodPost, server.URL+"/ok", headers, map[string]string{"q": "x"}, &out))
	assert.Equal(t, 42, out.Answer)

	err := client.DoJSON(context.Background(), http.MethodPost, server.URL+"/bad", headers, map[string]string{"q": "x"}, &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "bad query")
}

func TestCalculateDelay(t *testing.T) {
	client := New(WithBaseDelay(time.Second))

	assert.Equal(t, 7*time.Second, client.calculateDelay(SmartRetry, 0, RateLimitInfo{RetryAfter: 7 * time.Second}))
	assert.Equal(t, 2*time.Second+200*time.Millisecond, client.calculateDelay(SmartRetry, 1, RateLimitInfo{}))
	assert.Equal(t, time.Second, client.calculateDelay(ConservativeRetry, 0, RateLimitInfo{}))
	assert.Equal(t, time.Duration(0), client.calculateDelay(ConservativeRetry, 2, RateLimitInfo{}))
	assert.Equal(t, time.Duration(0), client.calculateDelay(NoRetry, 0, RateLimitInfo{}))
}

func TestParseRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	h.Set("x-ratelimit-reset", "1700000000")
	h.Set("x-ratelimit-remaining", "4")

	info := ParseRateLimitHeaders(h)
	assert.Equal(t, 12*time.Second, info.RetryAfter)
	assert.Equal(t, int64(1700000000), info.ResetTime)
	assert.Equal(t, 4, info.RequestsRemaining)

	assert.Equal(t, RateLimitInfo{}, ParseRateLimitHeaders(http.Header{}))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-3"))
	assert.Equal(t, 3*time.Second, ParseRetryAfter(" 3 "))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future)
	assert.Greater(t, d, 50*time.Minute)
}

func TestConfigureTLS(t *testing.T) {
	transport, err := ConfigureTLS(&TLSConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)

	_, err = ConfigureTLS(&TLSConfig{CACertificate: "/nonexistent/ca.pem"})
	assert.Error(t, err)

	// A broken TLS config keeps the default transport.
	client := New(WithTLSConfig(&TLSConfig{CACertificate: "/nonexistent/ca.pem"}))
	assert.Nil(t, client.client.Transport)
}
