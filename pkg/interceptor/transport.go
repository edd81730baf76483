/*
Copyright 2025 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package interceptor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// dialBackoff covers a backend whose pod is ready but whose listener is not
// accepting yet.
var dialBackoff = wait.Backoff{
	Duration: 50 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    8,
	Cap:      time.Second,
}

// NewTransport returns the pooled transport shared by every proxied request.
func NewTransport(cfg config.InterceptorConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   2 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           retryDial(dialer.DialContext, cfg.DialRetryTimeout),
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}
}

// retryDial retries dial with exponential backoff for up to timeout.
func retryDial(dial dialFunc, timeout time.Duration) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var conn net.Conn
		var lastErr error
		attempts := 0
		err := wait.ExponentialBackoffWithContext(ctx, dialBackoff, func(ctx context.Context) (bool, error) {
			attempts++
			c, err := dial(ctx, network, addr)
			if err != nil {
				lastErr = err
				klog.V(5).InfoS("Dial failed, retrying", "address", addr, "attempt", attempts, "err", err)
				return false, nil
			}
			conn = c
			return true, nil
		})
		if err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("failed to dial %s after %d attempts: %w", addr, attempts, lastErr)
			}
			return nil, err
		}
		return conn, nil
	}
}
