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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthServerCheck(t *testing.T) {
	var synced atomic.Bool
	s := NewHealthServer(synced.Load)

	tests := []struct {
		service  string
		synced   bool
		expected healthpb.HealthCheckResponse_ServingStatus
	}{
		{LivenessCheckService, false, healthpb.HealthCheckResponse_SERVING},
		{ReadinessCheckService, false, healthpb.HealthCheckResponse_NOT_SERVING},
		{"", false, healthpb.HealthCheckResponse_NOT_SERVING},
		{ReadinessCheckService, true, healthpb.HealthCheckResponse_SERVING},
		{"", true, healthpb.HealthCheckResponse_SERVING},
	}
	for _, tt := range tests {
		synced.Store(tt.synced)
		resp, err := s.Check(context.Background(), &healthpb.HealthCheckRequest{Service: tt.service})
		require.NoError(t, err)
		assert.Equal(t, tt.expected, resp.Status, "service %q synced %v", tt.service, tt.synced)
	}
}

// mockWatchServer collects statuses sent on a health watch stream.
type mockWatchServer struct {
	healthpb.Health_WatchServer
	ctx  context.Context
	sent chan healthpb.HealthCheckResponse_ServingStatus
}

func (m *mockWatchServer) Context() context.Context { return m.ctx }

func (m *mockWatchServer) Send(resp *healthpb.HealthCheckResponse) error {
	m.sent <- resp.Status
	return nil
}

func (m *mockWatchServer) SetHeader(metadata.MD) error { return nil }

func TestHealthServerWatch(t *testing.T) {
	old := healthWatchInterval
	healthWatchInterval = 10 * time.Millisecond
	defer func() { healthWatchInterval = old }()

	var synced atomic.Bool
	s := NewHealthServer(synced.Load)
	ctx, cancel := context.WithCancel(context.Background())
	stream := &mockWatchServer{ctx: ctx, sent: make(chan healthpb.HealthCheckResponse_ServingStatus, 4)}

	done := make(chan error, 1)
	go func() {
		done <- s.Watch(&healthpb.HealthCheckRequest{Service: ReadinessCheckService}, stream)
	}()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, <-stream.sent)
	synced.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, <-stream.sent)

	cancel()
	assert.Error(t, <-done)
}
