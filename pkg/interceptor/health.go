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
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

const (
	LivenessCheckService  = "liveness"
	ReadinessCheckService = "readiness"
)

var healthWatchInterval = 5 * time.Second

// HealthServer implements grpc.health.v1. Liveness is always SERVING,
// readiness and every other service follow the routing table sync.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	synced func() bool
}

func NewHealthServer(synced func() bool) *HealthServer {
	return &HealthServer{synced: synced}
}

func (s *HealthServer) servingStatus(service string) healthpb.HealthCheckResponse_ServingStatus {
	if service == LivenessCheckService || s.synced() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *HealthServer) Check(_ context.Context, in *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	st := s.servingStatus(in.Service)
	klog.V(6).InfoS("Health check", "service", in.Service, "status", st.String())
	return &healthpb.HealthCheckResponse{Status: st}, nil
}

// Watch sends the current status and every change of it until the stream ends.
func (s *HealthServer) Watch(in *healthpb.HealthCheckRequest, stream healthpb.Health_WatchServer) error {
	ticker := time.NewTicker(healthWatchInterval)
	defer ticker.Stop()

	var lastSent healthpb.HealthCheckResponse_ServingStatus = -1
	for {
		if st := s.servingStatus(in.Service); st != lastSent {
			if err := stream.Send(&healthpb.HealthCheckResponse{Status: st}); err != nil {
				klog.ErrorS(err, "Failed to send health status", "service", in.Service)
				return status.Error(codes.Canceled, "Stream has ended.")
			}
			lastSent = st
		}
		select {
		case <-ticker.C:
		case <-stream.Context().Done():
			klog.V(6).InfoS("Health watch stream done", "service", in.Service)
			return status.Error(codes.Canceled, "Stream has ended.")
		}
	}
}
