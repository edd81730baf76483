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


package kedascaler

import (
	"context"
	"fmt"
	"net"

	"github.com/kedacore/keda/v2/pkg/scalers/externalscaler"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"
)

// Runnable serves Server over gRPC for the lifetime of the manager.
type Runnable struct {
	addr   string
	server *Server
}

func NewRunnable(addr string, server *Server) *Runnable {
	return &Runnable{addr: addr, server: server}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable. Every
// replica answers KEDA from the shared aggregator.
func (r *Runnable) NeedLeaderElection() bool {
	return false
}

func (r *Runnable) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.addr, err)
	}
	return r.serve(ctx, lis)
}

func (r *Runnable) serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	externalscaler.RegisterExternalScalerServer(grpcServer, r.server)

	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Starting server", "server", "external scaler", "address", lis.Addr().String())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		klog.InfoS("Shutting down external scaler")
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("external scaler server: %w", err)
	}
}
