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
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
)

const shutdownTimeout = 10 * time.Second

// Server runs the proxy, the admin API and the gRPC health service.
type Server struct {
	cfg    config.InterceptorConfig
	proxy  *Proxy
	admin  http.Handler
	health *HealthServer
}

func NewServer(cfg config.InterceptorConfig, proxy *Proxy, admin http.Handler, table *routing.Table) *Server {
	return &Server{
		cfg:    cfg,
		proxy:  proxy,
		admin:  admin,
		health: NewHealthServer(table.HasSynced),
	}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (s *Server) NeedLeaderElection() bool {
	return false
}

// Start serves until ctx is done, then releases held requests and shuts the
// listeners down.
func (s *Server) Start(ctx context.Context) error {
	proxyServer := &http.Server{Addr: s.cfg.ProxyAddr, Handler: s.proxy}
	adminServer := &http.Server{Addr: s.cfg.AdminAddr, Handler: s.admin}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)
	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 3)
	serve := func(name string, srv *http.Server) {
		klog.InfoS("Starting server", "server", name, "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("proxy", proxyServer)
	go serve("admin", adminServer)
	go func() {
		klog.InfoS("Starting server", "server", "grpc health", "address", s.cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc health server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		klog.ErrorS(runErr, "Interceptor server failed")
	}

	klog.InfoS("Shutting down interceptor")
	s.proxy.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := proxyServer.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "Failed to shut down proxy server")
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "Failed to shut down admin server")
	}
	grpcServer.GracefulStop()
	return runErr
}
