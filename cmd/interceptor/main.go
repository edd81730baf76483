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

package main

import (
	"context"
	"flag"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/interceptor"
	"github.com/vllm-project/aibrix-http-scaler/pkg/metrics"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
	"github.com/vllm-project/aibrix-http-scaler/pkg/scaler"
	"github.com/vllm-project/aibrix-http-scaler/pkg/utils"
)

var (
	proxyAddr   string
	adminAddr   string
	grpcAddr    string
	metricsAddr string
	namespace   string
)

func main() {
	flag.StringVar(&proxyAddr, "proxy-bind-address", ":8080", "The address the proxy binds to.")
	flag.StringVar(&adminAddr, "admin-bind-address", ":9090", "The address the admin API binds to.")
	flag.StringVar(&grpcAddr, "grpc-bind-address", ":50051", "The address the gRPC health service binds to.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8081", "The address the metric endpoint binds to.")
	flag.StringVar(&namespace, "watch-namespace", "", "Only route HTTPScaledObjects of this namespace, all namespaces if empty.")
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()
	flag.Parse()

	ctrl.SetLogger(klog.NewKlogr())

	cfg := config.NewInterceptorConfig(proxyAddr, adminAddr, grpcAddr)
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid interceptor configuration: %v", err)
	}

	redisClient := utils.GetRedisClient()
	defer func() {
		if err := redisClient.Close(); err != nil {
			klog.Warningf("Error closing Redis client: %v", err)
		}
	}()

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(httpv1alpha1.AddToScheme(scheme))

	cacheOpts := cache.Options{
		ByObject: map[client.Object]cache.ByObject{
			&appsv1.Deployment{}:              {},
			&httpv1alpha1.HTTPScaledObject{}: {},
		},
	}
	if namespace != "" {
		cacheOpts.DefaultNamespaces = map[string]cache.Config{namespace: {}}
	}

	// The manager only hosts the informers and runnables, its own metrics
	// and probe endpoints are replaced by the admin API.
	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Cache:                  cacheOpts,
		Metrics:                metricsserver.Options{BindAddress: "0"},
		HealthProbeBindAddress: "0",
	})
	if err != nil {
		klog.Fatalf("Error creating manager: %v", err)
	}

	aggregator := aggregation.NewRedisAggregator(redisClient)
	table := routing.NewTable()
	watcher := interceptor.NewDeploymentWatcher()
	if err := watcher.Watch(context.Background(), mgr.GetCache()); err != nil {
		klog.Fatalf("Error watching deployments: %v", err)
	}
	if err := mgr.Add(interceptor.NewSyncer(mgr.GetCache(), table, aggregator)); err != nil {
		klog.Fatalf("Error adding routing table syncer: %v", err)
	}

	proxy := interceptor.NewProxy(table, aggregator, scaler.NewRedisSignaler(redisClient), watcher,
		interceptor.NewTransport(cfg), cfg.ConditionWaitTimeout)
	admin := interceptor.NewAdminRouter(table, aggregator, watcher)
	if err := mgr.Add(interceptor.NewServer(cfg, proxy, admin, table)); err != nil {
		klog.Fatalf("Error adding interceptor server: %v", err)
	}

	metricsServer := metrics.NewServer(metricsAddr, ctrlmetrics.Registry)
	if err := metricsServer.Start(); err != nil {
		klog.Fatalf("Failed to start metrics server: %v", err)
	}
	defer func() {
		if err := metricsServer.Stop(); err != nil {
			klog.Warningf("Error stopping metrics server: %v", err)
		}
	}()

	klog.InfoS("Starting interceptor", "proxy", proxyAddr, "admin", adminAddr, "grpc", grpcAddr)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		klog.ErrorS(err, "Interceptor stopped with error")
	}
}
