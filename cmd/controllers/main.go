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
	"crypto/tls"
	"flag"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/controller"
	"github.com/vllm-project/aibrix-http-scaler/pkg/features"
	"github.com/vllm-project/aibrix-http-scaler/pkg/interceptor"
	"github.com/vllm-project/aibrix-http-scaler/pkg/kedascaler"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
	"github.com/vllm-project/aibrix-http-scaler/pkg/scaler"
	"github.com/vllm-project/aibrix-http-scaler/pkg/utils"
	apiwebhook "github.com/vllm-project/aibrix-http-scaler/pkg/webhook"
	//+kubebuilder:scaffold:imports
)

const (
	defaultLeaseDuration = 15 * time.Second
	defaultRenewDeadline = 10 * time.Second
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	// The scale controller writes HTTPScaledObject status even when the
	// reconciler is disabled.
	utilruntime.Must(httpv1alpha1.AddToScheme(scheme))

	scheme.AddUnversionedTypes(metav1.SchemeGroupVersion, &metav1.UpdateOptions{}, &metav1.DeleteOptions{}, &metav1.CreateOptions{})
	//+kubebuilder:scaffold:scheme
}

func main() {
	var metricsAddr string
	var enableLeaderElection bool
	var probeAddr string
	var secureMetrics bool
	var enableHTTP2 bool
	var leaderElectionNamespace string
	var leaseDuration time.Duration
	var renewDeadLine time.Duration
	var leaderElectionResourceLock string
	var leaderElectionId string
	var controllers string
	var debugMode bool
	var enableWebhook bool
	var enableInterceptor bool
	var proxyAddr, adminAddr, grpcAddr string

	runtimeConfig := config.NewRuntimeConfig(false)
	opt := &runtimeConfig.ScaleControllerOpt
	routingOpt := &runtimeConfig.RoutingOpt
	scalerOpt := &runtimeConfig.ExternalScalerOpt

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&secureMetrics, "metrics-secure", false,
		"If set the metrics endpoint is served securely")
	flag.BoolVar(&enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics and webhook servers")
	flag.BoolVar(&enableLeaderElection, "enable-leader-election", false, "Whether you need to enable leader election.")
	flag.StringVar(&leaderElectionNamespace, "leader-election-namespace", "aibrix-system",
		"This determines the namespace in which the leader election lease will be created, it will use in-cluster namespace if empty.")
	flag.DurationVar(&leaseDuration, "leader-election-lease-duration", defaultLeaseDuration,
		"The duration that non-leader candidates will wait to force acquire leadership.")
	flag.DurationVar(&renewDeadLine, "leader-election-renew-deadline", defaultRenewDeadline,
		"The duration that the acting leader will retry refreshing leadership before giving up.")
	flag.StringVar(&leaderElectionResourceLock, "leader-election-resource-lock", resourcelock.LeasesResourceLock,
		"The resource lock used for leader election, defaults to \"leases\".")
	flag.StringVar(&leaderElectionId, "leader-election-id", "aibrix-http-scaler-manager",
		"The name of the resource that leader election will use for holding the leader lock.")
	flag.StringVar(&controllers, "controllers", "*", "Comma-separated list of controllers to enable or disable, default value is * which indicates all controllers should be started.")
	flag.BoolVar(&debugMode, "debug-mode", false, "If set, every reconcile and scale decision is logged at info level.")
	flag.BoolVar(&enableWebhook, "enable-webhook", false, "If set, the HTTPScaledObject validating webhook is served.")

	flag.DurationVar(&opt.Interval, "scale-interval", opt.Interval, "How often every scale target is reconciled.")
	flag.IntVar(&opt.Workers, "scale-workers", opt.Workers, "Number of scale controller workers.")
	flag.IntVar(&opt.DegradedThreshold, "degraded-threshold", opt.DegradedThreshold,
		"Consecutive scale failures before a target is reported Degraded.")
	flag.DurationVar(&opt.ScaleTimeout, "scale-timeout", opt.ScaleTimeout, "Timeout of one scale API call.")
	flag.StringVar(&runtimeConfig.ScalerAddress, "scaler-address", runtimeConfig.ScalerAddress,
		"Address written into the external-push trigger of derived ScaledObjects.")
	flag.StringVar(&scalerOpt.BindAddress, "external-scaler-bind-address", scalerOpt.BindAddress,
		"The address the KEDA external scaler gRPC service binds to, empty disables it.")
	flag.DurationVar(&scalerOpt.StreamInterval, "external-scaler-stream-interval", scalerOpt.StreamInterval,
		"How often the external scaler pushes target activity to KEDA.")
	flag.StringVar(&routingOpt.GatewayName, "gateway-name", routingOpt.GatewayName, "Gateway derived HTTPRoutes attach to.")
	flag.StringVar(&routingOpt.GatewayNamespace, "gateway-namespace", routingOpt.GatewayNamespace, "Namespace of the gateway.")
	flag.StringVar(&routingOpt.InterceptorService, "interceptor-service", routingOpt.InterceptorService,
		"Service of the interceptor proxy derived HTTPRoutes point at.")
	flag.StringVar(&routingOpt.InterceptorNamespace, "interceptor-namespace", routingOpt.InterceptorNamespace,
		"Namespace of the interceptor proxy service.")
	var interceptorPort int
	flag.IntVar(&interceptorPort, "interceptor-port", int(routingOpt.InterceptorPort), "Port of the interceptor proxy service.")

	flag.BoolVar(&enableInterceptor, "enable-interceptor", false,
		"If set, the request interceptor runs in this process with an in-memory aggregator instead of redis.")
	flag.StringVar(&proxyAddr, "proxy-bind-address", ":8090", "The address the in-process interceptor proxy binds to.")
	flag.StringVar(&adminAddr, "admin-bind-address", ":8091", "The address the in-process interceptor admin API binds to.")
	flag.StringVar(&grpcAddr, "grpc-bind-address", ":50051", "The address the in-process interceptor gRPC health service binds to.")

	// Initialize the klog
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()
	flag.Parse()

	ctrl.SetLogger(klog.NewKlogr())

	routingOpt.InterceptorPort = int32(interceptorPort)
	runtimeConfig.DebugMode = debugMode
	if err := runtimeConfig.Validate(); err != nil {
		setupLog.Error(err, "invalid runtime configuration")
		os.Exit(1)
	}

	// initialize the controllers
	if err := features.ValidateControllers(controllers); err != nil {
		setupLog.Error(err, "unable to validate the controllers, please type the right controller names through --controllers")
		os.Exit(1)
	}
	features.InitControllers(controllers)

	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancellation and
	// Rapid Reset CVEs. For more information see:
	// - https://github.com/advisories/GHSA-qppj-fm5r-hxr3
	// - https://github.com/advisories/GHSA-4374-p667-p6c8
	disableHTTP2 := func(c *tls.Config) {
		setupLog.Info("disabling http/2")
		c.NextProtos = []string{"http/1.1"}
	}

	tlsOpts := []func(*tls.Config){}
	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress:   metricsAddr,
			SecureServing: secureMetrics,
			TLSOpts:       tlsOpts,
		},
		WebhookServer:              webhook.NewServer(webhook.Options{TLSOpts: tlsOpts}),
		HealthProbeBindAddress:     probeAddr,
		LeaderElection:             enableLeaderElection,
		LeaderElectionID:           leaderElectionId,
		LeaderElectionNamespace:    leaderElectionNamespace,
		LeaderElectionResourceLock: leaderElectionResourceLock,
		LeaseDuration:              &leaseDuration,
		RenewDeadline:              &renewDeadLine,
		// The process exits right after the manager stops.
		LeaderElectionReleaseOnCancel: true,
	})
	if err != nil {
		setupLog.Error(err, "unable to create manager")
		os.Exit(1)
	}

	var aggregator aggregation.RequestAggregator
	var redisClient *redis.Client
	if enableInterceptor {
		aggregator = aggregation.NewMemoryAggregator()
	} else {
		redisClient = utils.GetRedisClient()
		defer func() {
			if err := redisClient.Close(); err != nil {
				klog.Warningf("Error closing Redis client: %v", err)
			}
		}()
		aggregator = aggregation.NewRedisAggregator(redisClient)
	}

	var registry scaler.TargetRegistry
	var scaleController *scaler.Controller
	if features.IsControllerEnabled(features.ScaleController) {
		scaleController = scaler.NewController(mgr.GetClient(), scaler.NewWorkloadScale(mgr.GetClient()), aggregator,
			mgr.GetEventRecorderFor("http-scale-controller"), runtimeConfig.ScaleControllerOpt)
		if err := mgr.Add(scaleController); err != nil {
			setupLog.Error(err, "unable to add scale controller")
			os.Exit(1)
		}
		if redisClient != nil {
			if err := mgr.Add(scaler.NewRedisSubscriber(redisClient, scaleController)); err != nil {
				setupLog.Error(err, "unable to add scale-up subscriber")
				os.Exit(1)
			}
		}
		registry = scaleController
	}

	if enableInterceptor {
		if scaleController == nil {
			setupLog.Error(nil, "the in-process interceptor requires the scale controller", "controller", features.ScaleController)
			os.Exit(1)
		}
		if err := setupInterceptor(mgr, config.NewInterceptorConfig(proxyAddr, adminAddr, grpcAddr), aggregator, scaleController); err != nil {
			setupLog.Error(err, "unable to set up interceptor")
			os.Exit(1)
		}
	}

	if scalerOpt.BindAddress != "" {
		externalScaler := kedascaler.NewServer(mgr.GetClient(), aggregator, scalerOpt.StreamInterval)
		if err := mgr.Add(kedascaler.NewRunnable(scalerOpt.BindAddress, externalScaler)); err != nil {
			setupLog.Error(err, "unable to add external scaler")
			os.Exit(1)
		}
	}

	// Kind controller registration is encapsulated inside the pkg/controller/controller.go
	// So here we can use more clean registration flow and there's no need to change logics in future.
	if err := controller.Initialize(mgr); err != nil {
		setupLog.Error(err, "unable to initialize controllers")
		os.Exit(1)
	}
	if err := controller.SetupWithManager(mgr, runtimeConfig, registry); err != nil {
		setupLog.Error(err, "unable to setup controller")
		os.Exit(1)
	}

	if enableWebhook {
		if err := apiwebhook.SetupHTTPScaledObjectWebhookWithManager(mgr); err != nil {
			setupLog.Error(err, "unable to create webhook", "webhook", "HTTPScaledObject")
			os.Exit(1)
		}
	}
	//+kubebuilder:scaffold:builder

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// setupInterceptor serves the proxy from the manager process. Scale-up
// signals go straight to the scale controller.
func setupInterceptor(mgr manager.Manager, cfg config.InterceptorConfig, aggregator aggregation.RequestAggregator, signaler scaler.ScaleUpSignaler) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	table := routing.NewTable()
	watcher := interceptor.NewDeploymentWatcher()
	if err := watcher.Watch(context.Background(), mgr.GetCache()); err != nil {
		return err
	}
	if err := mgr.Add(interceptor.NewSyncer(mgr.GetCache(), table, aggregator)); err != nil {
		return err
	}

	proxy := interceptor.NewProxy(table, aggregator, signaler, watcher, interceptor.NewTransport(cfg), cfg.ConditionWaitTimeout)
	admin := interceptor.NewAdminRouter(table, aggregator, watcher)
	return mgr.Add(interceptor.NewServer(cfg, proxy, admin, table))
}
