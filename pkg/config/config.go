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

package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/utils"
)

var validate = validator.New()

type RuntimeConfig struct {
	ScaleControllerOpt ScaleControllerOpt
	RoutingOpt         RoutingOpt
	ExternalScalerOpt  ExternalScalerOpt
	// ScalerAddress is written into the external-push trigger of derived
	// ScaledObjects. It must reach ExternalScalerOpt.BindAddress.
	ScalerAddress string `validate:"required,hostname_port"`
	// DebugMode logs every reconcile and scale decision at info level.
	DebugMode bool
}

// ScaleControllerOpt contains options for the http scale controller.
type ScaleControllerOpt struct {
	// Interval is how often every registered target is reconciled.
	Interval time.Duration `validate:"gt=0"`
	// Workers is the number of goroutines consuming the scale queue.
	Workers int `validate:"min=1,max=64"`
	// DegradedThreshold is the number of consecutive scale failures before a
	// target is reported Degraded.
	DegradedThreshold int `validate:"min=1"`
	// ScaleTimeout bounds one scale API call.
	ScaleTimeout time.Duration `validate:"gt=0"`
}

// RoutingOpt controls the HTTPRoute derived for every HTTPScaledObject.
type RoutingOpt struct {
	GatewayName      string `validate:"required"`
	GatewayNamespace string `validate:"required"`
	// Interceptor* point the route backend at the interceptor proxy service.
	InterceptorService   string `validate:"required"`
	InterceptorNamespace string `validate:"required"`
	InterceptorPort      int32  `validate:"min=1,max=65535"`
}

// ExternalScalerOpt configures the KEDA external scaler gRPC service.
type ExternalScalerOpt struct {
	// BindAddress is where the service listens, empty disables it.
	BindAddress string `validate:"omitempty,hostname_port"`
	// StreamInterval is how often StreamIsActive pushes the activity.
	StreamInterval time.Duration `validate:"gt=0"`
}

// NewRuntimeConfig creates a new RuntimeConfig with default settings.
func NewRuntimeConfig(debugMode bool) RuntimeConfig {
	return RuntimeConfig{
		DebugMode:     debugMode,
		ScalerAddress: "aibrix-http-scaler.aibrix-system:9090",
		ScaleControllerOpt: ScaleControllerOpt{
			Interval:          time.Second,
			Workers:           4,
			DegradedThreshold: 3,
			ScaleTimeout:      10 * time.Second,
		},
		RoutingOpt: RoutingOpt{
			GatewayName:          "aibrix-eg",
			GatewayNamespace:     "aibrix-system",
			InterceptorService:   "aibrix-http-interceptor-proxy",
			InterceptorNamespace: "aibrix-system",
			InterceptorPort:      8080,
		},
		ExternalScalerOpt: ExternalScalerOpt{
			BindAddress:    ":9090",
			StreamInterval: 200 * time.Millisecond,
		},
	}
}

// Validate checks the config against its struct tags.
func (c RuntimeConfig) Validate() error {
	return validate.Struct(c)
}

// InterceptorConfig configures the request interceptor.
type InterceptorConfig struct {
	ProxyAddr string `validate:"required,hostname_port"`
	AdminAddr string `validate:"required,hostname_port"`
	GRPCAddr  string `validate:"required,hostname_port"`
	// ConditionWaitTimeout is how long a request is held waiting for the
	// target to have a ready replica.
	ConditionWaitTimeout time.Duration `validate:"gt=0"`
	// ResponseHeaderTimeout bounds the wait for response headers from a ready backend.
	ResponseHeaderTimeout time.Duration `validate:"gt=0"`
	// DialRetryTimeout bounds dial retries towards a backend that just became ready.
	DialRetryTimeout time.Duration `validate:"gt=0"`
	MaxIdleConns     int           `validate:"min=1"`
	ForceHTTP2       bool
}

// NewInterceptorConfig loads the interceptor config from the environment.
func NewInterceptorConfig(proxyAddr, adminAddr, grpcAddr string) InterceptorConfig {
	return InterceptorConfig{
		ProxyAddr:             proxyAddr,
		AdminAddr:             adminAddr,
		GRPCAddr:              grpcAddr,
		ConditionWaitTimeout:  utils.LoadEnvDuration(constants.EnvConditionWaitTimeout, 20*time.Second),
		ResponseHeaderTimeout: utils.LoadEnvDuration(constants.EnvResponseHeaderTimeout, 500*time.Millisecond),
		DialRetryTimeout:      5 * time.Second,
		MaxIdleConns:          utils.LoadEnvInt(constants.EnvMaxIdleConns, 100),
		ForceHTTP2:            utils.LoadEnvBool(constants.EnvForceHTTP2, false),
	}
}

// Validate checks the config against its struct tags.
func (c InterceptorConfig) Validate() error {
	return validate.Struct(c)
}
