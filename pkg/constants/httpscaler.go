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

package constants

// Label and annotation keys used by the http scaler.
// The format `resource.http.keda.sh/attribute` is the standard.

const (
	// HTTPScaledObjectLabelName marks objects derived from an HTTPScaledObject.
	// Example: "httpscaledobject.http.keda.sh/name": "t1"
	HTTPScaledObjectLabelName = "httpscaledobject.http.keda.sh/name"

	// ManagedByLabel identifies the controller owning derived objects.
	ManagedByLabel = "app.kubernetes.io/managed-by"
	ManagedByValue = "aibrix-http-scaler"

	// KedaPausedAnnotation stops the keda operator from acting on a derived
	// ScaledObject while the http scale controller owns the replica count.
	KedaPausedAnnotation = "autoscaling.keda.sh/paused"

	// HTTPScaledObjectFinalizer guards teardown of derived objects.
	HTTPScaledObjectFinalizer = "httpscaledobject.http.keda.sh"
)

// Metadata keys of the external-push trigger of derived ScaledObjects.
const (
	TriggerScalerAddressKey    = "scalerAddress"
	TriggerHostsKey            = "hosts"
	TriggerHTTPScaledObjectKey = "httpScaledObject"
)

const (
	// ColdStartHeader is set on responses served after the target was scaled from zero.
	ColdStartHeader = "X-Aibrix-Cold-Start"
	// RequestIDHeader carries the request id, generated when absent.
	RequestIDHeader = "X-Request-Id"
)

const (
	// ScaleUpChannel is the redis pub/sub channel interceptors signal scale-ups on.
	ScaleUpChannel = "aibrix:http-scaler:scale-up"
	// AggregatorKeyPrefix prefixes every redis key written by the request aggregator.
	AggregatorKeyPrefix = "aibrix:http-scaler"
)

// Environment variables read by the interceptor and the controller manager.
const (
	EnvConditionWaitTimeout  = "KEDA_CONDITION_WAIT_TIMEOUT"
	EnvResponseHeaderTimeout = "KEDA_RESPONSE_HEADER_TIMEOUT"
	EnvMaxIdleConns          = "KEDA_HTTP_MAX_IDLE_CONNS"
	EnvForceHTTP2            = "KEDA_HTTP_FORCE_HTTP2"
	EnvRedisHost             = "REDIS_HOST"
	EnvRedisPort             = "REDIS_PORT"
	EnvRedisPassword         = "REDIS_PASSWORD"
)
