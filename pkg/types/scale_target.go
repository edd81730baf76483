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

package types

import (
	"fmt"
	"net"
	"strings"
	"time"

	k8stypes "k8s.io/apimachinery/pkg/types"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
)

const (
	DefaultMinReplicas           int32 = 0
	DefaultMaxReplicas           int32 = 100
	DefaultTargetPendingRequests int32 = 100
	DefaultScaledownPeriod             = 300 * time.Second
	DefaultWindow                      = time.Minute
	DefaultGranularity                 = time.Second
)

// MetricType selects the load signal a target is scaled on.
type MetricType string

const (
	MetricConcurrency MetricType = "concurrency"
	MetricRequestRate MetricType = "requestRate"
)

// ScaleTarget is the immutable view of one HTTPScaledObject shared by the
// interceptor, the aggregator and the scale controller. Updates of the
// resource produce a new value, never an in-place mutation.
type ScaleTarget struct {
	// Key identifies the HTTPScaledObject the target was built from.
	Key        k8stypes.NamespacedName
	Host       string
	Deployment string
	Service    string
	Port       int32

	MinReplicas int32
	MaxReplicas int32
	// TargetValue is the load one replica is expected to absorb, in-flight
	// requests for concurrency and requests per second for request rate.
	TargetValue     int32
	Metric          MetricType
	Window          time.Duration
	Granularity     time.Duration
	ScaledownPeriod time.Duration
	// ConditionWait overrides the interceptor hold timeout when non-zero.
	ConditionWait time.Duration

	// CreationTimestamp orders HTTPScaledObjects claiming the same host.
	CreationTimestamp time.Time
}

// DeploymentKey returns the namespaced name of the scaled Deployment.
func (t ScaleTarget) DeploymentKey() k8stypes.NamespacedName {
	return k8stypes.NamespacedName{Namespace: t.Key.Namespace, Name: t.Deployment}
}

// String returns the aggregator key of the target.
func (t ScaleTarget) String() string {
	return t.Key.String()
}

// UpstreamHost returns the in-cluster service address of the target.
func (t ScaleTarget) UpstreamHost() string {
	return net.JoinHostPort(fmt.Sprintf("%s.%s", t.Service, t.Key.Namespace), fmt.Sprint(t.Port))
}

// NewScaleTarget converts an HTTPScaledObject into a ScaleTarget with
// defaults applied.
func NewScaleTarget(hso *httpv1alpha1.HTTPScaledObject) ScaleTarget {
	spec := hso.Spec
	t := ScaleTarget{
		Key:               k8stypes.NamespacedName{Namespace: hso.Namespace, Name: hso.Name},
		Host:              NormalizeHost(spec.Host),
		Deployment:        spec.ScaleTargetRef.Deployment,
		Service:           spec.ScaleTargetRef.Service,
		Port:              spec.ScaleTargetRef.Port,
		MinReplicas:       DefaultMinReplicas,
		MaxReplicas:       DefaultMaxReplicas,
		TargetValue:       DefaultTargetPendingRequests,
		Metric:            MetricConcurrency,
		Window:            DefaultWindow,
		Granularity:       DefaultGranularity,
		ScaledownPeriod:   DefaultScaledownPeriod,
		CreationTimestamp: hso.CreationTimestamp.Time,
	}

	if r := spec.Replicas; r != nil {
		if r.Min != nil {
			t.MinReplicas = *r.Min
		}
		if r.Max != nil {
			t.MaxReplicas = *r.Max
		}
	}
	if spec.TargetPendingRequests != nil && *spec.TargetPendingRequests > 0 {
		t.TargetValue = *spec.TargetPendingRequests
	}
	if spec.ScaledownPeriod != nil && *spec.ScaledownPeriod >= 0 {
		t.ScaledownPeriod = time.Duration(*spec.ScaledownPeriod) * time.Second
	}
	if m := spec.ScalingMetric; m != nil {
		switch {
		case m.RequestRate != nil:
			t.Metric = MetricRequestRate
			if m.RequestRate.TargetValue != nil && *m.RequestRate.TargetValue > 0 {
				t.TargetValue = *m.RequestRate.TargetValue
			}
			if m.RequestRate.Window != nil && m.RequestRate.Window.Duration > 0 {
				t.Window = m.RequestRate.Window.Duration
			}
			if m.RequestRate.Granularity != nil && m.RequestRate.Granularity.Duration > 0 {
				t.Granularity = m.RequestRate.Granularity.Duration
			}
		case m.Concurrency != nil:
			if m.Concurrency.TargetValue != nil && *m.Concurrency.TargetValue > 0 {
				t.TargetValue = *m.Concurrency.TargetValue
			}
		}
	}
	if to := spec.Timeouts; to != nil && to.ConditionWait != nil {
		t.ConditionWait = to.ConditionWait.Duration
	}
	return t
}

// NormalizeHost lower-cases a Host header value and strips any port and
// trailing dot, so "Example.com:8080" and "example.com." match "example.com".
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}

// Precedes reports whether a owns a host over b when both claim it: the older
// object wins, ties are broken by namespace/name.
func Precedes(a, b *httpv1alpha1.HTTPScaledObject) bool {
	if !a.CreationTimestamp.Equal(&b.CreationTimestamp) {
		return a.CreationTimestamp.Before(&b.CreationTimestamp)
	}
	if a.Namespace != b.Namespace {
		return a.Namespace < b.Namespace
	}
	return a.Name < b.Name
}
