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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
)

func newHSO(namespace, name, host string, created time.Time) *httpv1alpha1.HTTPScaledObject {
	return &httpv1alpha1.HTTPScaledObject{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:         namespace,
			Name:              name,
			CreationTimestamp: metav1.NewTime(created),
		},
		Spec: httpv1alpha1.HTTPScaledObjectSpec{
			Host: host,
			ScaleTargetRef: httpv1alpha1.ScaleTargetRef{
				Deployment: "app",
				Service:    "app-svc",
				Port:       8080,
			},
		},
	}
}

func TestNewScaleTargetDefaults(t *testing.T) {
	hso := newHSO("default", "t1", "H1.Example.com", time.Unix(100, 0))
	target := NewScaleTarget(hso)

	assert.Equal(t, "default/t1", target.String())
	assert.Equal(t, "h1.example.com", target.Host)
	assert.Equal(t, "default/app", target.DeploymentKey().String())
	assert.Equal(t, "app-svc.default:8080", target.UpstreamHost())
	assert.Equal(t, DefaultMinReplicas, target.MinReplicas)
	assert.Equal(t, DefaultMaxReplicas, target.MaxReplicas)
	assert.Equal(t, DefaultTargetPendingRequests, target.TargetValue)
	assert.Equal(t, MetricConcurrency, target.Metric)
	assert.Equal(t, DefaultScaledownPeriod, target.ScaledownPeriod)
	assert.Zero(t, target.ConditionWait)
}

func TestNewScaleTargetOverrides(t *testing.T) {
	hso := newHSO("default", "t1", "h1", time.Unix(100, 0))
	hso.Spec.Replicas = &httpv1alpha1.ReplicaStruct{Min: ptr.To[int32](1), Max: ptr.To[int32](5)}
	hso.Spec.ScaledownPeriod = ptr.To[int32](30)
	hso.Spec.ScalingMetric = &httpv1alpha1.ScalingMetricSpec{
		RequestRate: &httpv1alpha1.RequestRateMetric{
			TargetValue: ptr.To[int32](10),
			Window:      &metav1.Duration{Duration: 30 * time.Second},
			Granularity: &metav1.Duration{Duration: 2 * time.Second},
		},
	}
	hso.Spec.Timeouts = &httpv1alpha1.HTTPScaledObjectTimeoutsConfig{
		ConditionWait: &metav1.Duration{Duration: 5 * time.Second},
	}

	target := NewScaleTarget(hso)
	assert.Equal(t, int32(1), target.MinReplicas)
	assert.Equal(t, int32(5), target.MaxReplicas)
	assert.Equal(t, 30*time.Second, target.ScaledownPeriod)
	assert.Equal(t, MetricRequestRate, target.Metric)
	assert.Equal(t, int32(10), target.TargetValue)
	assert.Equal(t, 30*time.Second, target.Window)
	assert.Equal(t, 2*time.Second, target.Granularity)
	assert.Equal(t, 5*time.Second, target.ConditionWait)
}

func TestNormalizeHost(t *testing.T) {
	tests := map[string]string{
		"example.com":        "example.com",
		"Example.COM:8080":   "example.com",
		"example.com.":       "example.com",
		" h1 ":               "h1",
		"[::1]:80":           "::1",
		"h1.default.svc:443": "h1.default.svc",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHost(in), in)
	}
}

func TestPrecedes(t *testing.T) {
	older := newHSO("b", "x", "h1", time.Unix(100, 0))
	newer := newHSO("a", "x", "h1", time.Unix(200, 0))
	assert.True(t, Precedes(older, newer))
	assert.False(t, Precedes(newer, older))

	sameTimeA := newHSO("a", "x", "h1", time.Unix(100, 0))
	sameTimeB := newHSO("b", "x", "h1", time.Unix(100, 0))
	assert.True(t, Precedes(sameTimeA, sameTimeB))
	assert.False(t, Precedes(sameTimeB, sameTimeA))

	sameNamespace1 := newHSO("a", "x", "h1", time.Unix(100, 0))
	sameNamespace2 := newHSO("a", "y", "h1", time.Unix(100, 0))
	assert.True(t, Precedes(sameNamespace1, sameNamespace2))
}
