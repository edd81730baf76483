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

package wrapper

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
)

// HTTPScaledObjectWrapper wraps HTTPScaledObject to provide a fluent API for test construction.
type HTTPScaledObjectWrapper struct {
	hso httpv1alpha1.HTTPScaledObject
}

// MakeHTTPScaledObject routes host to the deployment and service of the same name.
func MakeHTTPScaledObject(name, namespace, host string) *HTTPScaledObjectWrapper {
	return &HTTPScaledObjectWrapper{
		hso: httpv1alpha1.HTTPScaledObject{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
			},
			Spec: httpv1alpha1.HTTPScaledObjectSpec{
				Host: host,
				ScaleTargetRef: httpv1alpha1.ScaleTargetRef{
					Deployment: name,
					Service:    name,
					Port:       8080,
				},
			},
		},
	}
}

// Obj returns the pointer to the underlying HTTPScaledObject.
func (w *HTTPScaledObjectWrapper) Obj() *httpv1alpha1.HTTPScaledObject {
	return &w.hso
}

// Target points the object at another deployment and service.
func (w *HTTPScaledObjectWrapper) Target(deployment, service string, port int32) *HTTPScaledObjectWrapper {
	w.hso.Spec.ScaleTargetRef = httpv1alpha1.ScaleTargetRef{Deployment: deployment, Service: service, Port: port}
	return w
}

// Replicas sets the replica bounds.
func (w *HTTPScaledObjectWrapper) Replicas(min, max int32) *HTTPScaledObjectWrapper {
	w.hso.Spec.Replicas = &httpv1alpha1.ReplicaStruct{Min: ptr.To(min), Max: ptr.To(max)}
	return w
}

// ScaledownPeriod sets the idle period before scale to zero.
func (w *HTTPScaledObjectWrapper) ScaledownPeriod(seconds int32) *HTTPScaledObjectWrapper {
	w.hso.Spec.ScaledownPeriod = ptr.To(seconds)
	return w
}

// ConditionWait sets the hold timeout of the interceptor.
func (w *HTTPScaledObjectWrapper) ConditionWait(d time.Duration) *HTTPScaledObjectWrapper {
	w.hso.Spec.Timeouts = &httpv1alpha1.HTTPScaledObjectTimeoutsConfig{
		ConditionWait: &metav1.Duration{Duration: d},
	}
	return w
}

// Concurrency scales on in-flight requests per replica.
func (w *HTTPScaledObjectWrapper) Concurrency(target int32) *HTTPScaledObjectWrapper {
	w.hso.Spec.ScalingMetric = &httpv1alpha1.ScalingMetricSpec{
		Concurrency: &httpv1alpha1.ConcurrencyMetric{TargetValue: ptr.To(target)},
	}
	return w
}
