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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ScaleTargetRef points to the workload scaled by an HTTPScaledObject and the
// service requests are forwarded to once the workload is ready.
type ScaleTargetRef struct {
	// Deployment is the name of the Deployment to scale, in the same namespace.
	Deployment string `json:"deployment"`
	// Service is the name of the Service fronting the Deployment.
	Service string `json:"service"`
	// Port is the Service port requests are forwarded to.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	Port int32 `json:"port"`
}

// ReplicaStruct bounds the replica count of the scale target.
type ReplicaStruct struct {
	// Min is the lowest replica count, 0 enables scale to zero.
	// +optional
	Min *int32 `json:"min,omitempty"`
	// Max is the highest replica count.
	// +optional
	Max *int32 `json:"max,omitempty"`
}

// ConcurrencyMetric scales on the number of in-flight requests.
type ConcurrencyMetric struct {
	// TargetValue is the number of in-flight requests one replica should hold.
	// +optional
	TargetValue *int32 `json:"targetValue,omitempty"`
}

// RequestRateMetric scales on the request rate observed over a sliding window.
type RequestRateMetric struct {
	// TargetValue is the request rate per second one replica should serve.
	// +optional
	TargetValue *int32 `json:"targetValue,omitempty"`
	// Window is the length of the sliding window.
	// +optional
	Window *metav1.Duration `json:"window,omitempty"`
	// Granularity is the width of one window bucket.
	// +optional
	Granularity *metav1.Duration `json:"granularity,omitempty"`
}

// ScalingMetricSpec selects what load signal drives scaling. At most one
// of the fields may be set; concurrency is used when both are empty.
type ScalingMetricSpec struct {
	// +optional
	Concurrency *ConcurrencyMetric `json:"concurrency,omitempty"`
	// +optional
	RequestRate *RequestRateMetric `json:"requestRate,omitempty"`
}

// HTTPScaledObjectTimeoutsConfig overrides interceptor timeouts for one target.
type HTTPScaledObjectTimeoutsConfig struct {
	// ConditionWait is how long a request is held while waiting for the target
	// to become ready.
	// +optional
	ConditionWait *metav1.Duration `json:"conditionWait,omitempty"`
}

// HTTPScaledObjectSpec defines the desired state of HTTPScaledObject
type HTTPScaledObjectSpec struct {
	// Host is the Host header value routed to the scale target. It must be
	// unique across the cluster.
	Host string `json:"host"`
	// ScaleTargetRef is the workload and service backing the host.
	ScaleTargetRef ScaleTargetRef `json:"scaleTargetRef"`
	// Replicas bounds the replica count, defaults to [0, 100].
	// +optional
	Replicas *ReplicaStruct `json:"replicas,omitempty"`
	// TargetPendingRequests is the load one replica is expected to absorb.
	// Deprecated in favour of ScalingMetric target values.
	// +optional
	TargetPendingRequests *int32 `json:"targetPendingRequests,omitempty"`
	// ScaledownPeriod is how long, in seconds, the target must be idle before it
	// is scaled to zero.
	// +optional
	ScaledownPeriod *int32 `json:"scaledownPeriod,omitempty"`
	// +optional
	ScalingMetric *ScalingMetricSpec `json:"scalingMetric,omitempty"`
	// +optional
	Timeouts *HTTPScaledObjectTimeoutsConfig `json:"timeouts,omitempty"`
}

// HTTPScaledObjectPhase is the coarse lifecycle state of an HTTPScaledObject.
type HTTPScaledObjectPhase string

const (
	PhasePending HTTPScaledObjectPhase = "Pending"
	PhaseReady   HTTPScaledObjectPhase = "Ready"
	PhaseError   HTTPScaledObjectPhase = "Error"
	PhaseDeleted HTTPScaledObjectPhase = "Terminating"
)

const (
	// ConditionReady reports whether the derived objects are applied and the
	// target is registered with the scale controller.
	ConditionReady = "Ready"
	// ConditionDegraded reports repeated scale API failures.
	ConditionDegraded = "Degraded"

	ReasonApplied        = "Applied"
	ReasonInvalidSpec    = "InvalidSpec"
	ReasonHostConflict   = "HostConflict"
	ReasonApplyFailed    = "ApplyFailed"
	ReasonScaleFailures  = "ScaleFailures"
	ReasonScalingHealthy = "ScalingHealthy"
)

// HTTPScaledObjectStatus defines the observed state of HTTPScaledObject
type HTTPScaledObjectStatus struct {
	// +optional
	Phase HTTPScaledObjectPhase `json:"phase,omitempty"`
	// ObservedGeneration is the generation last processed by the reconciler.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// TargetWorkload is the namespaced workload being scaled, e.g. apps/v1/Deployment/name.
	// +optional
	TargetWorkload string `json:"targetWorkload,omitempty"`
	// TargetService is the service requests are forwarded to, e.g. name:port.
	// +optional
	TargetService string `json:"targetService,omitempty"`
	// ScaleState is the scale controller state of the target.
	// +optional
	ScaleState string `json:"scaleState,omitempty"`
	// CurrentReplicas is the replica count last observed by the scale controller.
	// +optional
	CurrentReplicas int32 `json:"currentReplicas,omitempty"`
	// DesiredReplicas is the replica count last requested by the scale controller.
	// +optional
	DesiredReplicas int32 `json:"desiredReplicas,omitempty"`
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
//+kubebuilder:resource:shortName=httpso
//+kubebuilder:printcolumn:name="Host",type="string",JSONPath=".spec.host"
//+kubebuilder:printcolumn:name="Deployment",type="string",JSONPath=".spec.scaleTargetRef.deployment"
//+kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
//+kubebuilder:printcolumn:name="State",type="string",JSONPath=".status.scaleState"

// HTTPScaledObject is the Schema for the httpscaledobjects API. It binds a Host
// header to a Deployment that is scaled on HTTP traffic, down to zero replicas.
type HTTPScaledObject struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   HTTPScaledObjectSpec   `json:"spec,omitempty"`
	Status HTTPScaledObjectStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// HTTPScaledObjectList contains a list of HTTPScaledObject
type HTTPScaledObjectList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []HTTPScaledObject `json:"items"`
}

func init() {
	SchemeBuilder.Register(&HTTPScaledObject{}, &HTTPScaledObjectList{})
}
