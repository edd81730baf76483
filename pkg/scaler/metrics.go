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

package scaler

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	scaleActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrix_http_scaler_scale_actions_total",
			Help: "Number of replica updates issued by the scale controller",
		},
		[]string{"namespace", "name", "direction"},
	)
	scaleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrix_http_scaler_scale_errors_total",
			Help: "Number of failed scale API calls",
		},
		[]string{"namespace", "name"},
	)
	desiredReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aibrix_http_scaler_desired_replicas",
			Help: "Replica count last computed for a target",
		},
		[]string{"namespace", "name"},
	)
	degradedTargets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aibrix_http_scaler_degraded",
			Help: "1 while a target is Degraded after repeated scale failures",
		},
		[]string{"namespace", "name"},
	)
)

func init() {
	// Register with controller-runtime metrics registry
	metrics.Registry.MustRegister(scaleActions, scaleErrors, desiredReplicas, degradedTargets)
}

func deleteTargetMetrics(namespace, name string) {
	scaleActions.DeleteLabelValues(namespace, name, "up")
	scaleActions.DeleteLabelValues(namespace, name, "down")
	scaleErrors.DeleteLabelValues(namespace, name)
	desiredReplicas.DeleteLabelValues(namespace, name)
	degradedTargets.DeleteLabelValues(namespace, name)
}
