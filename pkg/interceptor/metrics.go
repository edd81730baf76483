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
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrix_http_interceptor_requests_total",
			Help: "Requests handled by the interceptor by target and status code",
		},
		[]string{"namespace", "name", "code"},
	)
	coldStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrix_http_interceptor_cold_starts_total",
			Help: "Requests held while their target had no ready replica",
		},
		[]string{"namespace", "name"},
	)
	holdDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aibrix_http_interceptor_hold_duration_seconds",
			Help:    "Time requests were held waiting for a ready replica",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"namespace", "name", "outcome"},
	)
	unroutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aibrix_http_interceptor_unrouted_requests_total",
			Help: "Requests whose host matched no HTTPScaledObject",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(requestsTotal, coldStartsTotal, holdDuration, unroutedTotal)
}
