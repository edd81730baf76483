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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
)

// routeEntry is one row of the routing table as served by the admin API.
type routeEntry struct {
	Host          string `json:"host"`
	Namespace     string `json:"namespace"`
	Name          string `json:"name"`
	Deployment    string `json:"deployment"`
	Upstream      string `json:"upstream"`
	ReadyReplicas int32  `json:"readyReplicas"`
	Metric        string `json:"metric"`
	TargetValue   int32  `json:"targetValue"`
	MinReplicas   int32  `json:"minReplicas"`
	MaxReplicas   int32  `json:"maxReplicas"`
}

type adminHandler struct {
	table      *routing.Table
	aggregator aggregation.RequestAggregator
	readiness  ReadinessWaiter
}

// NewAdminRouter returns the admin API: request counters, the routing table
// and probes.
func NewAdminRouter(table *routing.Table, aggregator aggregation.RequestAggregator, readiness ReadinessWaiter) *mux.Router {
	h := &adminHandler{table: table, aggregator: aggregator, readiness: readiness}
	r := mux.NewRouter()
	r.HandleFunc("/queue", h.queue).Methods(http.MethodGet)
	r.HandleFunc("/routing_table", h.routingTable).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	return r
}

func (h *adminHandler) queue(w http.ResponseWriter, r *http.Request) {
	records, err := h.aggregator.Current(r.Context())
	if err != nil {
		klog.ErrorS(err, "Failed to read request counters")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (h *adminHandler) routingTable(w http.ResponseWriter, r *http.Request) {
	entries := h.table.Entries()
	routes := make([]routeEntry, 0, len(entries))
	for _, t := range entries {
		routes = append(routes, routeEntry{
			Host:          t.Host,
			Namespace:     t.Key.Namespace,
			Name:          t.Key.Name,
			Deployment:    t.Deployment,
			Upstream:      t.UpstreamHost(),
			ReadyReplicas: h.readiness.ReadyReplicas(t.DeploymentKey()),
			Metric:        string(t.Metric),
			TargetValue:   t.TargetValue,
			MinReplicas:   t.MinReplicas,
			MaxReplicas:   t.MaxReplicas,
		})
	}
	writeJSON(w, routes)
}

func (h *adminHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *adminHandler) readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.table.HasSynced() {
		http.Error(w, "routing table not synced", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.ErrorS(err, "Failed to write admin response")
	}
}
