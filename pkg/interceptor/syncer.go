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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	toolscache "k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
)

// Syncer rebuilds the routing table from the HTTPScaledObject cache on every
// change and keeps the aggregator windows in line with the targets.
type Syncer struct {
	cache      cache.Cache
	reader     client.Reader
	table      *routing.Table
	aggregator aggregation.RequestAggregator

	mu     sync.Mutex
	keys   map[string]struct{}
	synced atomic.Bool
}

func NewSyncer(c cache.Cache, table *routing.Table, aggregator aggregation.RequestAggregator) *Syncer {
	return &Syncer{
		cache:      c,
		reader:     c,
		table:      table,
		aggregator: aggregator,
		keys:       map[string]struct{}{},
	}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable. Every
// interceptor replica routes traffic.
func (s *Syncer) NeedLeaderElection() bool {
	return false
}

// Start registers the event handler and performs the first full sync once
// the cache is warm.
func (s *Syncer) Start(ctx context.Context) error {
	informer, err := s.cache.GetInformer(ctx, &httpv1alpha1.HTTPScaledObject{})
	if err != nil {
		return fmt.Errorf("failed to get HTTPScaledObject informer: %w", err)
	}
	resync := func() {
		if s.synced.Load() {
			s.Resync(ctx)
		}
	}
	if _, err := informer.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
		AddFunc:    func(interface{}) { resync() },
		UpdateFunc: func(interface{}, interface{}) { resync() },
		DeleteFunc: func(interface{}) { resync() },
	}); err != nil {
		return fmt.Errorf("failed to add HTTPScaledObject event handler: %w", err)
	}

	if !s.cache.WaitForCacheSync(ctx) {
		return errors.New("HTTPScaledObject cache did not sync")
	}
	s.synced.Store(true)
	s.Resync(ctx)
	klog.InfoS("Routing table synced", "routes", len(s.table.Entries()))

	<-ctx.Done()
	return nil
}

// Resync lists every HTTPScaledObject and replaces the routing table.
func (s *Syncer) Resync(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := &httpv1alpha1.HTTPScaledObjectList{}
	if err := s.reader.List(ctx, list); err != nil {
		klog.ErrorS(err, "Failed to list HTTPScaledObjects")
		return
	}
	s.table.Update(list.Items)

	keys := make(map[string]struct{}, len(list.Items))
	for _, target := range s.table.Entries() {
		s.aggregator.Configure(target.String(), target.Window, target.Granularity)
		keys[target.String()] = struct{}{}
	}
	for key := range s.keys {
		if _, ok := keys[key]; !ok {
			s.aggregator.Remove(key)
		}
	}
	s.keys = keys
	klog.V(4).InfoS("Routing table updated", "routes", len(keys))
}
