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

package routing

import (
	"sort"
	"sync/atomic"

	"k8s.io/klog/v2"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// Table maps normalized hosts to scale targets. Lookups read an immutable
// snapshot, updates build a new snapshot and swap it in.
type Table struct {
	snapshot atomic.Pointer[map[string]types.ScaleTarget]
	synced   atomic.Bool
}

func NewTable() *Table {
	t := &Table{}
	empty := map[string]types.ScaleTarget{}
	t.snapshot.Store(&empty)
	return t
}

// Lookup returns the target serving host. The port and letter case of host
// are ignored.
func (t *Table) Lookup(host string) (types.ScaleTarget, bool) {
	target, ok := (*t.snapshot.Load())[types.NormalizeHost(host)]
	return target, ok
}

// Update replaces the table with the routes of objects. Objects being
// deleted or failing validation are skipped, and of several objects
// claiming one host the oldest wins.
func (t *Table) Update(objects []httpv1alpha1.HTTPScaledObject) {
	owners := make(map[string]*httpv1alpha1.HTTPScaledObject, len(objects))
	for i := range objects {
		hso := &objects[i]
		if !hso.DeletionTimestamp.IsZero() {
			continue
		}
		if !types.IsValid(hso) {
			klog.V(4).InfoS("Skipping invalid HTTPScaledObject", "httpScaledObject", hso.Namespace+"/"+hso.Name)
			continue
		}
		host := types.NormalizeHost(hso.Spec.Host)
		if owner, ok := owners[host]; ok {
			if types.Precedes(owner, hso) {
				klog.V(4).InfoS("Host already routed", "host", host, "owner", owner.Namespace+"/"+owner.Name, "ignored", hso.Namespace+"/"+hso.Name)
				continue
			}
		}
		owners[host] = hso
	}

	next := make(map[string]types.ScaleTarget, len(owners))
	for host, hso := range owners {
		next[host] = types.NewScaleTarget(hso)
	}
	t.snapshot.Store(&next)
	t.synced.Store(true)
}

// Entries returns the targets sorted by host.
func (t *Table) Entries() []types.ScaleTarget {
	snapshot := *t.snapshot.Load()
	entries := make([]types.ScaleTarget, 0, len(snapshot))
	for _, target := range snapshot {
		entries = append(entries, target)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Host < entries[j].Host
	})
	return entries
}

// HasSynced reports whether the table was populated at least once.
func (t *Table) HasSynced() bool {
	return t.synced.Load()
}
