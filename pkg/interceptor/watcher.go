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
	"fmt"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	toolscache "k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/cache"
)

// ReadinessWaiter reports and awaits ready replicas of a Deployment.
type ReadinessWaiter interface {
	ReadyReplicas(key k8stypes.NamespacedName) int32
	// WaitForReady blocks until the Deployment has a ready replica or ctx is done.
	WaitForReady(ctx context.Context, key k8stypes.NamespacedName) error
}

// DeploymentWatcher tracks ready replicas of Deployments from informer events.
// Waiters of a Deployment share one channel that is closed when it becomes
// ready.
type DeploymentWatcher struct {
	mu      sync.Mutex
	ready   map[k8stypes.NamespacedName]int32
	waiters map[k8stypes.NamespacedName]chan struct{}
}

var _ ReadinessWaiter = &DeploymentWatcher{}
var _ toolscache.ResourceEventHandler = &DeploymentWatcher{}

func NewDeploymentWatcher() *DeploymentWatcher {
	return &DeploymentWatcher{
		ready:   map[k8stypes.NamespacedName]int32{},
		waiters: map[k8stypes.NamespacedName]chan struct{}{},
	}
}

// Watch registers the watcher on the Deployment informer of c.
func (w *DeploymentWatcher) Watch(ctx context.Context, c cache.Cache) error {
	informer, err := c.GetInformer(ctx, &appsv1.Deployment{})
	if err != nil {
		return fmt.Errorf("failed to get deployment informer: %w", err)
	}
	if _, err := informer.AddEventHandler(w); err != nil {
		return fmt.Errorf("failed to add deployment event handler: %w", err)
	}
	return nil
}

func (w *DeploymentWatcher) ReadyReplicas(key k8stypes.NamespacedName) int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready[key]
}

func (w *DeploymentWatcher) WaitForReady(ctx context.Context, key k8stypes.NamespacedName) error {
	for {
		w.mu.Lock()
		if w.ready[key] > 0 {
			w.mu.Unlock()
			return nil
		}
		ch, ok := w.waiters[key]
		if !ok {
			ch = make(chan struct{})
			w.waiters[key] = ch
		}
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetReadyReplicas records the ready replica count of a Deployment and
// releases its waiters when it is positive.
func (w *DeploymentWatcher) SetReadyReplicas(key k8stypes.NamespacedName, ready int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ready <= 0 {
		delete(w.ready, key)
		return
	}
	if w.ready[key] == 0 {
		klog.V(4).InfoS("Deployment became ready", "deployment", key, "readyReplicas", ready)
	}
	w.ready[key] = ready
	if ch, ok := w.waiters[key]; ok {
		close(ch)
		delete(w.waiters, key)
	}
}

func (w *DeploymentWatcher) OnAdd(obj interface{}, _ bool) {
	if d, ok := obj.(*appsv1.Deployment); ok {
		w.SetReadyReplicas(k8stypes.NamespacedName{Namespace: d.Namespace, Name: d.Name}, d.Status.ReadyReplicas)
	}
}

func (w *DeploymentWatcher) OnUpdate(_, newObj interface{}) {
	w.OnAdd(newObj, false)
}

func (w *DeploymentWatcher) OnDelete(obj interface{}) {
	switch t := obj.(type) {
	case *appsv1.Deployment:
		w.SetReadyReplicas(k8stypes.NamespacedName{Namespace: t.Namespace, Name: t.Name}, 0)
	case toolscache.DeletedFinalStateUnknown:
		if d, ok := t.Obj.(*appsv1.Deployment); ok {
			w.SetReadyReplicas(k8stypes.NamespacedName{Namespace: d.Namespace, Name: d.Name}, 0)
		}
	}
}
