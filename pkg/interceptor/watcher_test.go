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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	toolscache "k8s.io/client-go/tools/cache"
)

func deployment(ready int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Namespace: deploymentKey.Namespace, Name: deploymentKey.Name},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: ready},
	}
}

func TestDeploymentWatcherEvents(t *testing.T) {
	w := NewDeploymentWatcher()
	assert.Equal(t, int32(0), w.ReadyReplicas(deploymentKey))

	w.OnAdd(deployment(2), true)
	assert.Equal(t, int32(2), w.ReadyReplicas(deploymentKey))

	w.OnUpdate(deployment(2), deployment(0))
	assert.Equal(t, int32(0), w.ReadyReplicas(deploymentKey))

	w.OnAdd(deployment(1), false)
	w.OnDelete(toolscache.DeletedFinalStateUnknown{Key: "default/app", Obj: deployment(1)})
	assert.Equal(t, int32(0), w.ReadyReplicas(deploymentKey))
}

func TestDeploymentWatcherReleasesAllWaiters(t *testing.T) {
	w := NewDeploymentWatcher()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs <- w.WaitForReady(ctx, deploymentKey)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	w.OnUpdate(deployment(0), deployment(1))
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestDeploymentWatcherWaitTimesOut(t *testing.T) {
	w := NewDeploymentWatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.WaitForReady(ctx, deploymentKey), context.DeadlineExceeded)

	// ready already, no wait
	w.SetReadyReplicas(deploymentKey, 3)
	assert.NoError(t, w.WaitForReady(context.Background(), deploymentKey))
}
