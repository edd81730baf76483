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
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

var deploymentGVK = schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}

// WorkloadScale provides the mechanism to get/set replica counts on the
// workload of a scale target, while the Controller decides what the count
// should be.
type WorkloadScale interface {
	// GetReplicas returns spec.replicas of the target workload.
	GetReplicas(ctx context.Context, target types.ScaleTarget) (int32, error)
	// SetDesiredReplicas updates spec.replicas of the target workload.
	SetDesiredReplicas(ctx context.Context, target types.ScaleTarget, replicas int32) error
}

// workloadScale is a stateless implementation of WorkloadScale
type workloadScale struct {
	client client.Client
}

// NewWorkloadScale creates a stateless WorkloadScale implementation
func NewWorkloadScale(client client.Client) WorkloadScale {
	return &workloadScale{client: client}
}

func (s *workloadScale) get(ctx context.Context, target types.ScaleTarget) (*unstructured.Unstructured, error) {
	scale := &unstructured.Unstructured{}
	scale.SetGroupVersionKind(deploymentGVK)
	if err := s.client.Get(ctx, target.DeploymentKey(), scale); err != nil {
		return nil, err
	}
	return scale, nil
}

func (s *workloadScale) GetReplicas(ctx context.Context, target types.ScaleTarget) (int32, error) {
	scale, err := s.get(ctx, target)
	if err != nil {
		return 0, err
	}

	replicas, found, err := unstructured.NestedInt64(scale.Object, "spec", "replicas")
	if err != nil {
		return 0, fmt.Errorf("failed to get 'replicas' from %s: %w", target.DeploymentKey(), err)
	}
	if !found {
		// apps/v1 defaults an unset replica count to 1
		return 1, nil
	}
	return int32(replicas), nil
}

func (s *workloadScale) SetDesiredReplicas(ctx context.Context, target types.ScaleTarget, replicas int32) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		scale, err := s.get(ctx, target)
		if err != nil {
			return err
		}

		if err := unstructured.SetNestedField(scale.Object, int64(replicas), "spec", "replicas"); err != nil {
			return fmt.Errorf("failed to set replicas field: %w", err)
		}

		// Note: we have choice to use scale api, but it requires /scale RBAC, to simplify the scenario, let's use current way
		if err := s.client.Update(ctx, scale); err != nil {
			return err
		}

		klog.InfoS("Scaled deployment", "deployment", target.DeploymentKey(), "replicas", replicas)
		return nil
	})
}
