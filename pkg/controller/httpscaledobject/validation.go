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

package httpscaledobject

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/controller-runtime/pkg/client"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// HostIndexKey indexes HTTPScaledObjects by normalized spec.host.
const HostIndexKey = "spec.host"

var (
	// ErrValidation wraps the field errors of an invalid HTTPScaledObject.
	ErrValidation = errors.New("invalid HTTPScaledObject")
	// ErrHostConflict means an older HTTPScaledObject already claims the host.
	ErrHostConflict = errors.New("host already claimed")
)

// HostIndexFunc extracts the index value of HostIndexKey.
func HostIndexFunc(obj client.Object) []string {
	hso, ok := obj.(*httpv1alpha1.HTTPScaledObject)
	if !ok {
		return nil
	}
	host := types.NormalizeHost(hso.Spec.Host)
	if host == "" {
		return nil
	}
	return []string{host}
}

// ValidationError returns nil for an empty list, otherwise an error wrapping
// ErrValidation.
func ValidationError(errs field.ErrorList) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrValidation, errs.ToAggregate())
}

// HostOwner returns the HTTPScaledObject that owns the host of hso when it is
// not hso itself. Objects being deleted or failing Validate own nothing. The reader must have
// HostIndexKey registered.
func HostOwner(ctx context.Context, reader client.Reader, hso *httpv1alpha1.HTTPScaledObject) (*httpv1alpha1.HTTPScaledObject, error) {
	peers := &httpv1alpha1.HTTPScaledObjectList{}
	if err := reader.List(ctx, peers, client.MatchingFields{HostIndexKey: types.NormalizeHost(hso.Spec.Host)}); err != nil {
		return nil, fmt.Errorf("failed to list HTTPScaledObjects by host: %w", err)
	}

	var owner *httpv1alpha1.HTTPScaledObject
	for i := range peers.Items {
		peer := &peers.Items[i]
		if peer.Namespace == hso.Namespace && peer.Name == hso.Name {
			continue
		}
		if !peer.DeletionTimestamp.IsZero() || !types.IsValid(peer) {
			continue
		}
		if types.Precedes(peer, hso) && (owner == nil || types.Precedes(peer, owner)) {
			owner = peer
		}
	}
	return owner, nil
}

// HostConflictError describes the claim of owner on the host of hso.
func HostConflictError(hso, owner *httpv1alpha1.HTTPScaledObject) error {
	return fmt.Errorf("%w: %q is served by %s/%s", ErrHostConflict, types.NormalizeHost(hso.Spec.Host), owner.Namespace, owner.Name)
}
