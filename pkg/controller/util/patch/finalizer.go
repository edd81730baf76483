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


package patch

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const finalizersPath = "/metadata/finalizers"

// AddFinalizerPatch sets the finalizer list of obj to its current finalizers
// plus the given ones, sorted and deduplicated.
func AddFinalizerPatch(obj client.Object, finalizers ...string) (client.Patch, error) {
	merged := sets.List(sets.New(append(obj.GetFinalizers(), finalizers...)...))
	return NewJSONPatch().Append(Add, finalizersPath, merged).ToClientPatch()
}

// RemoveFinalizerPatch drops the given finalizers from obj. The whole list is
// removed when nothing else is left.
func RemoveFinalizerPatch(obj client.Object, finalizers ...string) (client.Patch, error) {
	drop := sets.New(finalizers...)
	var kept []string
	for _, f := range obj.GetFinalizers() {
		if !drop.Has(f) {
			kept = append(kept, f)
		}
	}

	jp := NewJSONPatch()
	if len(kept) == 0 {
		jp.Append(Remove, finalizersPath, nil)
	} else {
		jp.Append(Add, finalizersPath, kept)
	}
	return jp.ToClientPatch()
}

// EnsureFinalizer patches finalizer onto obj if it is missing. It reports
// whether a patch was sent.
func EnsureFinalizer(ctx context.Context, c client.Client, obj client.Object, finalizer string) (bool, error) {
	if sets.New(obj.GetFinalizers()...).Has(finalizer) {
		return false, nil
	}
	p, err := AddFinalizerPatch(obj, finalizer)
	if err != nil {
		return false, err
	}
	if err := c.Patch(ctx, obj, p); err != nil {
		return false, fmt.Errorf("failed to add finalizer %s to %s: %w", finalizer, client.ObjectKeyFromObject(obj), err)
	}
	return true, nil
}

// DropFinalizer patches finalizer off obj if it is present. It reports
// whether a patch was sent.
func DropFinalizer(ctx context.Context, c client.Client, obj client.Object, finalizer string) (bool, error) {
	if !sets.New(obj.GetFinalizers()...).Has(finalizer) {
		return false, nil
	}
	p, err := RemoveFinalizerPatch(obj, finalizer)
	if err != nil {
		return false, err
	}
	if err := c.Patch(ctx, obj, p); err != nil {
		return false, fmt.Errorf("failed to remove finalizer %s from %s: %w", finalizer, client.ObjectKeyFromObject(obj), err)
	}
	return true, nil
}
