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

package webhook

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

var httpscaledobjectlog = logf.Log.WithName("httpscaledobject-resource")

// SetupHTTPScaledObjectWebhookWithManager registers the webhook for HTTPScaledObject in the manager.
func SetupHTTPScaledObjectWebhookWithManager(mgr ctrl.Manager) error {
	return ctrl.NewWebhookManagedBy(mgr).For(&httpv1alpha1.HTTPScaledObject{}).
		WithValidator(&HTTPScaledObjectCustomValidator{Reader: mgr.GetClient()}).
		Complete()
}

// +kubebuilder:webhook:path=/validate-http-keda-sh-v1alpha1-httpscaledobject,mutating=false,failurePolicy=fail,sideEffects=None,groups=http.keda.sh,resources=httpscaledobjects,verbs=create;update,versions=v1alpha1,name=vhttpscaledobject-v1alpha1.kb.io,admissionReviewVersions=v1

// HTTPScaledObjectCustomValidator rejects invalid specs and hosts already
// claimed by another HTTPScaledObject. The reconciler applies the same rules,
// so objects admitted while the webhook is down still end up in an Error phase.
type HTTPScaledObjectCustomValidator struct {
	Reader client.Reader
}

var _ webhook.CustomValidator = &HTTPScaledObjectCustomValidator{}

// ValidateCreate implements webhook.CustomValidator so a webhook will be registered for the type HTTPScaledObject.
func (v *HTTPScaledObjectCustomValidator) ValidateCreate(ctx context.Context, obj runtime.Object) (admission.Warnings, error) {
	hso, ok := obj.(*httpv1alpha1.HTTPScaledObject)
	if !ok {
		return nil, fmt.Errorf("expected a HTTPScaledObject object but got %T", obj)
	}
	httpscaledobjectlog.Info("Validation for HTTPScaledObject upon creation", "name", hso.GetName())
	return v.validate(ctx, hso, true)
}

// ValidateUpdate implements webhook.CustomValidator so a webhook will be registered for the type HTTPScaledObject.
func (v *HTTPScaledObjectCustomValidator) ValidateUpdate(ctx context.Context, oldObj, newObj runtime.Object) (admission.Warnings, error) {
	hso, ok := newObj.(*httpv1alpha1.HTTPScaledObject)
	if !ok {
		return nil, fmt.Errorf("expected a HTTPScaledObject object for the newObj but got %T", newObj)
	}
	if !hso.DeletionTimestamp.IsZero() {
		return nil, nil
	}
	httpscaledobjectlog.Info("Validation for HTTPScaledObject upon update", "name", hso.GetName())
	return v.validate(ctx, hso, false)
}

// ValidateDelete implements webhook.CustomValidator so a webhook will be registered for the type HTTPScaledObject.
func (v *HTTPScaledObjectCustomValidator) ValidateDelete(_ context.Context, _ runtime.Object) (admission.Warnings, error) {
	return nil, nil
}

func (v *HTTPScaledObjectCustomValidator) validate(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject, create bool) (admission.Warnings, error) {
	allErrs := types.Validate(hso)

	var warnings admission.Warnings
	if hso.Spec.TargetPendingRequests != nil {
		warnings = append(warnings, "spec.targetPendingRequests is deprecated, use spec.scalingMetric targetValue")
	}

	if len(allErrs) == 0 && v.Reader != nil {
		owner, err := v.hostOwner(ctx, hso, create)
		if err != nil {
			return warnings, err
		}
		if owner != nil {
			allErrs = append(allErrs, field.Duplicate(field.NewPath("spec", "host"),
				fmt.Sprintf("%s (claimed by %s/%s)", types.NormalizeHost(hso.Spec.Host), owner.Namespace, owner.Name)))
		}
	}

	if len(allErrs) == 0 {
		return warnings, nil
	}
	return warnings, apierrors.NewInvalid(
		schema.GroupKind{Group: httpv1alpha1.GroupVersion.Group, Kind: "HTTPScaledObject"},
		hso.Name, allErrs)
}

// hostOwner finds the HTTPScaledObject holding the host of hso. A new object
// has no creation timestamp yet, so any live valid peer holds the host against it.
func (v *HTTPScaledObjectCustomValidator) hostOwner(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject, create bool) (*httpv1alpha1.HTTPScaledObject, error) {
	peers := &httpv1alpha1.HTTPScaledObjectList{}
	if err := v.Reader.List(ctx, peers); err != nil {
		return nil, fmt.Errorf("failed to list HTTPScaledObjects: %w", err)
	}
	host := types.NormalizeHost(hso.Spec.Host)

	var owner *httpv1alpha1.HTTPScaledObject
	for i := range peers.Items {
		peer := &peers.Items[i]
		if peer.Namespace == hso.Namespace && peer.Name == hso.Name {
			continue
		}
		if !peer.DeletionTimestamp.IsZero() || types.NormalizeHost(peer.Spec.Host) != host || !types.IsValid(peer) {
			continue
		}
		if !create && !types.Precedes(peer, hso) {
			continue
		}
		if owner == nil || types.Precedes(peer, owner) {
			owner = peer
		}
	}
	return owner, nil
}
