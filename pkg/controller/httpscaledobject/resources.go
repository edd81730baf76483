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
	"fmt"
	"strings"

	"k8s.io/utils/ptr"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	kedav1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/keda/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

const (
	externalPushTrigger = "external-push"
	triggerName         = "http-requests"
	// scaledObjectPollingInterval is only used by keda when the object is unpaused.
	scaledObjectPollingInterval int32 = 1
)

func routeName(hso *httpv1alpha1.HTTPScaledObject) string {
	return fmt.Sprintf("%s-route", hso.Name)
}

func referenceGrantName(namespace string) string {
	return fmt.Sprintf("aibrix-http-scaler-from-%s", namespace)
}

func derivedLabels(hso *httpv1alpha1.HTTPScaledObject, existing map[string]string) map[string]string {
	labels := make(map[string]string, len(existing)+2)
	for k, v := range existing {
		labels[k] = v
	}
	labels[constants.HTTPScaledObjectLabelName] = hso.Name
	labels[constants.ManagedByLabel] = constants.ManagedByValue
	return labels
}

// mutateScaledObject writes the fields of so owned by hso. Fields written by
// other actors are kept.
func mutateScaledObject(so *kedav1alpha1.ScaledObject, hso *httpv1alpha1.HTTPScaledObject, cfg config.RuntimeConfig) {
	target := types.NewScaleTarget(hso)

	so.Labels = derivedLabels(hso, so.Labels)
	if so.Annotations == nil {
		so.Annotations = map[string]string{}
	}
	so.Annotations[constants.KedaPausedAnnotation] = "true"

	so.Spec.ScaleTargetRef = &kedav1alpha1.ScaleTarget{
		Name:       target.Deployment,
		APIVersion: "apps/v1",
		Kind:       "Deployment",
	}
	so.Spec.PollingInterval = ptr.To(scaledObjectPollingInterval)
	so.Spec.CooldownPeriod = ptr.To(int32(target.ScaledownPeriod.Seconds()))
	so.Spec.MinReplicaCount = ptr.To(target.MinReplicas)
	so.Spec.MaxReplicaCount = ptr.To(target.MaxReplicas)
	so.Spec.Triggers = []kedav1alpha1.ScaleTriggers{
		{
			Type: externalPushTrigger,
			Name: triggerName,
			Metadata: map[string]string{
				constants.TriggerScalerAddressKey:    cfg.ScalerAddress,
				constants.TriggerHostsKey:            target.Host,
				constants.TriggerHTTPScaledObjectKey: hso.Name,
			},
		},
	}
}

// mutateHTTPRoute points the host of hso at the interceptor proxy service
// through the configured gateway.
func mutateHTTPRoute(route *gatewayv1.HTTPRoute, hso *httpv1alpha1.HTTPScaledObject, cfg config.RuntimeConfig) {
	opt := cfg.RoutingOpt
	route.Labels = derivedLabels(hso, route.Labels)
	route.Spec = gatewayv1.HTTPRouteSpec{
		CommonRouteSpec: gatewayv1.CommonRouteSpec{
			ParentRefs: []gatewayv1.ParentReference{
				{
					Name:      gatewayv1.ObjectName(opt.GatewayName),
					Namespace: ptr.To(gatewayv1.Namespace(opt.GatewayNamespace)),
				},
			},
		},
		Hostnames: []gatewayv1.Hostname{gatewayv1.Hostname(types.NormalizeHost(hso.Spec.Host))},
		Rules: []gatewayv1.HTTPRouteRule{
			{
				Matches: []gatewayv1.HTTPRouteMatch{
					{
						Path: &gatewayv1.HTTPPathMatch{
							Type:  ptr.To(gatewayv1.PathMatchPathPrefix),
							Value: ptr.To("/"),
						},
					},
				},
				BackendRefs: []gatewayv1.HTTPBackendRef{
					{
						BackendRef: gatewayv1.BackendRef{
							BackendObjectReference: gatewayv1.BackendObjectReference{
								Name:      gatewayv1.ObjectName(opt.InterceptorService),
								Namespace: ptr.To(gatewayv1.Namespace(opt.InterceptorNamespace)),
								Port:      ptr.To(gatewayv1.PortNumber(opt.InterceptorPort)),
							},
						},
					},
				},
			},
		},
	}
}

// needsReferenceGrant reports whether routes in namespace reference the
// interceptor service across namespaces.
func needsReferenceGrant(namespace string, cfg config.RuntimeConfig) bool {
	return !strings.EqualFold(namespace, cfg.RoutingOpt.InterceptorNamespace)
}

// mutateReferenceGrant allows HTTPRoutes in fromNamespace to reference the
// interceptor service.
func mutateReferenceGrant(grant *gatewayv1beta1.ReferenceGrant, fromNamespace string, cfg config.RuntimeConfig) {
	if grant.Labels == nil {
		grant.Labels = map[string]string{}
	}
	grant.Labels[constants.ManagedByLabel] = constants.ManagedByValue
	grant.Spec = gatewayv1beta1.ReferenceGrantSpec{
		From: []gatewayv1beta1.ReferenceGrantFrom{
			{
				Group:     gatewayv1.GroupName,
				Kind:      "HTTPRoute",
				Namespace: gatewayv1beta1.Namespace(fromNamespace),
			},
		},
		To: []gatewayv1beta1.ReferenceGrantTo{
			{
				Group: "",
				Kind:  "Service",
				Name:  ptr.To(gatewayv1beta1.ObjectName(cfg.RoutingOpt.InterceptorService)),
			},
		},
	}
}
