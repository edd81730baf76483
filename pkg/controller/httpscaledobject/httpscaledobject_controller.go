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
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8stypes "k8s.io/apimachinery/pkg/types"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	kedav1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/keda/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/controller/util/patch"
	"github.com/vllm-project/aibrix-http-scaler/pkg/scaler"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
	"github.com/vllm-project/aibrix-http-scaler/pkg/utils"
)

const (
	ControllerName = "httpscaledobject-controller"

	httpRouteCRD    = "httproutes.gateway.networking.k8s.io"
	scaledObjectCRD = "scaledobjects.keda.sh"

	maxConcurrentReconciles = 4
)

//+kubebuilder:rbac:groups=http.keda.sh,resources=httpscaledobjects,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=http.keda.sh,resources=httpscaledobjects/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=http.keda.sh,resources=httpscaledobjects/finalizers,verbs=update
//+kubebuilder:rbac:groups=keda.sh,resources=scaledobjects,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=gateway.networking.k8s.io,resources=httproutes,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=gateway.networking.k8s.io,resources=referencegrants,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;update;patch
//+kubebuilder:rbac:groups=core,resources=events,verbs=create;patch
//+kubebuilder:rbac:groups=apiextensions.k8s.io,resources=customresourcedefinitions,verbs=get

// Add creates a new HTTPScaledObject Controller and adds it to the Manager
// with default RBAC. The Manager will set fields on the Controller and Start
// it when the Manager is Started.
func Add(mgr manager.Manager, runtimeConfig config.RuntimeConfig, registry scaler.TargetRegistry) error {
	r, err := newReconciler(mgr, runtimeConfig, registry)
	if err != nil {
		return err
	}
	return add(mgr, r)
}

func newReconciler(mgr manager.Manager, runtimeConfig config.RuntimeConfig, registry scaler.TargetRegistry) (*HTTPScaledObjectReconciler, error) {
	routesEnabled, err := utils.CheckCRDExists(mgr.GetAPIReader(), httpRouteCRD)
	if err != nil {
		return nil, fmt.Errorf("failed to check for CRD %s: %w", httpRouteCRD, err)
	}
	if !routesEnabled {
		klog.InfoS("Gateway API CRD not found, HTTPRoutes will not be derived", "CRD", httpRouteCRD)
	} else {
		utilruntime.Must(gatewayv1.AddToScheme(mgr.GetScheme()))
		utilruntime.Must(gatewayv1beta1.AddToScheme(mgr.GetScheme()))
	}

	scaledObjectsEnabled, err := utils.CheckCRDExists(mgr.GetAPIReader(), scaledObjectCRD)
	if err != nil {
		return nil, fmt.Errorf("failed to check for CRD %s: %w", scaledObjectCRD, err)
	}
	if !scaledObjectsEnabled {
		klog.InfoS("KEDA CRD not found, ScaledObjects will not be derived", "CRD", scaledObjectCRD)
	} else {
		utilruntime.Must(kedav1alpha1.AddToScheme(mgr.GetScheme()))
	}

	return &HTTPScaledObjectReconciler{
		Client:               mgr.GetClient(),
		Scheme:               mgr.GetScheme(),
		EventRecorder:        mgr.GetEventRecorderFor(ControllerName),
		RuntimeConfig:        runtimeConfig,
		Registry:             registry,
		RoutesEnabled:        routesEnabled,
		ScaledObjectsEnabled: scaledObjectsEnabled,
	}, nil
}

func add(mgr manager.Manager, r *HTTPScaledObjectReconciler) error {
	if err := mgr.GetFieldIndexer().IndexField(context.Background(), &httpv1alpha1.HTTPScaledObject{}, HostIndexKey, HostIndexFunc); err != nil {
		return fmt.Errorf("failed to index HTTPScaledObjects by host: %w", err)
	}

	b := ctrl.NewControllerManagedBy(mgr).
		Named(ControllerName).
		For(&httpv1alpha1.HTTPScaledObject{}, builder.WithPredicates(predicate.GenerationChangedPredicate{})).
		Watches(&httpv1alpha1.HTTPScaledObject{}, r.hostPeersHandler()).
		WithOptions(controller.Options{MaxConcurrentReconciles: maxConcurrentReconciles})
	if r.ScaledObjectsEnabled {
		b = b.Owns(&kedav1alpha1.ScaledObject{})
	}
	if r.RoutesEnabled {
		b = b.Owns(&gatewayv1.HTTPRoute{})
	}

	klog.InfoS("Added HTTPScaledObject controller", "routes", r.RoutesEnabled, "scaledObjects", r.ScaledObjectsEnabled)
	return b.Complete(r)
}

var _ reconcile.Reconciler = &HTTPScaledObjectReconciler{}

// HTTPScaledObjectReconciler reconciles an HTTPScaledObject into a ScaledObject,
// an HTTPRoute and a registration with the scale controller.
type HTTPScaledObjectReconciler struct {
	client.Client
	Scheme        *runtime.Scheme
	EventRecorder record.EventRecorder
	RuntimeConfig config.RuntimeConfig
	Registry      scaler.TargetRegistry

	RoutesEnabled        bool
	ScaledObjectsEnabled bool
}

// Reconcile moves an HTTPScaledObject through validation, application of its
// derived objects and, once deleted, their teardown.
func (r *HTTPScaledObjectReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	if r.RuntimeConfig.DebugMode {
		klog.InfoS("Reconciling HTTPScaledObject", "obj", req.NamespacedName)
	} else {
		klog.V(4).InfoS("Reconciling HTTPScaledObject", "obj", req.NamespacedName)
	}

	hso := &httpv1alpha1.HTTPScaledObject{}
	if err := r.Get(ctx, req.NamespacedName, hso); err != nil {
		if apierrors.IsNotFound(err) {
			// Derived objects are garbage collected through owner references.
			r.Registry.Unregister(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		klog.ErrorS(err, "Failed to get HTTPScaledObject", "obj", req.NamespacedName)
		return ctrl.Result{}, err
	}

	if !hso.DeletionTimestamp.IsZero() {
		return r.finalize(ctx, hso)
	}

	if _, err := patch.EnsureFinalizer(ctx, r.Client, hso, constants.HTTPScaledObjectFinalizer); err != nil {
		return ctrl.Result{}, err
	}

	if err := ValidationError(types.Validate(hso)); err != nil {
		return r.reject(ctx, hso, httpv1alpha1.ReasonInvalidSpec, err)
	}
	owner, err := HostOwner(ctx, r.Client, hso)
	if err != nil {
		return ctrl.Result{}, err
	}
	if owner != nil {
		return r.reject(ctx, hso, httpv1alpha1.ReasonHostConflict, HostConflictError(hso, owner))
	}

	if err := r.apply(ctx, hso); err != nil {
		klog.ErrorS(err, "Failed to apply derived objects", "obj", req.NamespacedName)
		r.EventRecorder.Event(hso, corev1.EventTypeWarning, httpv1alpha1.ReasonApplyFailed, err.Error())
		if statusErr := r.updateStatus(ctx, hso, httpv1alpha1.PhaseError, metav1.ConditionFalse, httpv1alpha1.ReasonApplyFailed, err.Error()); statusErr != nil {
			klog.ErrorS(statusErr, "Failed to update HTTPScaledObject status", "obj", req.NamespacedName)
		}
		return ctrl.Result{}, err
	}

	r.Registry.Register(types.NewScaleTarget(hso))

	if hso.Status.Phase != httpv1alpha1.PhaseReady {
		r.EventRecorder.Eventf(hso, corev1.EventTypeNormal, httpv1alpha1.ReasonApplied, "Host %s routed to deployment %s", hso.Spec.Host, hso.Spec.ScaleTargetRef.Deployment)
	}
	return ctrl.Result{}, r.updateStatus(ctx, hso, httpv1alpha1.PhaseReady, metav1.ConditionTrue, httpv1alpha1.ReasonApplied, "derived objects applied and target registered")
}

// reject tears down what a previous valid spec produced and records why the
// object is not served. There is no requeue: a spec change or a change of the
// host owner triggers the next attempt.
func (r *HTTPScaledObjectReconciler) reject(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject, reason string, cause error) (ctrl.Result, error) {
	key := client.ObjectKeyFromObject(hso)
	klog.InfoS("Rejected HTTPScaledObject", "obj", key, "reason", reason, "err", cause)

	r.Registry.Unregister(key)
	if err := r.teardown(ctx, hso); err != nil {
		return ctrl.Result{}, err
	}
	if hso.Status.Phase != httpv1alpha1.PhaseError || !meta.IsStatusConditionPresentAndEqual(hso.Status.Conditions, httpv1alpha1.ConditionReady, metav1.ConditionFalse) {
		r.EventRecorder.Event(hso, corev1.EventTypeWarning, reason, cause.Error())
	}
	return ctrl.Result{}, r.updateStatus(ctx, hso, httpv1alpha1.PhaseError, metav1.ConditionFalse, reason, cause.Error())
}

func (r *HTTPScaledObjectReconciler) finalize(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(hso, constants.HTTPScaledObjectFinalizer) {
		return ctrl.Result{}, nil
	}
	key := client.ObjectKeyFromObject(hso)
	r.Registry.Unregister(key)

	if hso.Status.Phase != httpv1alpha1.PhaseDeleted {
		hso.Status.Phase = httpv1alpha1.PhaseDeleted
		if err := r.Status().Update(ctx, hso); err != nil && !apierrors.IsNotFound(err) {
			klog.ErrorS(err, "Failed to mark HTTPScaledObject terminating", "obj", key)
		}
	}

	if err := r.teardown(ctx, hso); err != nil {
		r.EventRecorder.Eventf(hso, corev1.EventTypeWarning, "TeardownFailed", "Failed to delete derived objects: %v", err)
		return ctrl.Result{}, err
	}
	if err := r.cleanupReferenceGrant(ctx, hso); err != nil {
		return ctrl.Result{}, err
	}

	latest := &httpv1alpha1.HTTPScaledObject{}
	if err := r.Get(ctx, key, latest); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	if _, err := patch.DropFinalizer(ctx, r.Client, latest, constants.HTTPScaledObjectFinalizer); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	klog.InfoS("Finalized HTTPScaledObject", "obj", key)
	return ctrl.Result{}, nil
}

// apply creates or updates every derived object. It is idempotent.
func (r *HTTPScaledObjectReconciler) apply(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject) error {
	if r.ScaledObjectsEnabled {
		so := &kedav1alpha1.ScaledObject{ObjectMeta: metav1.ObjectMeta{Name: hso.Name, Namespace: hso.Namespace}}
		op, err := controllerutil.CreateOrUpdate(ctx, r.Client, so, func() error {
			mutateScaledObject(so, hso, r.RuntimeConfig)
			return controllerutil.SetControllerReference(hso, so, r.Scheme)
		})
		if err != nil {
			return fmt.Errorf("failed to apply ScaledObject: %w", err)
		}
		if op != controllerutil.OperationResultNone {
			klog.InfoS("Applied ScaledObject", "obj", client.ObjectKeyFromObject(so), "operation", op)
		}
	}

	if r.RoutesEnabled {
		route := &gatewayv1.HTTPRoute{ObjectMeta: metav1.ObjectMeta{Name: routeName(hso), Namespace: hso.Namespace}}
		op, err := controllerutil.CreateOrUpdate(ctx, r.Client, route, func() error {
			mutateHTTPRoute(route, hso, r.RuntimeConfig)
			return controllerutil.SetControllerReference(hso, route, r.Scheme)
		})
		if err != nil {
			return fmt.Errorf("failed to apply HTTPRoute: %w", err)
		}
		if op != controllerutil.OperationResultNone {
			klog.InfoS("Applied HTTPRoute", "obj", client.ObjectKeyFromObject(route), "operation", op)
		}

		if needsReferenceGrant(hso.Namespace, r.RuntimeConfig) {
			grant := &gatewayv1beta1.ReferenceGrant{ObjectMeta: metav1.ObjectMeta{
				Name:      referenceGrantName(hso.Namespace),
				Namespace: r.RuntimeConfig.RoutingOpt.InterceptorNamespace,
			}}
			if _, err := controllerutil.CreateOrUpdate(ctx, r.Client, grant, func() error {
				mutateReferenceGrant(grant, hso.Namespace, r.RuntimeConfig)
				return nil
			}); err != nil {
				return fmt.Errorf("failed to apply ReferenceGrant: %w", err)
			}
		}
	}
	return nil
}

// teardown deletes the derived ScaledObject and HTTPRoute of hso.
func (r *HTTPScaledObjectReconciler) teardown(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject) error {
	var objs []client.Object
	if r.ScaledObjectsEnabled {
		objs = append(objs, &kedav1alpha1.ScaledObject{ObjectMeta: metav1.ObjectMeta{Name: hso.Name, Namespace: hso.Namespace}})
	}
	if r.RoutesEnabled {
		objs = append(objs, &gatewayv1.HTTPRoute{ObjectMeta: metav1.ObjectMeta{Name: routeName(hso), Namespace: hso.Namespace}})
	}

	for _, obj := range objs {
		err := r.Delete(ctx, obj, client.PropagationPolicy(metav1.DeletePropagationBackground))
		if err == nil {
			klog.InfoS("Deleted derived object", "obj", client.ObjectKeyFromObject(obj), "kind", fmt.Sprintf("%T", obj))
			continue
		}
		if !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete %s: %w", client.ObjectKeyFromObject(obj), err)
		}
	}
	return nil
}

// cleanupReferenceGrant removes the ReferenceGrant of the namespace of hso once
// no other HTTPScaledObject in it remains.
func (r *HTTPScaledObjectReconciler) cleanupReferenceGrant(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject) error {
	if !r.RoutesEnabled || !needsReferenceGrant(hso.Namespace, r.RuntimeConfig) {
		return nil
	}
	peers := &httpv1alpha1.HTTPScaledObjectList{}
	if err := r.List(ctx, peers, client.InNamespace(hso.Namespace)); err != nil {
		return err
	}
	for i := range peers.Items {
		if peers.Items[i].Name != hso.Name && peers.Items[i].DeletionTimestamp.IsZero() {
			return nil
		}
	}
	grant := &gatewayv1beta1.ReferenceGrant{ObjectMeta: metav1.ObjectMeta{
		Name:      referenceGrantName(hso.Namespace),
		Namespace: r.RuntimeConfig.RoutingOpt.InterceptorNamespace,
	}}
	if err := r.Delete(ctx, grant); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete ReferenceGrant: %w", err)
	}
	return nil
}

// updateStatus writes phase and the Ready condition, leaving conditions owned
// by the scale controller untouched. Unchanged status is not written.
func (r *HTTPScaledObjectReconciler) updateStatus(ctx context.Context, hso *httpv1alpha1.HTTPScaledObject,
	phase httpv1alpha1.HTTPScaledObjectPhase, status metav1.ConditionStatus, reason, message string) error {
	original := hso.Status.DeepCopy()

	hso.Status.Phase = phase
	hso.Status.ObservedGeneration = hso.Generation
	hso.Status.TargetWorkload = fmt.Sprintf("apps/v1/Deployment/%s", hso.Spec.ScaleTargetRef.Deployment)
	hso.Status.TargetService = fmt.Sprintf("%s:%d", hso.Spec.ScaleTargetRef.Service, hso.Spec.ScaleTargetRef.Port)
	meta.SetStatusCondition(&hso.Status.Conditions, metav1.Condition{
		Type:               httpv1alpha1.ConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: hso.Generation,
	})

	if equality.Semantic.DeepEqual(*original, hso.Status) {
		return nil
	}
	if err := r.Status().Update(ctx, hso); err != nil {
		return client.IgnoreNotFound(err)
	}
	return nil
}

// hostPeersHandler enqueues every HTTPScaledObject sharing a host with a
// created, deleted or re-hosted one, so a rejected duplicate is re-evaluated
// when the owner of its host goes away.
func (r *HTTPScaledObjectReconciler) hostPeersHandler() handler.EventHandler {
	enqueuePeers := func(ctx context.Context, obj client.Object, q workqueue.RateLimitingInterface) {
		hosts := HostIndexFunc(obj)
		if len(hosts) == 0 {
			return
		}
		peers := &httpv1alpha1.HTTPScaledObjectList{}
		if err := r.List(ctx, peers, client.MatchingFields{HostIndexKey: hosts[0]}); err != nil {
			klog.ErrorS(err, "Failed to list HTTPScaledObjects by host", "host", hosts[0])
			return
		}
		for i := range peers.Items {
			peer := &peers.Items[i]
			if peer.Namespace == obj.GetNamespace() && peer.Name == obj.GetName() {
				continue
			}
			q.Add(reconcile.Request{NamespacedName: k8stypes.NamespacedName{Namespace: peer.Namespace, Name: peer.Name}})
		}
	}

	return handler.Funcs{
		CreateFunc: func(ctx context.Context, e event.CreateEvent, q workqueue.RateLimitingInterface) {
			enqueuePeers(ctx, e.Object, q)
		},
		UpdateFunc: func(ctx context.Context, e event.UpdateEvent, q workqueue.RateLimitingInterface) {
			oldHSO, okOld := e.ObjectOld.(*httpv1alpha1.HTTPScaledObject)
			newHSO, okNew := e.ObjectNew.(*httpv1alpha1.HTTPScaledObject)
			if !okOld || !okNew {
				return
			}
			hostChanged := types.NormalizeHost(oldHSO.Spec.Host) != types.NormalizeHost(newHSO.Spec.Host)
			deleting := oldHSO.DeletionTimestamp.IsZero() && !newHSO.DeletionTimestamp.IsZero()
			if hostChanged || deleting {
				enqueuePeers(ctx, oldHSO, q)
			}
			if hostChanged {
				enqueuePeers(ctx, newHSO, q)
			}
		},
		DeleteFunc: func(ctx context.Context, e event.DeleteEvent, q workqueue.RateLimitingInterface) {
			enqueuePeers(ctx, e.Object, q)
		},
	}
}
