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
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	kedav1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/keda/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

type fakeRegistry struct {
	mu      sync.Mutex
	targets map[k8stypes.NamespacedName]types.ScaleTarget
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{targets: map[k8stypes.NamespacedName]types.ScaleTarget{}}
}

func (f *fakeRegistry) Register(target types.ScaleTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[target.Key] = target
}

func (f *fakeRegistry) Unregister(key k8stypes.NamespacedName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, key)
}

func (f *fakeRegistry) get(key k8stypes.NamespacedName) (types.ScaleTarget, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[key]
	return t, ok
}

var _ = Describe("HTTPScaledObject Controller", func() {
	var (
		ctx        context.Context
		c          client.Client
		registry   *fakeRegistry
		recorder   *record.FakeRecorder
		reconciler *HTTPScaledObjectReconciler
		failDelete bool
	)

	t1Key := k8stypes.NamespacedName{Namespace: "default", Name: "t1"}
	t2Key := k8stypes.NamespacedName{Namespace: "default", Name: "t2"}

	newReconcilerWith := func(objs ...client.Object) {
		failDelete = false
		c = fake.NewClientBuilder().
			WithScheme(newTestScheme()).
			WithObjects(objs...).
			WithStatusSubresource(&httpv1alpha1.HTTPScaledObject{}).
			WithIndex(&httpv1alpha1.HTTPScaledObject{}, HostIndexKey, HostIndexFunc).
			WithInterceptorFuncs(interceptor.Funcs{
				Delete: func(ctx context.Context, cl client.WithWatch, obj client.Object, opts ...client.DeleteOption) error {
					if _, ok := obj.(*kedav1alpha1.ScaledObject); ok && failDelete {
						return errors.New("apiserver unavailable")
					}
					return cl.Delete(ctx, obj, opts...)
				},
			}).
			Build()
		registry = newFakeRegistry()
		recorder = record.NewFakeRecorder(32)
		reconciler = &HTTPScaledObjectReconciler{
			Client:               c,
			Scheme:               c.Scheme(),
			EventRecorder:        recorder,
			RuntimeConfig:        config.NewRuntimeConfig(false),
			Registry:             registry,
			RoutesEnabled:        true,
			ScaledObjectsEnabled: true,
		}
	}

	reconcileKey := func(key k8stypes.NamespacedName) error {
		_, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
		return err
	}

	getHSO := func(key k8stypes.NamespacedName) *httpv1alpha1.HTTPScaledObject {
		hso := &httpv1alpha1.HTTPScaledObject{}
		Expect(c.Get(ctx, key, hso)).To(Succeed())
		return hso
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("When reconciling a valid resource", func() {
		BeforeEach(func() {
			hso := makeHSO("t1", "H1.example.com", baseTime)
			hso.Spec.Replicas = &httpv1alpha1.ReplicaStruct{Min: ptr.To[int32](0), Max: ptr.To[int32](5)}
			hso.Spec.ScaledownPeriod = ptr.To[int32](120)
			newReconcilerWith(hso)
		})

		It("should derive a paused ScaledObject", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())

			so := &kedav1alpha1.ScaledObject{}
			Expect(c.Get(ctx, t1Key, so)).To(Succeed())
			Expect(so.Annotations).To(HaveKeyWithValue(constants.KedaPausedAnnotation, "true"))
			Expect(so.Labels).To(HaveKeyWithValue(constants.HTTPScaledObjectLabelName, "t1"))
			Expect(so.Spec.ScaleTargetRef.Name).To(Equal("app"))
			Expect(so.Spec.ScaleTargetRef.Kind).To(Equal("Deployment"))
			Expect(*so.Spec.MinReplicaCount).To(Equal(int32(0)))
			Expect(*so.Spec.MaxReplicaCount).To(Equal(int32(5)))
			Expect(*so.Spec.CooldownPeriod).To(Equal(int32(120)))
			Expect(so.Spec.Triggers).To(HaveLen(1))
			Expect(so.Spec.Triggers[0].Type).To(Equal(externalPushTrigger))
			Expect(so.Spec.Triggers[0].Metadata).To(HaveKeyWithValue(constants.TriggerHostsKey, "h1.example.com"))
			Expect(so.Spec.Triggers[0].Metadata).To(HaveKeyWithValue(constants.TriggerHTTPScaledObjectKey, "t1"))
			Expect(metav1.IsControlledBy(so, getHSO(t1Key))).To(BeTrue())
		})

		It("should route the host through the interceptor", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())

			route := &gatewayv1.HTTPRoute{}
			Expect(c.Get(ctx, k8stypes.NamespacedName{Namespace: "default", Name: "t1-route"}, route)).To(Succeed())
			Expect(route.Spec.Hostnames).To(ConsistOf(gatewayv1.Hostname("h1.example.com")))
			Expect(route.Spec.ParentRefs).To(HaveLen(1))
			Expect(string(route.Spec.ParentRefs[0].Name)).To(Equal("aibrix-eg"))
			backend := route.Spec.Rules[0].BackendRefs[0].BackendObjectReference
			Expect(string(backend.Name)).To(Equal("aibrix-http-interceptor-proxy"))
			Expect(string(*backend.Namespace)).To(Equal("aibrix-system"))
			Expect(int32(*backend.Port)).To(Equal(int32(8080)))

			grant := &gatewayv1beta1.ReferenceGrant{}
			Expect(c.Get(ctx, k8stypes.NamespacedName{Namespace: "aibrix-system", Name: "aibrix-http-scaler-from-default"}, grant)).To(Succeed())
			Expect(grant.Spec.From).To(HaveLen(1))
			Expect(string(grant.Spec.From[0].Namespace)).To(Equal("default"))
		})

		It("should register the target and report Ready", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())

			target, ok := registry.get(t1Key)
			Expect(ok).To(BeTrue())
			Expect(target.Host).To(Equal("h1.example.com"))
			Expect(target.ScaledownPeriod).To(Equal(120 * time.Second))

			hso := getHSO(t1Key)
			Expect(controllerutil.ContainsFinalizer(hso, constants.HTTPScaledObjectFinalizer)).To(BeTrue())
			Expect(hso.Status.Phase).To(Equal(httpv1alpha1.PhaseReady))
			Expect(hso.Status.TargetWorkload).To(Equal("apps/v1/Deployment/app"))
			Expect(hso.Status.TargetService).To(Equal("app:8080"))
			Expect(meta.IsStatusConditionTrue(hso.Status.Conditions, httpv1alpha1.ConditionReady)).To(BeTrue())
			Expect(recorder.Events).To(Receive(ContainSubstring(httpv1alpha1.ReasonApplied)))
		})

		It("should be idempotent", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())
			so := &kedav1alpha1.ScaledObject{}
			Expect(c.Get(ctx, t1Key, so)).To(Succeed())
			soVersion := so.ResourceVersion
			hsoVersion := getHSO(t1Key).ResourceVersion

			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(c.Get(ctx, t1Key, so)).To(Succeed())
			Expect(so.ResourceVersion).To(Equal(soVersion))
			Expect(getHSO(t1Key).ResourceVersion).To(Equal(hsoVersion))
		})

		It("should tear down derived objects on deletion", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(c.Delete(ctx, getHSO(t1Key))).To(Succeed())

			Expect(reconcileKey(t1Key)).To(Succeed())
			_, ok := registry.get(t1Key)
			Expect(ok).To(BeFalse())

			err := c.Get(ctx, t1Key, &kedav1alpha1.ScaledObject{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			err = c.Get(ctx, k8stypes.NamespacedName{Namespace: "default", Name: "t1-route"}, &gatewayv1.HTTPRoute{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			err = c.Get(ctx, k8stypes.NamespacedName{Namespace: "aibrix-system", Name: "aibrix-http-scaler-from-default"}, &gatewayv1beta1.ReferenceGrant{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			err = c.Get(ctx, t1Key, &httpv1alpha1.HTTPScaledObject{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("should keep the finalizer until teardown succeeds", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(c.Delete(ctx, getHSO(t1Key))).To(Succeed())

			failDelete = true
			Expect(reconcileKey(t1Key)).NotTo(Succeed())
			hso := getHSO(t1Key)
			Expect(controllerutil.ContainsFinalizer(hso, constants.HTTPScaledObjectFinalizer)).To(BeTrue())
			Expect(hso.Status.Phase).To(Equal(httpv1alpha1.PhaseDeleted))

			failDelete = false
			Expect(reconcileKey(t1Key)).To(Succeed())
			err := c.Get(ctx, t1Key, &httpv1alpha1.HTTPScaledObject{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("should unregister a target that no longer exists", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())
			registry.Register(types.ScaleTarget{Key: t2Key})

			Expect(reconcileKey(t2Key)).To(Succeed())
			_, ok := registry.get(t2Key)
			Expect(ok).To(BeFalse())
		})
	})

	Context("When reconciling an invalid resource", func() {
		It("should report the error without deriving objects", func() {
			hso := makeHSO("t1", "h1.example.com", baseTime)
			hso.Spec.Replicas = &httpv1alpha1.ReplicaStruct{Min: ptr.To[int32](3), Max: ptr.To[int32](1)}
			newReconcilerWith(hso)

			Expect(reconcileKey(t1Key)).To(Succeed())
			got := getHSO(t1Key)
			Expect(got.Status.Phase).To(Equal(httpv1alpha1.PhaseError))
			cond := meta.FindStatusCondition(got.Status.Conditions, httpv1alpha1.ConditionReady)
			Expect(cond).NotTo(BeNil())
			Expect(cond.Status).To(Equal(metav1.ConditionFalse))
			Expect(cond.Reason).To(Equal(httpv1alpha1.ReasonInvalidSpec))

			err := c.Get(ctx, t1Key, &kedav1alpha1.ScaledObject{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			_, ok := registry.get(t1Key)
			Expect(ok).To(BeFalse())
			Expect(recorder.Events).To(Receive(ContainSubstring(httpv1alpha1.ReasonInvalidSpec)))
		})

		It("should remove derived objects when a valid spec turns invalid", func() {
			newReconcilerWith(makeHSO("t1", "h1.example.com", baseTime))
			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(c.Get(ctx, t1Key, &kedav1alpha1.ScaledObject{})).To(Succeed())

			hso := getHSO(t1Key)
			hso.Spec.ScaleTargetRef.Port = 0
			Expect(c.Update(ctx, hso)).To(Succeed())
			Expect(reconcileKey(t1Key)).To(Succeed())

			err := c.Get(ctx, t1Key, &kedav1alpha1.ScaledObject{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			_, ok := registry.get(t1Key)
			Expect(ok).To(BeFalse())
		})
	})

	Context("When two resources claim the same host", func() {
		BeforeEach(func() {
			newReconcilerWith(
				makeHSO("t1", "h1.example.com", baseTime),
				makeHSO("t2", "h1.example.com", baseTime.Add(time.Minute)),
			)
		})

		It("should serve the older one only", func() {
			Expect(reconcileKey(t2Key)).To(Succeed())
			Expect(reconcileKey(t1Key)).To(Succeed())

			Expect(getHSO(t1Key).Status.Phase).To(Equal(httpv1alpha1.PhaseReady))
			t2 := getHSO(t2Key)
			Expect(t2.Status.Phase).To(Equal(httpv1alpha1.PhaseError))
			cond := meta.FindStatusCondition(t2.Status.Conditions, httpv1alpha1.ConditionReady)
			Expect(cond).NotTo(BeNil())
			Expect(cond.Reason).To(Equal(httpv1alpha1.ReasonHostConflict))
			Expect(cond.Message).To(ContainSubstring("default/t1"))

			_, ok := registry.get(t2Key)
			Expect(ok).To(BeFalse())
			err := c.Get(ctx, t2Key, &kedav1alpha1.ScaledObject{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("should hand the host over once the owner is deleted", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(reconcileKey(t2Key)).To(Succeed())
			Expect(getHSO(t2Key).Status.Phase).To(Equal(httpv1alpha1.PhaseError))

			Expect(c.Delete(ctx, getHSO(t1Key))).To(Succeed())
			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(reconcileKey(t2Key)).To(Succeed())

			Expect(getHSO(t2Key).Status.Phase).To(Equal(httpv1alpha1.PhaseReady))
			target, ok := registry.get(t2Key)
			Expect(ok).To(BeTrue())
			Expect(target.Host).To(Equal("h1.example.com"))
			Expect(c.Get(ctx, t2Key, &kedav1alpha1.ScaledObject{})).To(Succeed())
		})
	})

	Context("When an invalid older resource claims the host of a valid one", func() {
		BeforeEach(func() {
			invalid := makeHSO("t1", "h1.example.com", baseTime)
			invalid.Spec.ScaleTargetRef.Port = 0
			newReconcilerWith(invalid, makeHSO("t2", "h1.example.com", baseTime.Add(time.Minute)))
		})

		It("should serve the valid newer one", func() {
			Expect(reconcileKey(t1Key)).To(Succeed())
			Expect(reconcileKey(t2Key)).To(Succeed())

			t1 := getHSO(t1Key)
			Expect(t1.Status.Phase).To(Equal(httpv1alpha1.PhaseError))
			Expect(meta.FindStatusCondition(t1.Status.Conditions, httpv1alpha1.ConditionReady).Reason).To(Equal(httpv1alpha1.ReasonInvalidSpec))
			_, ok := registry.get(t1Key)
			Expect(ok).To(BeFalse())

			t2 := getHSO(t2Key)
			Expect(t2.Status.Phase).To(Equal(httpv1alpha1.PhaseReady))
			Expect(meta.IsStatusConditionTrue(t2.Status.Conditions, httpv1alpha1.ConditionReady)).To(BeTrue())
			target, ok := registry.get(t2Key)
			Expect(ok).To(BeTrue())
			Expect(target.Host).To(Equal("h1.example.com"))
			Expect(c.Get(ctx, t2Key, &kedav1alpha1.ScaledObject{})).To(Succeed())
		})
	})
})
