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

package e2e

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	kedav1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/keda/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/test/utils/wrapper"
)

var _ = Describe("Scale to zero", Ordered, func() {
	const (
		name = "t1"
		host = "h1"
	)

	var (
		ctx        = context.Background()
		k8sClient  client.Client
		httpClient *http.Client
		key        = types.NamespacedName{Namespace: namespace, Name: name}
	)

	BeforeAll(func() {
		var err error
		k8sClient, err = newClient()
		Expect(err).NotTo(HaveOccurred())
		httpClient = newHTTPClient()

		deployment := wrapper.MakeDeployment(name, namespace).AddHTTPContainer("backend", backendImage, backendPort).Obj()
		Expect(client.IgnoreAlreadyExists(k8sClient.Create(ctx, deployment))).To(Succeed())
		Expect(client.IgnoreAlreadyExists(k8sClient.Create(ctx, wrapper.MakeService(name, namespace, backendPort)))).To(Succeed())
	})

	AfterAll(func() {
		_ = client.IgnoreNotFound(k8sClient.Delete(ctx, wrapper.MakeHTTPScaledObject(name, namespace, host).Obj()))
		_ = k8sClient.Delete(ctx, wrapper.MakeService(name, namespace, backendPort))
		_ = k8sClient.Delete(ctx, wrapper.MakeDeployment(name, namespace).Obj())
	})

	It("should become Ready after creation", func() {
		hso := wrapper.MakeHTTPScaledObject(name, namespace, host).Replicas(0, 1).Obj()
		Expect(k8sClient.Create(ctx, hso)).To(Succeed())

		Eventually(func(g Gomega) {
			got := &httpv1alpha1.HTTPScaledObject{}
			g.Expect(k8sClient.Get(ctx, key, got)).To(Succeed())
			g.Expect(got.Status.Phase).To(Equal(httpv1alpha1.PhaseReady))
		}, 20*time.Second, time.Second).Should(Succeed())

		deployment := &appsv1.Deployment{}
		Expect(k8sClient.Get(ctx, key, deployment)).To(Succeed())
		Expect(*deployment.Spec.Replicas).To(Equal(int32(0)))
	})

	It("should scale from zero on the first request", func() {
		code, latency, err := timedGet(httpClient, host)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusOK))
		Expect(latency).To(BeNumerically("<", 2000*time.Millisecond))

		deployment := &appsv1.Deployment{}
		Expect(k8sClient.Get(ctx, key, deployment)).To(Succeed())
		Expect(*deployment.Spec.Replicas).To(BeNumerically(">=", 1))
	})

	It("should serve the next request without a hold", func() {
		code, latency, err := timedGet(httpClient, host)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusOK))
		Expect(latency).To(BeNumerically("<", 500*time.Millisecond))
	})

	It("should remove the derived ScaledObject on deletion", func() {
		Expect(k8sClient.Delete(ctx, wrapper.MakeHTTPScaledObject(name, namespace, host).Obj())).To(Succeed())

		Eventually(func() bool {
			err := k8sClient.Get(ctx, key, &kedav1alpha1.ScaledObject{})
			return apierrors.IsNotFound(err)
		}, 20*time.Second, time.Second).Should(BeTrue())
	})
})
