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

package wrapper

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

// DeploymentWrapper wraps core Deployment types to provide a fluent API for test construction.
type DeploymentWrapper struct {
	deployment appsv1.Deployment
}

// Obj returns the pointer to the underlying Deployment object.
func (w *DeploymentWrapper) Obj() *appsv1.Deployment {
	return &w.deployment
}

// MakeDeployment creates a new DeploymentWrapper running no replicas.
func MakeDeployment(name, namespace string) *DeploymentWrapper {
	return &DeploymentWrapper{
		deployment: appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
			},
			Spec: appsv1.DeploymentSpec{
				Replicas: ptr.To[int32](0),
				Selector: &metav1.LabelSelector{
					MatchLabels: map[string]string{"app": name},
				},
				Template: corev1.PodTemplateSpec{
					ObjectMeta: metav1.ObjectMeta{
						Labels: map[string]string{"app": name},
					},
					Spec: corev1.PodSpec{
						Containers:                    []corev1.Container{},
						TerminationGracePeriodSeconds: ptr.To[int64](1),
					},
				},
			},
		},
	}
}

// Replicas sets the replica count.
func (w *DeploymentWrapper) Replicas(replicas int32) *DeploymentWrapper {
	w.deployment.Spec.Replicas = ptr.To(replicas)
	return w
}

// AddContainer adds a container to the pod template.
func (w *DeploymentWrapper) AddContainer(container corev1.Container) *DeploymentWrapper {
	if container.ImagePullPolicy == "" {
		container.ImagePullPolicy = corev1.PullIfNotPresent
	}
	w.deployment.Spec.Template.Spec.Containers = append(
		w.deployment.Spec.Template.Spec.Containers,
		container,
	)
	return w
}

// AddHTTPContainer adds a small HTTP echo server listening on port, with a
// readiness probe so the deployment only reports ready replicas once it serves.
func (w *DeploymentWrapper) AddHTTPContainer(name, image string, port int32) *DeploymentWrapper {
	httpPort := intstr.FromInt32(port)
	return w.AddContainer(corev1.Container{
		Name:  name,
		Image: image,
		Args:  []string{"netexec", "--http-port", httpPort.String()},
		Ports: []corev1.ContainerPort{
			{
				Name:          "http",
				ContainerPort: port,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path:   "/",
					Port:   intstr.FromInt32(port),
					Scheme: corev1.URISchemeHTTP,
				},
			},
			PeriodSeconds:    1,
			SuccessThreshold: 1,
			FailureThreshold: 3,
		},
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("10m"),
				corev1.ResourceMemory: resource.MustParse("16Mi"),
			},
		},
	})
}

// MakeService creates a ClusterIP service selecting the pods of MakeDeployment(name, ...).
func MakeService(name, namespace string, port int32) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": name},
			Ports: []corev1.ServicePort{
				{
					Name:       "http",
					Port:       port,
					TargetPort: intstr.FromInt32(port),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}
