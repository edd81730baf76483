/*
Copyright 2024 The Aibrix Team.

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

package controller

import (
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/controller/httpscaledobject"
	"github.com/vllm-project/aibrix-http-scaler/pkg/features"
	"github.com/vllm-project/aibrix-http-scaler/pkg/scaler"
)

// Borrowed logic from Kruise
// Original source: https://github.com/openkruise/kruise/blob/master/pkg/controller/controllers.go
// Reason: We have single controller-manager as well and use the controller-runtime libraries.
// 		   Instead of registering every controller in the main.go, kruise's registration flow is much cleaner.

type addFunc func(manager.Manager, config.RuntimeConfig, scaler.TargetRegistry) error

var controllerAddFuncs []addFunc

func Initialize(mgr manager.Manager) error {
	controllerAddFuncs = nil
	if features.IsControllerEnabled(features.HTTPScaledObjectController) {
		controllerAddFuncs = append(controllerAddFuncs, httpscaledobject.Add)
	}
	return nil
}

// SetupWithManager sets up the controllers with the Manager. registry receives
// the scale targets of reconciled HTTPScaledObjects.
func SetupWithManager(m manager.Manager, runtimeConfig config.RuntimeConfig, registry scaler.TargetRegistry) error {
	if registry == nil {
		registry = noopRegistry{}
	}
	for _, f := range controllerAddFuncs {
		if err := f(m, runtimeConfig, registry); err != nil {
			if kindMatchErr, ok := err.(*meta.NoKindMatchError); ok {
				klog.InfoS("CRD is not installed, its controller will perform noops!", "CRD", kindMatchErr.GroupKind)
				continue
			}
			return err
		}
	}
	return nil
}
