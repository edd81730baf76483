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

package controller

import (
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/scaler"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// noopRegistry is used when the scale controller runs in another process.
type noopRegistry struct{}

var _ scaler.TargetRegistry = noopRegistry{}

func (noopRegistry) Register(target types.ScaleTarget) {
	klog.V(4).InfoS("Scale controller disabled, target not registered", "target", target.Key)
}

func (noopRegistry) Unregister(k8stypes.NamespacedName) {}
