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

package scaler

import (
	"errors"
	"fmt"
	"time"

	k8stypes "k8s.io/apimachinery/pkg/types"

	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// State is the scale state of one target.
type State string

const (
	// StateIdle means the target runs zero replicas.
	StateIdle State = "Idle"
	// StateScalingUp means a scale from zero is requested and not yet applied.
	StateScalingUp State = "ScalingUp"
	// StateActive means the target runs at least one replica.
	StateActive State = "Active"
	// StateScalingDown means a scale to zero is being applied.
	StateScalingDown State = "ScalingDown"
	// StateDegraded means the last scale calls failed repeatedly. Scaling
	// attempts continue and the first success leaves this state.
	StateDegraded State = "Degraded"
)

// ReplicaState is the scale controller's view of one target.
type ReplicaState struct {
	Observed            int32
	Desired             int32
	State               State
	ConsecutiveFailures int
	LastScaleTime       time.Time
	LastError           string
}

// ScaleAPIError wraps a failed read or write of the workload replica count.
type ScaleAPIError struct {
	Target k8stypes.NamespacedName
	Err    error
}

func (e *ScaleAPIError) Error() string {
	return fmt.Sprintf("scale API call for %s failed: %v", e.Target, e.Err)
}

func (e *ScaleAPIError) Unwrap() error {
	return e.Err
}

// ErrTargetNotRegistered is returned for operations on unknown targets.
var ErrTargetNotRegistered = errors.New("scale target not registered")

// TargetRegistry is the part of the scale controller the reconciler drives.
type TargetRegistry interface {
	Register(target types.ScaleTarget)
	Unregister(key k8stypes.NamespacedName)
}

// ScaleUpSignaler is how the interceptor asks for a target to be scaled
// from zero. Implementations must not block on the scale itself.
type ScaleUpSignaler interface {
	SignalScaleUp(key k8stypes.NamespacedName)
}
