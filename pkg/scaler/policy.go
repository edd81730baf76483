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
	"math"
	"time"

	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// ScaleInput is everything the policy needs for one decision.
type ScaleInput struct {
	Target   types.ScaleTarget
	Record   aggregation.RequestRecord
	Observed int32
	// ScaleUpPending is set while a scale-up requested by the interceptor has
	// not yet produced a replica.
	ScaleUpPending bool
	// ActiveSince is the last time the target was known to be in use, such as
	// its registration or its last scale-up. It stands in for LastRequest
	// when the target has not received traffic yet.
	ActiveSince time.Time
	Now         time.Time
}

// load returns the load signal of the target's metric.
func (in ScaleInput) load() float64 {
	if in.Target.Metric == types.MetricRequestRate {
		return in.Record.Rate()
	}
	return float64(in.Record.InFlight)
}

// idleSince returns when the target last saw activity.
func (in ScaleInput) idleSince() time.Time {
	if in.Record.LastRequest.After(in.ActiveSince) {
		return in.Record.LastRequest
	}
	return in.ActiveSince
}

// DesiredReplicas computes the replica count for a target:
//   - with traffic, ceil(load / target value) bounded by [max(min, 1), max];
//   - without traffic, min replicas, or zero once the target has been idle for
//     the scaledown period and min is zero;
//   - a pending scale-up always yields at least one replica.
func DesiredReplicas(in ScaleInput) int32 {
	t := in.Target
	active := in.ScaleUpPending || !in.Record.Idle()

	if !active {
		if t.MinReplicas > 0 {
			return clamp(t.MinReplicas, t.MinReplicas, t.MaxReplicas)
		}
		if in.Observed == 0 {
			return 0
		}
		if in.Now.Sub(in.idleSince()) >= t.ScaledownPeriod {
			return 0
		}
		// Hold one replica until the scaledown period elapses.
		return clamp(1, 1, t.MaxReplicas)
	}

	capacity := float64(t.TargetValue)
	if capacity <= 0 {
		capacity = float64(types.DefaultTargetPendingRequests)
	}
	desired := int32(math.Ceil(in.load() / capacity))
	return clamp(desired, max(t.MinReplicas, 1), t.MaxReplicas)
}

func clamp(v, lo, hi int32) int32 {
	if hi > 0 && lo > hi {
		lo = hi
	}
	if v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}
