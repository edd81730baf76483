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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/retry"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/config"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

const (
	minRetryDelay = 5 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// targetState is the mutable state of one registered target. Every field is
// guarded by mu, which also serializes scale-up requests for the target.
type targetState struct {
	mu     sync.Mutex
	target types.ScaleTarget
	state  ReplicaState
	// pending is set by RequestScaleUp and cleared once a replica is running.
	pending     bool
	activeSince time.Time
	// reported is the status last written to the HTTPScaledObject.
	reported httpv1alpha1.HTTPScaledObjectStatus
	degraded bool
}

// Controller drives the replica count of every registered target from the
// aggregated request counters. Each registered key is reconciled every
// Interval by a fixed pool of workers; the work queue guarantees a key is
// never processed by two workers at once.
type Controller struct {
	client     client.Client
	scale      WorkloadScale
	aggregator aggregation.RequestAggregator
	recorder   record.EventRecorder
	clock      clock.PassiveClock
	opt        config.ScaleControllerOpt

	queue   workqueue.RateLimitingInterface
	targets sync.Map // k8stypes.NamespacedName -> *targetState
}

var _ TargetRegistry = &Controller{}
var _ ScaleUpSignaler = &Controller{}

// NewController returns a scale controller. It does nothing until Start.
func NewController(c client.Client, scale WorkloadScale, aggregator aggregation.RequestAggregator,
	recorder record.EventRecorder, opt config.ScaleControllerOpt) *Controller {
	return &Controller{
		client:     c,
		scale:      scale,
		aggregator: aggregator,
		recorder:   recorder,
		clock:      clock.RealClock{},
		opt:        opt,
		queue: workqueue.NewRateLimitingQueueWithConfig(
			workqueue.NewItemExponentialFailureRateLimiter(minRetryDelay, maxRetryDelay),
			workqueue.RateLimitingQueueConfig{Name: "http-scale-controller"},
		),
	}
}

func (c *Controller) load(key k8stypes.NamespacedName) *targetState {
	v, ok := c.targets.Load(key)
	if !ok {
		return nil
	}
	return v.(*targetState)
}

// Register adds or replaces a target. The scale state of an existing target
// is kept.
func (c *Controller) Register(target types.ScaleTarget) {
	c.aggregator.Configure(target.String(), target.Window, target.Granularity)

	ts := &targetState{
		target:      target,
		state:       ReplicaState{State: StateIdle},
		activeSince: c.clock.Now(),
	}
	if actual, loaded := c.targets.LoadOrStore(target.Key, ts); loaded {
		existing := actual.(*targetState)
		existing.mu.Lock()
		existing.target = target
		existing.mu.Unlock()
	} else {
		klog.InfoS("Registered scale target", "target", target.Key, "deployment", target.Deployment, "host", target.Host)
	}
	c.queue.Add(target.Key)
}

// Unregister forgets a target. A reconcile already in progress for it
// completes, no further one is started.
func (c *Controller) Unregister(key k8stypes.NamespacedName) {
	if _, loaded := c.targets.LoadAndDelete(key); !loaded {
		return
	}
	c.aggregator.Remove(key.String())
	deleteTargetMetrics(key.Namespace, key.Name)
	klog.InfoS("Unregistered scale target", "target", key)
}

// RequestScaleUp asks for a target at zero replicas to be scaled up. It
// returns false when the target is unknown, already active or already has a
// scale-up in flight, so concurrent callers trigger exactly one scale call.
func (c *Controller) RequestScaleUp(key k8stypes.NamespacedName) bool {
	ts := c.load(key)
	if ts == nil {
		return false
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.pending || ts.state.State == StateScalingUp || ts.state.State == StateActive {
		return false
	}
	ts.pending = true
	ts.activeSince = c.clock.Now()
	if ts.state.State != StateDegraded {
		ts.state.State = StateScalingUp
	}
	c.queue.Add(key)
	klog.V(4).InfoS("Scale-up requested", "target", key)
	return true
}

// SignalScaleUp implements ScaleUpSignaler for in-process interceptors.
func (c *Controller) SignalScaleUp(key k8stypes.NamespacedName) {
	c.RequestScaleUp(key)
}

// Snapshot returns the last known replica state of a target.
func (c *Controller) Snapshot(key k8stypes.NamespacedName) (ReplicaState, bool) {
	ts := c.load(key)
	if ts == nil {
		return ReplicaState{}, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state, true
}

// NeedLeaderElection implements manager.LeaderElectionRunnable. Only the leader
// may write replica counts.
func (c *Controller) NeedLeaderElection() bool {
	return true
}

// Start runs the workers until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	defer utilruntime.HandleCrash()
	defer c.queue.ShutDown()

	klog.InfoS("Starting http scale controller", "workers", c.opt.Workers, "interval", c.opt.Interval)
	for i := 0; i < c.opt.Workers; i++ {
		go wait.UntilWithContext(ctx, c.worker, time.Second)
	}

	<-ctx.Done()
	klog.InfoS("Shutting down http scale controller")
	return nil
}

func (c *Controller) worker(ctx context.Context) {
	for c.processNextWorkItem(ctx) {
	}
}

func (c *Controller) processNextWorkItem(ctx context.Context) bool {
	item, quit := c.queue.Get()
	if quit {
		return false
	}
	defer c.queue.Done(item)

	key := item.(k8stypes.NamespacedName)
	err := c.reconcileTarget(ctx, key)
	switch {
	case errors.Is(err, ErrTargetNotRegistered):
		c.queue.Forget(item)
	case err != nil:
		klog.ErrorS(err, "Failed to reconcile scale target", "target", key, "retries", c.queue.NumRequeues(item))
		c.queue.AddRateLimited(item)
	default:
		c.queue.Forget(item)
		c.queue.AddAfter(item, c.opt.Interval)
	}
	return true
}

// reconcileTarget runs one scale decision for key and applies it.
func (c *Controller) reconcileTarget(ctx context.Context, key k8stypes.NamespacedName) error {
	ts := c.load(key)
	if ts == nil {
		return ErrTargetNotRegistered
	}

	ts.mu.Lock()
	target := ts.target
	pending := ts.pending
	activeSince := ts.activeSince
	ts.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.opt.ScaleTimeout)
	defer cancel()

	observed, err := c.scale.GetReplicas(callCtx, target)
	if err != nil {
		return c.handleFailure(ctx, ts, &ScaleAPIError{Target: target.DeploymentKey(), Err: err})
	}

	record, err := c.aggregator.Record(callCtx, target.String())
	if err != nil {
		// a missing read must not scale a busy target to zero
		return fmt.Errorf("failed to read request record of %s: %w", key, err)
	}

	now := c.clock.Now()
	desired := DesiredReplicas(ScaleInput{
		Target:         target,
		Record:         record,
		Observed:       observed,
		ScaleUpPending: pending,
		ActiveSince:    activeSince,
		Now:            now,
	})
	desiredReplicas.WithLabelValues(key.Namespace, key.Name).Set(float64(desired))

	scaled := false
	if desired != observed {
		ts.mu.Lock()
		if ts.state.State != StateDegraded {
			if desired > observed {
				ts.state.State = StateScalingUp
			} else {
				ts.state.State = StateScalingDown
			}
		}
		ts.mu.Unlock()

		if err := c.scale.SetDesiredReplicas(callCtx, target, desired); err != nil {
			return c.handleFailure(ctx, ts, &ScaleAPIError{Target: target.DeploymentKey(), Err: err})
		}
		klog.InfoS("Scaled target", "target", key, "from", observed, "to", desired,
			"inFlight", record.InFlight, "windowCount", record.WindowCount)
		direction := "down"
		if desired > observed {
			direction = "up"
		}
		scaleActions.WithLabelValues(key.Namespace, key.Name, direction).Inc()
		scaled = true
	}

	ts.mu.Lock()
	wasDegraded := ts.degraded
	ts.degraded = false
	ts.state.Observed = desired
	ts.state.Desired = desired
	ts.state.ConsecutiveFailures = 0
	ts.state.LastError = ""
	if scaled {
		ts.state.LastScaleTime = now
		if observed == 0 {
			ts.activeSince = now
		}
	}
	switch {
	case desired > 0:
		ts.pending = false
		ts.state.State = StateActive
	case ts.pending:
		// requested while this decision was being made, the requeue scales up
		ts.state.State = StateScalingUp
	default:
		ts.state.State = StateIdle
	}
	ts.mu.Unlock()

	if wasDegraded {
		degradedTargets.WithLabelValues(key.Namespace, key.Name).Set(0)
		klog.InfoS("Scale target recovered", "target", key)
	}
	if scaled {
		c.event(ctx, key, corev1.EventTypeNormal, "Scaled", fmt.Sprintf("Scaled deployment %s from %d to %d", target.Deployment, observed, desired))
	}
	return c.syncStatus(ctx, ts)
}

func (c *Controller) handleFailure(ctx context.Context, ts *targetState, err error) error {
	ts.mu.Lock()
	key := ts.target.Key
	ts.state.ConsecutiveFailures++
	ts.state.LastError = err.Error()
	becameDegraded := false
	if ts.state.ConsecutiveFailures >= c.opt.DegradedThreshold {
		ts.state.State = StateDegraded
		becameDegraded = !ts.degraded
		ts.degraded = true
	}
	failures := ts.state.ConsecutiveFailures
	ts.mu.Unlock()

	scaleErrors.WithLabelValues(key.Namespace, key.Name).Inc()
	if becameDegraded {
		degradedTargets.WithLabelValues(key.Namespace, key.Name).Set(1)
		klog.ErrorS(err, "Scale target degraded", "target", key, "failures", failures)
		c.event(ctx, key, corev1.EventTypeWarning, httpv1alpha1.ReasonScaleFailures,
			fmt.Sprintf("%d consecutive scale failures: %v", failures, err))
	}
	if statusErr := c.syncStatus(ctx, ts); statusErr != nil {
		klog.ErrorS(statusErr, "Failed to update scale status", "target", key)
	}
	return err
}

func (c *Controller) event(ctx context.Context, key k8stypes.NamespacedName, eventType, reason, message string) {
	if c.recorder == nil {
		return
	}
	hso := &httpv1alpha1.HTTPScaledObject{}
	if err := c.client.Get(ctx, key, hso); err != nil {
		klog.V(4).InfoS("Skip event for missing HTTPScaledObject", "target", key, "reason", reason)
		return
	}
	c.recorder.Event(hso, eventType, reason, message)
}

// syncStatus patches the scale fields and the Degraded condition of the
// HTTPScaledObject when they changed since the last write.
func (c *Controller) syncStatus(ctx context.Context, ts *targetState) error {
	ts.mu.Lock()
	key := ts.target.Key
	state := ts.state
	degraded := ts.degraded
	reported := ts.reported
	ts.mu.Unlock()

	if reported.ScaleState == string(state.State) &&
		reported.CurrentReplicas == state.Observed &&
		reported.DesiredReplicas == state.Desired &&
		meta.IsStatusConditionTrue(reported.Conditions, httpv1alpha1.ConditionDegraded) == degraded {
		return nil
	}

	var written *httpv1alpha1.HTTPScaledObjectStatus
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		hso := &httpv1alpha1.HTTPScaledObject{}
		if err := c.client.Get(ctx, key, hso); err != nil {
			return err
		}
		if !hso.DeletionTimestamp.IsZero() {
			return nil
		}

		original := hso.DeepCopy()
		hso.Status.ScaleState = string(state.State)
		hso.Status.CurrentReplicas = state.Observed
		hso.Status.DesiredReplicas = state.Desired
		condition := metav1.Condition{
			Type:               httpv1alpha1.ConditionDegraded,
			Status:             metav1.ConditionFalse,
			Reason:             httpv1alpha1.ReasonScalingHealthy,
			Message:            "scale API calls succeed",
			ObservedGeneration: hso.Generation,
		}
		if degraded {
			condition.Status = metav1.ConditionTrue
			condition.Reason = httpv1alpha1.ReasonScaleFailures
			condition.Message = fmt.Sprintf("%d consecutive scale failures: %s", state.ConsecutiveFailures, state.LastError)
		}
		meta.SetStatusCondition(&hso.Status.Conditions, condition)

		// The resourceVersion precondition keeps a concurrent Ready write from
		// being dropped when the conditions list is replaced.
		patch := client.MergeFromWithOptions(original, client.MergeFromWithOptimisticLock{})
		if err := c.client.Status().Patch(ctx, hso, patch); err != nil {
			return err
		}
		written = hso.Status.DeepCopy()
		return nil
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to patch status of %s: %w", key, err)
	}
	if written == nil {
		return nil
	}

	ts.mu.Lock()
	ts.reported = *written
	ts.mu.Unlock()
	return nil
}
