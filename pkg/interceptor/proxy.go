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

package interceptor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
	"github.com/vllm-project/aibrix-http-scaler/pkg/scaler"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// UpstreamResolver returns the base URL requests for target are sent to.
type UpstreamResolver func(target types.ScaleTarget) *url.URL

// ServiceUpstream resolves a target to its in-cluster Service address.
func ServiceUpstream(target types.ScaleTarget) *url.URL {
	return &url.URL{Scheme: "http", Host: target.UpstreamHost()}
}

// Proxy routes requests by Host header and holds them while the target has no
// ready replica.
type Proxy struct {
	table         *routing.Table
	aggregator    aggregation.RequestAggregator
	signaler      scaler.ScaleUpSignaler
	readiness     ReadinessWaiter
	transport     http.RoundTripper
	conditionWait time.Duration
	upstream      UpstreamResolver

	// ctx is cancelled by Close and releases every held request.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewProxy(table *routing.Table, aggregator aggregation.RequestAggregator, signaler scaler.ScaleUpSignaler,
	readiness ReadinessWaiter, transport http.RoundTripper, conditionWait time.Duration) *Proxy {
	ctx, cancel := context.WithCancel(context.Background())
	return &Proxy{
		table:         table,
		aggregator:    aggregator,
		signaler:      signaler,
		readiness:     readiness,
		transport:     transport,
		conditionWait: conditionWait,
		upstream:      ServiceUpstream,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// WithUpstreamResolver overrides how targets are resolved to backend URLs.
func (p *Proxy) WithUpstreamResolver(resolver UpstreamResolver) *Proxy {
	p.upstream = resolver
	return p
}

// Close fails every held request with 504 and makes new holds fail at once.
func (p *Proxy) Close() {
	p.cancel()
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(constants.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(constants.RequestIDHeader, requestID)
	}
	w.Header().Set(constants.RequestIDHeader, requestID)

	target, ok := p.table.Lookup(r.Host)
	if !ok {
		unroutedTotal.Inc()
		klog.V(4).InfoS("No route for request", "requestID", requestID, "host", r.Host)
		http.Error(w, ErrRouteNotFound.Error()+": "+r.Host, http.StatusNotFound)
		return
	}

	done, err := p.aggregator.Begin(r.Context(), target.String())
	if err != nil {
		// counting is best effort, the request is still served
		klog.ErrorS(err, "Failed to record request", "requestID", requestID, "target", target.Key)
	}
	defer done()

	coldStart := false
	if p.readiness.ReadyReplicas(target.DeploymentKey()) == 0 {
		coldStart = true
		if err := p.hold(r.Context(), target, requestID); err != nil {
			requestsTotal.WithLabelValues(target.Key.Namespace, target.Key.Name, strconv.Itoa(http.StatusGatewayTimeout)).Inc()
			http.Error(w, ErrScaleTimeout.Error(), http.StatusGatewayTimeout)
			return
		}
	}

	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	p.reverseProxy(target, coldStart, requestID).ServeHTTP(rw, r)
	requestsTotal.WithLabelValues(target.Key.Namespace, target.Key.Name, strconv.Itoa(rw.status)).Inc()
}

// hold signals a scale-up and waits for a ready replica of target.
func (p *Proxy) hold(ctx context.Context, target types.ScaleTarget, requestID string) error {
	coldStartsTotal.WithLabelValues(target.Key.Namespace, target.Key.Name).Inc()
	p.signaler.SignalScaleUp(target.Key)

	timeout := target.ConditionWait
	if timeout <= 0 {
		timeout = p.conditionWait
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	start := time.Now()
	klog.V(4).InfoS("Holding request until target is ready", "requestID", requestID, "target", target.Key, "timeout", timeout)
	err := p.readiness.WaitForReady(ctx, target.DeploymentKey())
	elapsed := time.Since(start)
	if err != nil {
		holdDuration.WithLabelValues(target.Key.Namespace, target.Key.Name, "timeout").Observe(elapsed.Seconds())
		reason := "timeout"
		if p.ctx.Err() != nil {
			reason = "shutdown"
		} else if errors.Is(err, context.Canceled) {
			reason = "client gone"
		}
		klog.InfoS("Gave up waiting for target", "requestID", requestID, "target", target.Key, "waited", elapsed, "reason", reason)
		return ErrScaleTimeout
	}
	holdDuration.WithLabelValues(target.Key.Namespace, target.Key.Name, "ready").Observe(elapsed.Seconds())
	klog.V(4).InfoS("Target ready, releasing request", "requestID", requestID, "target", target.Key, "waited", elapsed)
	return nil
}

func (p *Proxy) reverseProxy(target types.ScaleTarget, coldStart bool, requestID string) *httputil.ReverseProxy {
	upstream := p.upstream(target)
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		Transport: p.transport,
		ModifyResponse: func(resp *http.Response) error {
			if coldStart {
				resp.Header.Set(constants.ColdStartHeader, "true")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			klog.ErrorS(err, "Failed to proxy request", "requestID", requestID, "target", target.Key, "upstream", upstream.Host)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection for Upgrade requests.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
