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


package kedascaler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kedacore/keda/v2/pkg/scalers/externalscaler"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

// Server implements the KEDA external scaler API for derived ScaledObjects.
// It reports the same aggregator counters the scale controller acts on, so
// an unpaused ScaledObject scales on the load seen by the interceptors.
type Server struct {
	externalscaler.UnimplementedExternalScalerServer

	reader         client.Reader
	aggregator     aggregation.RequestAggregator
	streamInterval time.Duration
}

func NewServer(reader client.Reader, aggregator aggregation.RequestAggregator, streamInterval time.Duration) *Server {
	return &Server{
		reader:         reader,
		aggregator:     aggregator,
		streamInterval: streamInterval,
	}
}

// MetricName is the external metric name of the HTTPScaledObject key.
func MetricName(key k8stypes.NamespacedName) string {
	return fmt.Sprintf("http-%s-%s", key.Namespace, key.Name)
}

// target resolves the scale target behind sor. The HTTPScaledObject name is
// read from the trigger metadata and falls back to the ScaledObject name.
func (s *Server) target(ctx context.Context, sor *externalscaler.ScaledObjectRef) (types.ScaleTarget, error) {
	if sor == nil {
		return types.ScaleTarget{}, status.Error(codes.InvalidArgument, "missing scaled object reference")
	}
	key := k8stypes.NamespacedName{Namespace: sor.Namespace, Name: sor.Name}
	if name := sor.GetScalerMetadata()[constants.TriggerHTTPScaledObjectKey]; name != "" {
		key.Name = name
	}

	hso := &httpv1alpha1.HTTPScaledObject{}
	if err := s.reader.Get(ctx, key, hso); err != nil {
		if apierrors.IsNotFound(err) {
			return types.ScaleTarget{}, status.Errorf(codes.NotFound, "HTTPScaledObject %s not found", key)
		}
		return types.ScaleTarget{}, status.Errorf(codes.Unavailable, "failed to get HTTPScaledObject %s: %v", key, err)
	}
	if !types.IsValid(hso) {
		return types.ScaleTarget{}, status.Errorf(codes.FailedPrecondition, "HTTPScaledObject %s is invalid", key)
	}
	return types.NewScaleTarget(hso), nil
}

// record reads the counters of target. Configure is idempotent for an
// unchanged window and lets replicas without a registered target read the
// window of the resource.
func (s *Server) record(ctx context.Context, target types.ScaleTarget) (aggregation.RequestRecord, error) {
	s.aggregator.Configure(target.String(), target.Window, target.Granularity)
	record, err := s.aggregator.Record(ctx, target.String())
	if err != nil {
		return aggregation.RequestRecord{}, status.Errorf(codes.Unavailable, "failed to read request counts of %s: %v", target.Key, err)
	}
	return record, nil
}

// metricValue is the load of target in the unit of its TargetValue.
func metricValue(target types.ScaleTarget, record aggregation.RequestRecord) int64 {
	if target.Metric == types.MetricRequestRate {
		return int64(math.Ceil(record.Rate()))
	}
	return record.InFlight
}

func (s *Server) IsActive(ctx context.Context, sor *externalscaler.ScaledObjectRef) (*externalscaler.IsActiveResponse, error) {
	target, err := s.target(ctx, sor)
	if err != nil {
		return nil, err
	}
	record, err := s.record(ctx, target)
	if err != nil {
		return nil, err
	}
	active := !record.Idle()
	klog.V(5).InfoS("External scaler activity", "target", target.Key, "active", active)
	return &externalscaler.IsActiveResponse{Result: active}, nil
}

// StreamIsActive pushes the activity of sor every stream interval until the
// stream ends.
func (s *Server) StreamIsActive(sor *externalscaler.ScaledObjectRef, stream externalscaler.ExternalScaler_StreamIsActiveServer) error {
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-ticker.C:
			resp, err := s.IsActive(stream.Context(), sor)
			if err != nil {
				klog.ErrorS(err, "Failed to get activity for stream", "scaledObject", sor.GetNamespace()+"/"+sor.GetName())
				return err
			}
			if err := stream.Send(resp); err != nil {
				klog.ErrorS(err, "Failed to send activity", "scaledObject", sor.GetNamespace()+"/"+sor.GetName())
				return err
			}
		}
	}
}

func (s *Server) GetMetricSpec(ctx context.Context, sor *externalscaler.ScaledObjectRef) (*externalscaler.GetMetricSpecResponse, error) {
	target, err := s.target(ctx, sor)
	if err != nil {
		return nil, err
	}
	return &externalscaler.GetMetricSpecResponse{
		MetricSpecs: []*externalscaler.MetricSpec{
			{
				MetricName: MetricName(target.Key),
				TargetSize: int64(target.TargetValue),
			},
		},
	}, nil
}

func (s *Server) GetMetrics(ctx context.Context, req *externalscaler.GetMetricsRequest) (*externalscaler.GetMetricsResponse, error) {
	target, err := s.target(ctx, req.GetScaledObjectRef())
	if err != nil {
		return nil, err
	}
	record, err := s.record(ctx, target)
	if err != nil {
		return nil, err
	}
	value := metricValue(target, record)
	klog.V(5).InfoS("External scaler metrics", "target", target.Key, "metric", target.Metric, "value", value)
	return &externalscaler.GetMetricsResponse{
		MetricValues: []*externalscaler.MetricValue{
			{
				MetricName:  MetricName(target.Key),
				MetricValue: value,
			},
		},
	}, nil
}
