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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/aggregation"
	"github.com/vllm-project/aibrix-http-scaler/pkg/routing"
)

func TestSyncerResync(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, httpv1alpha1.AddToScheme(scheme))

	rate := testHSO("t2", "h2.example.com", nil)
	rate.Spec.ScalingMetric = &httpv1alpha1.ScalingMetricSpec{
		RequestRate: &httpv1alpha1.RequestRateMetric{
			Window:      &metav1.Duration{Duration: 10 * time.Second},
			Granularity: &metav1.Duration{Duration: time.Second},
		},
	}
	t1 := testHSO("t1", "h1.example.com", nil)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(&t1, &rate).Build()

	table := routing.NewTable()
	aggregator := aggregation.NewMemoryAggregator()
	s := &Syncer{reader: c, table: table, aggregator: aggregator, keys: map[string]struct{}{}}

	s.Resync(context.Background())
	assert.True(t, table.HasSynced())
	_, ok := table.Lookup("h1.example.com")
	assert.True(t, ok)

	records, err := aggregator.Current(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 10*time.Second, records["default/t2"].Window)

	require.NoError(t, c.Delete(context.Background(), &t1))
	s.Resync(context.Background())
	_, ok = table.Lookup("h1.example.com")
	assert.False(t, ok)
	records, err = aggregator.Current(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSyncerSkipsInvalidObjects(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, httpv1alpha1.AddToScheme(scheme))

	invalid := testHSO("t1", "h1.example.com", nil)
	invalid.Spec.ScaleTargetRef.Port = 0
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(&invalid).Build()

	table := routing.NewTable()
	aggregator := aggregation.NewMemoryAggregator()
	s := &Syncer{reader: c, table: table, aggregator: aggregator, keys: map[string]struct{}{}}

	s.Resync(context.Background())
	assert.True(t, table.HasSynced())
	_, ok := table.Lookup("h1.example.com")
	assert.False(t, ok)
	records, err := aggregator.Current(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}
