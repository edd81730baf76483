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

package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
)

func newHTTPScaledObject(name, host string, created time.Time) *httpv1alpha1.HTTPScaledObject {
	return &httpv1alpha1.HTTPScaledObject{
		ObjectMeta: metav1.ObjectMeta{
			Name:              name,
			Namespace:         "default",
			CreationTimestamp: metav1.NewTime(created),
		},
		Spec: httpv1alpha1.HTTPScaledObjectSpec{
			Host: host,
			ScaleTargetRef: httpv1alpha1.ScaleTargetRef{
				Deployment: "app",
				Service:    "app",
				Port:       8080,
			},
		},
	}
}

func TestHTTPScaledObjectCustomValidator(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, httpv1alpha1.AddToScheme(scheme))

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := newHTTPScaledObject("t1", "h1.example.com", created)
	validator := &HTTPScaledObjectCustomValidator{
		Reader: fake.NewClientBuilder().WithScheme(scheme).WithObjects(existing).Build(),
	}
	ctx := context.Background()

	tests := map[string]struct {
		obj         *httpv1alpha1.HTTPScaledObject
		expectError bool
		errorMsg    string
		warnings    int
	}{
		"Valid New Host": {
			obj: newHTTPScaledObject("t2", "h2.example.com", time.Time{}),
		},
		"Duplicate Host": {
			obj:         newHTTPScaledObject("t2", "H1.Example.com", time.Time{}),
			expectError: true,
			errorMsg:    "claimed by default/t1",
		},
		"Invalid Port": {
			obj: func() *httpv1alpha1.HTTPScaledObject {
				hso := newHTTPScaledObject("t2", "h2.example.com", time.Time{})
				hso.Spec.ScaleTargetRef.Port = 0
				return hso
			}(),
			expectError: true,
			errorMsg:    "spec.scaleTargetRef.port",
		},
		"Deprecated Field": {
			obj: func() *httpv1alpha1.HTTPScaledObject {
				hso := newHTTPScaledObject("t2", "h2.example.com", time.Time{})
				hso.Spec.TargetPendingRequests = ptr.To[int32](10)
				return hso
			}(),
			warnings: 1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			warnings, err := validator.ValidateCreate(ctx, tt.obj)
			assert.Len(t, warnings, tt.warnings)
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, apierrors.IsInvalid(err))
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHTTPScaledObjectCustomValidatorUpdate(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, httpv1alpha1.AddToScheme(scheme))

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := newHTTPScaledObject("t1", "h1.example.com", created)
	newer := newHTTPScaledObject("t2", "h2.example.com", created.Add(time.Minute))
	validator := &HTTPScaledObjectCustomValidator{
		Reader: fake.NewClientBuilder().WithScheme(scheme).WithObjects(older, newer).Build(),
	}
	ctx := context.Background()

	// The older object may take the host of a newer one.
	moved := older.DeepCopy()
	moved.Spec.Host = "h2.example.com"
	_, err := validator.ValidateUpdate(ctx, older, moved)
	assert.NoError(t, err)

	moved = newer.DeepCopy()
	moved.Spec.Host = "h1.example.com"
	_, err = validator.ValidateUpdate(ctx, newer, moved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by default/t1")

	_, err = validator.ValidateDelete(ctx, older)
	assert.NoError(t, err)
}

func TestHTTPScaledObjectCustomValidatorIgnoresInvalidPeers(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, httpv1alpha1.AddToScheme(scheme))

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	invalid := newHTTPScaledObject("t1", "h1.example.com", created)
	invalid.Spec.ScaleTargetRef.Port = 0
	newer := newHTTPScaledObject("t2", "h2.example.com", created.Add(time.Minute))
	validator := &HTTPScaledObjectCustomValidator{
		Reader: fake.NewClientBuilder().WithScheme(scheme).WithObjects(invalid, newer).Build(),
	}
	ctx := context.Background()

	_, err := validator.ValidateCreate(ctx, newHTTPScaledObject("t3", "h1.example.com", time.Time{}))
	assert.NoError(t, err)

	moved := newer.DeepCopy()
	moved.Spec.Host = "h1.example.com"
	_, err = validator.ValidateUpdate(ctx, newer, moved)
	assert.NoError(t, err)
}
