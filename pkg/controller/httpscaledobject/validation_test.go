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

package httpscaledobject

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func makeHSO(name, host string, created time.Time) *httpv1alpha1.HTTPScaledObject {
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

func TestValidationError(t *testing.T) {
	assert.NoError(t, ValidationError(types.Validate(makeHSO("t1", "h1.example.com", baseTime))))

	invalid := makeHSO("t1", "h1.example.com", baseTime)
	invalid.Spec.ScaleTargetRef.Port = 0
	err := ValidationError(types.Validate(invalid))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "spec.scaleTargetRef.port")
}

func TestHostOwner(t *testing.T) {
	older := makeHSO("older", "h1.example.com", baseTime)
	newer := makeHSO("newer", "H1.example.com", baseTime.Add(time.Minute))
	other := makeHSO("other", "h2.example.com", baseTime.Add(-time.Minute))

	c := fake.NewClientBuilder().
		WithScheme(newTestScheme()).
		WithObjects(older, newer, other).
		WithIndex(&httpv1alpha1.HTTPScaledObject{}, HostIndexKey, HostIndexFunc).
		Build()

	owner, err := HostOwner(context.Background(), c, newer)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "older", owner.Name)

	err = HostConflictError(newer, owner)
	assert.True(t, errors.Is(err, ErrHostConflict))
	assert.Contains(t, err.Error(), "default/older")

	owner, err = HostOwner(context.Background(), c, older)
	require.NoError(t, err)
	assert.Nil(t, owner)

	owner, err = HostOwner(context.Background(), c, other)
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestHostOwnerIgnoresInvalidPeers(t *testing.T) {
	invalid := makeHSO("bad", "h1.example.com", baseTime.Add(-time.Hour))
	invalid.Spec.ScaleTargetRef.Port = 0
	valid := makeHSO("good", "h1.example.com", baseTime)

	c := fake.NewClientBuilder().
		WithScheme(newTestScheme()).
		WithObjects(invalid, valid).
		WithIndex(&httpv1alpha1.HTTPScaledObject{}, HostIndexKey, HostIndexFunc).
		Build()

	owner, err := HostOwner(context.Background(), c, valid)
	require.NoError(t, err)
	assert.Nil(t, owner)

	// once fixed, the older object claims the host back
	fixed := &httpv1alpha1.HTTPScaledObject{}
	require.NoError(t, c.Get(context.Background(), client.ObjectKeyFromObject(invalid), fixed))
	fixed.Spec.ScaleTargetRef.Port = 8080
	require.NoError(t, c.Update(context.Background(), fixed))
	owner, err = HostOwner(context.Background(), c, valid)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "bad", owner.Name)
}

func TestHostIndexFunc(t *testing.T) {
	assert.Equal(t, []string{"h1.example.com"}, HostIndexFunc(makeHSO("t1", "H1.Example.com.", baseTime)))
	assert.Nil(t, HostIndexFunc(makeHSO("t1", "", baseTime)))
}
