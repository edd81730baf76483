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

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func reset() {
	EnabledControllers = make(map[string]bool)
}

func TestValidateControllers(t *testing.T) {
	assert.NoError(t, ValidateControllers("*"))
	assert.NoError(t, ValidateControllers("*,-scale-controller"))
	assert.NoError(t, ValidateControllers("httpscaledobject-controller"))
	assert.Error(t, ValidateControllers("pod-autoscaler-controller"))
}

func TestInitControllers(t *testing.T) {
	tests := []struct {
		name        string
		list        string
		reconciler  bool
		scaleEnable bool
	}{
		{"wildcard", "*", true, true},
		{"wildcard then disable", "*,-scale-controller", true, false},
		{"disable then wildcard", "-scale-controller,*", true, false},
		{"single", "httpscaledobject-controller", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			defer reset()
			InitControllers(tt.list)
			assert.Equal(t, tt.reconciler, IsControllerEnabled(HTTPScaledObjectController))
			assert.Equal(t, tt.scaleEnable, IsControllerEnabled(ScaleController))
		})
	}
}
