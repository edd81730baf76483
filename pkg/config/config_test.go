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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
)

func TestRuntimeConfigDefaultsAreValid(t *testing.T) {
	cfg := NewRuntimeConfig(false)
	require.NoError(t, cfg.Validate())
}

func TestRuntimeConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RuntimeConfig)
	}{
		{"zero interval", func(c *RuntimeConfig) { c.ScaleControllerOpt.Interval = 0 }},
		{"no workers", func(c *RuntimeConfig) { c.ScaleControllerOpt.Workers = 0 }},
		{"zero threshold", func(c *RuntimeConfig) { c.ScaleControllerOpt.DegradedThreshold = 0 }},
		{"port out of range", func(c *RuntimeConfig) { c.RoutingOpt.InterceptorPort = 70000 }},
		{"missing gateway", func(c *RuntimeConfig) { c.RoutingOpt.GatewayName = "" }},
		{"scaler address without port", func(c *RuntimeConfig) { c.ScalerAddress = "scaler" }},
		{"external scaler bind address without port", func(c *RuntimeConfig) { c.ExternalScalerOpt.BindAddress = "scaler" }},
		{"zero stream interval", func(c *RuntimeConfig) { c.ExternalScalerOpt.StreamInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewRuntimeConfig(false)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExternalScalerCanBeDisabled(t *testing.T) {
	cfg := NewRuntimeConfig(false)
	cfg.ExternalScalerOpt.BindAddress = ""
	assert.NoError(t, cfg.Validate())
}

func TestNewInterceptorConfigFromEnv(t *testing.T) {
	t.Setenv(constants.EnvConditionWaitTimeout, "3s")
	t.Setenv(constants.EnvResponseHeaderTimeout, "")

	cfg := NewInterceptorConfig(":8080", ":9090", ":50051")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Second, cfg.ConditionWaitTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ResponseHeaderTimeout)
	assert.Equal(t, 100, cfg.MaxIdleConns)
}

func TestInterceptorConfigRejectsBadAddress(t *testing.T) {
	cfg := NewInterceptorConfig("8080", ":9090", ":50051")
	assert.Error(t, cfg.Validate())
}
