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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/utils"
)

func TestRedisSubscriberHandle(t *testing.T) {
	f := newControllerFixture(t, 0)
	sub := &RedisSubscriber{controller: f.controller}

	sub.handle("not-a-key")
	sub.handle("a/b/c")
	state, _ := f.controller.Snapshot(f.target.Key)
	assert.Equal(t, StateIdle, state.State)

	sub.handle(f.target.Key.String())
	state, _ = f.controller.Snapshot(f.target.Key)
	assert.Equal(t, StateScalingUp, state.State)
}

func TestRedisSignalRoundTrip(t *testing.T) {
	if os.Getenv(constants.EnvRedisHost) == "" {
		t.Skip("REDIS_HOST not set")
	}
	client := utils.GetRedisClient()
	defer client.Close()

	f := newControllerFixture(t, 0)
	sub := NewRedisSubscriber(client, f.controller)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = sub.Start(ctx)
	}()

	signaler := NewRedisSignaler(client)
	assert.Eventually(t, func() bool {
		signaler.SignalScaleUp(f.target.Key)
		state, _ := f.controller.Snapshot(f.target.Key)
		return state.State == StateScalingUp
	}, 5*time.Second, 100*time.Millisecond)
}
