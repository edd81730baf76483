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
	"time"

	"github.com/redis/go-redis/v9"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
)

const publishTimeout = time.Second

// RedisSignaler publishes scale-up requests for a controller manager running
// in another process.
type RedisSignaler struct {
	client  *redis.Client
	channel string
}

var _ ScaleUpSignaler = &RedisSignaler{}

func NewRedisSignaler(client *redis.Client) *RedisSignaler {
	return &RedisSignaler{client: client, channel: constants.ScaleUpChannel}
}

// SignalScaleUp publishes key without waiting for the result. Every held
// request signals, so one lost message does not strand a target at zero.
func (s *RedisSignaler) SignalScaleUp(key k8stypes.NamespacedName) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.client.Publish(ctx, s.channel, key.String()).Err(); err != nil {
			klog.ErrorS(err, "Failed to publish scale-up signal", "target", key)
		}
	}()
}

// RedisSubscriber feeds scale-up requests published by interceptors into the
// scale controller.
type RedisSubscriber struct {
	client     *redis.Client
	channel    string
	controller *Controller
}

func NewRedisSubscriber(client *redis.Client, controller *Controller) *RedisSubscriber {
	return &RedisSubscriber{client: client, channel: constants.ScaleUpChannel, controller: controller}
}

// NeedLeaderElection implements manager.LeaderElectionRunnable.
func (s *RedisSubscriber) NeedLeaderElection() bool {
	return true
}

// Start subscribes until ctx is done.
func (s *RedisSubscriber) Start(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	klog.InfoS("Listening for scale-up signals", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *RedisSubscriber) handle(payload string) {
	namespace, name, err := cache.SplitMetaNamespaceKey(payload)
	if err != nil || namespace == "" || name == "" {
		klog.ErrorS(err, "Ignoring malformed scale-up signal", "payload", payload)
		return
	}
	key := k8stypes.NamespacedName{Namespace: namespace, Name: name}
	if s.controller.RequestScaleUp(key) {
		klog.V(4).InfoS("Accepted scale-up signal", "target", key)
	}
}
