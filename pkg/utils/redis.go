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

package utils

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
)

// GetRedisClient connects to the redis addressed by REDIS_HOST and REDIS_PORT
// and exits the process when the server does not answer a ping.
func GetRedisClient() *redis.Client {
	addr := net.JoinHostPort(
		LoadEnv(constants.EnvRedisHost, "localhost"),
		LoadEnv(constants.EnvRedisPort, "6379"),
	)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: LoadEnv(constants.EnvRedisPassword, ""),
		DB:       0, // Default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		klog.Fatalf("Error connecting to Redis at %s: %v", addr, err)
	}
	klog.InfoS("Connected to Redis", "address", addr, "response", pong)

	return client
}
