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

package aggregation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/vllm-project/aibrix-http-scaler/pkg/constants"
	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

const (
	// inFlightTTL expires the in-flight counter of a target that saw no
	// request start or end for that long, which bounds the leak left by an
	// interceptor that died with requests in flight.
	inFlightTTL = 10 * time.Minute
	counterTTL  = 24 * time.Hour
	doneTimeout = 2 * time.Second
)

type windowConfig struct {
	window      time.Duration
	granularity time.Duration
}

func (c windowConfig) buckets() int64 {
	return int64(math.Ceil(float64(c.window) / float64(c.granularity)))
}

// RedisAggregator keeps counters in redis so every interceptor replica and
// the scale controller share one view of the traffic. The sliding window is
// one key per bucket, expiring one window after its last write.
type RedisAggregator struct {
	client  *redis.Client
	clock   clock.PassiveClock
	prefix  string
	configs sync.Map // string -> windowConfig
}

var _ RequestAggregator = &RedisAggregator{}

func NewRedisAggregator(client *redis.Client) *RedisAggregator {
	return &RedisAggregator{
		client: client,
		clock:  clock.RealClock{},
		prefix: constants.AggregatorKeyPrefix,
	}
}

func (r *RedisAggregator) config(key string) windowConfig {
	if v, ok := r.configs.Load(key); ok {
		return v.(windowConfig)
	}
	return windowConfig{window: types.DefaultWindow, granularity: types.DefaultGranularity}
}

func (r *RedisAggregator) genKey(key, field string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, key, field)
}

func (r *RedisAggregator) bucketKey(key string, cfg windowConfig, index int64) string {
	return fmt.Sprintf("%s:%s:w:%d:%d", r.prefix, key, int64(cfg.granularity/time.Millisecond), index)
}

func (r *RedisAggregator) bucketIndex(cfg windowConfig, now time.Time) int64 {
	return now.UnixNano() / int64(cfg.granularity)
}

// bucketKeys returns the keys of every bucket inside the window ending at now,
// oldest first.
func (r *RedisAggregator) bucketKeys(key string, cfg windowConfig, now time.Time) []string {
	n := cfg.buckets()
	index := r.bucketIndex(cfg, now)
	keys := make([]string, 0, n)
	for i := index - n + 1; i <= index; i++ {
		keys = append(keys, r.bucketKey(key, cfg, i))
	}
	return keys
}

func (r *RedisAggregator) Begin(ctx context.Context, key string) (DoneFunc, error) {
	now := r.clock.Now()
	cfg := r.config(key)
	inFlightKey := r.genKey(key, "inflight")

	pipe := r.client.Pipeline()
	pipe.Incr(ctx, inFlightKey)
	pipe.Expire(ctx, inFlightKey, inFlightTTL)
	pipe.Incr(ctx, r.genKey(key, "total"))
	pipe.Expire(ctx, r.genKey(key, "total"), counterTTL)
	pipe.Set(ctx, r.genKey(key, "last"), now.UnixNano(), counterTTL)
	bucket := r.bucketKey(key, cfg, r.bucketIndex(cfg, now))
	pipe.IncrBy(ctx, bucket, 1)
	pipe.Expire(ctx, bucket, cfg.window+cfg.granularity)
	if _, err := pipe.Exec(ctx); err != nil {
		return func() {}, fmt.Errorf("failed to record request start for %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context is usually done by now.
			ctx, cancel := context.WithTimeout(context.Background(), doneTimeout)
			defer cancel()
			pipe := r.client.Pipeline()
			pipe.Decr(ctx, inFlightKey)
			pipe.Expire(ctx, inFlightKey, inFlightTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				klog.ErrorS(err, "Failed to record request end", "key", key)
			}
		})
	}, nil
}

func (r *RedisAggregator) Record(ctx context.Context, key string) (RequestRecord, error) {
	now := r.clock.Now()
	cfg := r.config(key)

	pipe := r.client.Pipeline()
	inFlight := pipe.Get(ctx, r.genKey(key, "inflight"))
	total := pipe.Get(ctx, r.genKey(key, "total"))
	last := pipe.Get(ctx, r.genKey(key, "last"))
	buckets := pipe.MGet(ctx, r.bucketKeys(key, cfg, now)...)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return RequestRecord{}, fmt.Errorf("failed to read counters for %s: %w", key, err)
	}

	rec := RequestRecord{Key: key, Window: cfg.window}
	rec.InFlight = max(int64Val(inFlight), 0)
	rec.Total = int64Val(total)
	if nanos := int64Val(last); nanos > 0 {
		rec.LastRequest = time.Unix(0, nanos)
	}
	for _, v := range buckets.Val() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			rec.WindowCount += n
		}
	}
	return rec, nil
}

func int64Val(cmd *redis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}

func (r *RedisAggregator) Current(ctx context.Context) (map[string]RequestRecord, error) {
	records := map[string]RequestRecord{}
	var firstErr error
	r.configs.Range(func(k, _ any) bool {
		key := k.(string)
		rec, err := r.Record(ctx, key)
		if err != nil {
			firstErr = err
			return false
		}
		records[key] = rec
		return true
	})
	return records, firstErr
}

func (r *RedisAggregator) Configure(key string, window, granularity time.Duration) {
	if window <= 0 {
		window = types.DefaultWindow
	}
	if granularity <= 0 {
		granularity = types.DefaultGranularity
	}
	if window < granularity {
		window = granularity
	}
	r.configs.Store(key, windowConfig{window: window, granularity: granularity})
}

func (r *RedisAggregator) Remove(key string) {
	r.configs.Delete(key)
}
