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
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/vllm-project/aibrix-http-scaler/pkg/types"
)

type counters struct {
	inFlight    atomic.Int64
	total       atomic.Int64
	lastRequest atomic.Int64 // unix nanos

	// window is swapped by Configure, readers load it once per call.
	window atomic.Pointer[TimeWindow]
}

func newCounters(window, granularity time.Duration) *counters {
	c := &counters{}
	c.window.Store(NewTimeWindow(window, granularity))
	return c
}

// MemoryAggregator keeps counters in process memory. It serves a single
// interceptor replica, typically when the interceptor runs inside the
// controller manager.
type MemoryAggregator struct {
	clock    clock.PassiveClock
	counters sync.Map // string -> *counters
}

var _ RequestAggregator = &MemoryAggregator{}

func NewMemoryAggregator() *MemoryAggregator {
	return NewMemoryAggregatorWithClock(clock.RealClock{})
}

func NewMemoryAggregatorWithClock(c clock.PassiveClock) *MemoryAggregator {
	return &MemoryAggregator{clock: c}
}

func (m *MemoryAggregator) load(key string) *counters {
	if c, ok := m.counters.Load(key); ok {
		return c.(*counters)
	}
	c, _ := m.counters.LoadOrStore(key, newCounters(types.DefaultWindow, types.DefaultGranularity))
	return c.(*counters)
}

func (m *MemoryAggregator) Begin(_ context.Context, key string) (DoneFunc, error) {
	now := m.clock.Now()
	c := m.load(key)
	c.inFlight.Add(1)
	c.total.Add(1)
	c.lastRequest.Store(now.UnixNano())
	c.window.Load().Record(now, 1)

	var once sync.Once
	return func() {
		once.Do(func() { c.inFlight.Add(-1) })
	}, nil
}

func (m *MemoryAggregator) Record(_ context.Context, key string) (RequestRecord, error) {
	v, ok := m.counters.Load(key)
	if !ok {
		return RequestRecord{Key: key, Window: types.DefaultWindow}, nil
	}
	return m.snapshot(key, v.(*counters)), nil
}

func (m *MemoryAggregator) snapshot(key string, c *counters) RequestRecord {
	now := m.clock.Now()
	w := c.window.Load()
	rec := RequestRecord{
		Key:         key,
		InFlight:    c.inFlight.Load(),
		WindowCount: w.Sum(now),
		Total:       c.total.Load(),
		Window:      w.Duration(),
	}
	if last := c.lastRequest.Load(); last > 0 {
		rec.LastRequest = time.Unix(0, last)
	}
	return rec
}

func (m *MemoryAggregator) Current(_ context.Context) (map[string]RequestRecord, error) {
	records := map[string]RequestRecord{}
	m.counters.Range(func(k, v any) bool {
		key := k.(string)
		records[key] = m.snapshot(key, v.(*counters))
		return true
	})
	return records, nil
}

func (m *MemoryAggregator) Configure(key string, window, granularity time.Duration) {
	if window <= 0 {
		window = types.DefaultWindow
	}
	if granularity <= 0 {
		granularity = types.DefaultGranularity
	}
	if v, ok := m.counters.Load(key); ok {
		c := v.(*counters)
		if current := c.window.Load(); current.Duration() == window && current.granularity == granularity {
			return
		}
		c.window.Store(NewTimeWindow(window, granularity))
		return
	}
	m.counters.LoadOrStore(key, newCounters(window, granularity))
}

func (m *MemoryAggregator) Remove(key string) {
	m.counters.Delete(key)
}
