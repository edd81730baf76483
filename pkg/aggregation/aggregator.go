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
	"time"
)

// RequestRecord is a point-in-time read of the traffic counters of one target.
type RequestRecord struct {
	Key string `json:"key"`
	// InFlight is the number of requests currently held or proxied.
	InFlight int64 `json:"inFlight"`
	// WindowCount is the number of requests started within Window.
	WindowCount int64 `json:"windowCount"`
	// Total is the number of requests ever started, it never decreases.
	Total int64 `json:"total"`
	// LastRequest is when the most recent request started, zero if none.
	LastRequest time.Time     `json:"lastRequest"`
	Window      time.Duration `json:"window"`
}

// Idle reports whether the target saw no traffic within the window and has
// nothing in flight.
func (r RequestRecord) Idle() bool {
	return r.InFlight == 0 && r.WindowCount == 0
}

// Rate returns the average number of requests per second within the window.
func (r RequestRecord) Rate() float64 {
	if r.Window <= 0 {
		return 0
	}
	return float64(r.WindowCount) / r.Window.Seconds()
}

// DoneFunc ends a request started with Begin. It is safe to call more than once.
type DoneFunc func()

// RequestAggregator counts requests per target. Writes come from the
// interceptor hot path, reads from the scale controller and may lag writes
// by up to one scale tick.
type RequestAggregator interface {
	// Begin records the start of a request for key and returns the func that
	// records its end.
	Begin(ctx context.Context, key string) (DoneFunc, error)
	// Record returns the counters of key. Unknown keys yield an empty record.
	Record(ctx context.Context, key string) (RequestRecord, error)
	// Current returns the counters of every configured key.
	Current(ctx context.Context) (map[string]RequestRecord, error)
	// Configure sets the sliding window of key. Existing counts of a key
	// whose window changes are dropped.
	Configure(key string, window, granularity time.Duration)
	// Remove forgets key.
	Remove(key string)
}
