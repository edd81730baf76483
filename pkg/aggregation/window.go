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
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value int64
	index int64
}

func (e entry) String() string {
	return fmt.Sprintf("{%d, %d}", e.index, e.value)
}

// window is a fixed size ring of buckets, one bucket per index. Buckets that
// fall out of range are evicted on write and ignored on read, so memory
// never grows past the configured size.
type window struct {
	buckets       []entry
	first, length int
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{
		buckets: make([]entry, size),
	}
}

func (w *window) Size() int {
	return len(w.buckets)
}

func (w *window) pos(i int) int {
	return i % w.Size()
}

func (w *window) evict(index int64) {
	for w.length > 0 && w.buckets[w.first].index <= index-int64(w.Size()) {
		w.first = w.pos(w.first + 1)
		w.length--
	}
}

// Add accumulates value into the bucket for index.
func (w *window) Add(value int64, index int64) {
	w.evict(index)

	if w.length > 0 {
		last := w.pos(w.first + w.length - 1)
		// A stale index from a skewed clock lands in the newest bucket.
		if w.buckets[last].index >= index {
			w.buckets[last].value += value
			return
		}
	}

	if w.length == w.Size() {
		w.first = w.pos(w.first + 1)
		w.length--
	}
	w.buckets[w.pos(w.first+w.length)] = entry{value: value, index: index}
	w.length++
}

// Sum returns the total of the buckets within range of index.
func (w *window) Sum(index int64) int64 {
	var sum int64
	for i := 0; i < w.length; i++ {
		e := w.buckets[w.pos(w.first+i)]
		if e.index > index-int64(w.Size()) && e.index <= index {
			sum += e.value
		}
	}
	return sum
}

func (w *window) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("window(size=%d, values=[", w.length))
	for i := 0; i < w.length; i++ {
		sb.WriteString(w.buckets[w.pos(w.first+i)].String())
		if i < w.length-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("])")

	return sb.String()
}

// TimeWindow counts events over a sliding time window split into buckets of
// one granularity each. It is safe for concurrent use.
type TimeWindow struct {
	mu          sync.Mutex
	window      *window
	granularity time.Duration
	duration    time.Duration
}

func NewTimeWindow(duration, granularity time.Duration) *TimeWindow {
	if granularity <= 0 {
		granularity = time.Second
	}
	if duration < granularity {
		duration = granularity
	}
	buckets := int(math.Ceil(float64(duration) / float64(granularity)))
	return &TimeWindow{
		window:      newWindow(buckets),
		granularity: granularity,
		duration:    duration,
	}
}

func (t *TimeWindow) index(now time.Time) int64 {
	return now.UnixNano() / int64(t.granularity)
}

// Record adds value to the bucket covering now.
func (t *TimeWindow) Record(now time.Time, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window.Add(value, t.index(now))
}

// Sum returns the number of events recorded within the window ending at now.
func (t *TimeWindow) Sum(now time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.Sum(t.index(now))
}

// Duration returns the window length.
func (t *TimeWindow) Duration() time.Duration {
	return t.duration
}

func (t *TimeWindow) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("TimeWindow(granularity=%v, window=%s)", t.granularity, t.window.String())
}
