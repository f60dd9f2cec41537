/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tracker

import (
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/models"
)

const defaultRingCapacity = 360

// SnapshotRing retains the last N SystemMetrics snapshots in a fixed-capacity
// buffer with index wraparound. Oldest entries are evicted FIFO once full;
// the buffer never grows.
type SnapshotRing struct {
	mu    sync.RWMutex
	buf   []models.SystemMetrics
	head  int // next write position
	count int
}

// NewSnapshotRing creates a ring holding up to capacity snapshots.
func NewSnapshotRing(capacity int) *SnapshotRing {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}

	return &SnapshotRing{buf: make([]models.SystemMetrics, capacity)}
}

// Append records a snapshot, evicting the oldest entry when full.
func (r *SnapshotRing) Append(snapshot models.SystemMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = snapshot
	r.head = (r.head + 1) % len(r.buf)

	if r.count < len(r.buf) {
		r.count++
	}
}

// Last returns the most recent snapshot, if any.
func (r *SnapshotRing) Last() (models.SystemMetrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return models.SystemMetrics{}, false
	}

	idx := (r.head - 1 + len(r.buf)) % len(r.buf)

	return r.buf[idx], true
}

// History returns the retained snapshots no older than window, oldest first.
func (r *SnapshotRing) History(window time.Duration) []models.SystemMetrics {
	cutoff := time.Now().Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SystemMetrics, 0, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)

	for i := 0; i < r.count; i++ {
		s := r.buf[(start+i)%len(r.buf)]
		if window <= 0 || !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}

	return out
}

// Len reports how many snapshots are currently retained.
func (r *SnapshotRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.count
}
