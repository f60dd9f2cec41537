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

package anomaly

import "math"

// Baseline is a fixed-size circular window of the most recent samples for one
// metric. It is not persisted; a restart rebuilds it from scratch.
type Baseline struct {
	samples []float64
	head    int
	count   int
}

// NewBaseline creates a window holding up to capacity samples.
func NewBaseline(capacity int) *Baseline {
	return &Baseline{samples: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest when the window is full.
func (b *Baseline) Add(v float64) {
	b.samples[b.head] = v
	b.head = (b.head + 1) % len(b.samples)

	if b.count < len(b.samples) {
		b.count++
	}
}

// Full reports whether the window has reached its capacity.
func (b *Baseline) Full() bool {
	return b.count == len(b.samples)
}

// Count returns the number of retained samples.
func (b *Baseline) Count() int {
	return b.count
}

// Mean returns the arithmetic mean over the retained samples.
func (b *Baseline) Mean() float64 {
	if b.count == 0 {
		return 0
	}

	sum := 0.0
	for i := 0; i < b.count; i++ {
		sum += b.samples[i]
	}

	return sum / float64(b.count)
}

// StdDev returns the population standard deviation over the retained samples.
func (b *Baseline) StdDev() float64 {
	if b.count == 0 {
		return 0
	}

	mean := b.Mean()
	sum := 0.0

	for i := 0; i < b.count; i++ {
		d := b.samples[i] - mean
		sum += d * d
	}

	return math.Sqrt(sum / float64(b.count))
}
