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

package ingress

import "github.com/carverauto/pulse/pkg/models"

// eventRing keeps the most recent events in a fixed-capacity circular
// buffer. Callers hold the ingress lock.
type eventRing struct {
	buf   []*models.Event
	head  int
	count int
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]*models.Event, capacity)}
}

func (r *eventRing) append(event *models.Event) {
	r.buf[r.head] = event
	r.head = (r.head + 1) % len(r.buf)

	if r.count < len(r.buf) {
		r.count++
	}
}

// last returns up to limit most recent events, oldest first. limit <= 0
// returns everything retained.
func (r *eventRing) last(limit int) []*models.Event {
	if limit <= 0 || limit > r.count {
		limit = r.count
	}

	out := make([]*models.Event, 0, limit)

	start := r.head - limit
	if start < 0 {
		start += len(r.buf)
	}

	for n := 0; n < limit; n++ {
		out = append(out, r.buf[(start+n)%len(r.buf)])
	}

	return out
}
