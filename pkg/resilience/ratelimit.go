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

package resilience

import (
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultMaxRequests = 100
	defaultWindow      = time.Minute
	defaultGCInterval  = 5 * time.Minute
)

// RateLimiterConfig controls the fixed-window rate limiter.
type RateLimiterConfig struct {
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
	GCInterval  time.Duration `json:"gc_interval"`
}

// KeyFunc derives the limiter key from an event.
type KeyFunc func(event *models.Event) string

// RejectFunc is invoked for every request rejected by the limiter.
type RejectFunc func(key string)

// window counts requests since its start. The window resets entirely once
// its expiry passes; a full reset, not a decaying count, so bursts of up to
// 2x MaxRequests are possible across a window boundary.
type window struct {
	count int
	start time.Time
}

// RateLimiter applies a fixed request budget per key per window. Rejection
// is immediate; nothing is queued.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	config   RateLimiterConfig
	keyFn    KeyFunc
	onReject RejectFunc
	logger   logger.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its garbage-collection
// loop. Close must be called to stop the loop.
func NewRateLimiter(config RateLimiterConfig, keyFn KeyFunc, onReject RejectFunc, log logger.Logger) *RateLimiter {
	if config.MaxRequests <= 0 {
		config.MaxRequests = defaultMaxRequests
	}

	if config.Window <= 0 {
		config.Window = defaultWindow
	}

	if config.GCInterval <= 0 {
		config.GCInterval = defaultGCInterval
	}

	l := &RateLimiter{
		windows:  make(map[string]*window),
		config:   config,
		keyFn:    keyFn,
		onReject: onReject,
		logger:   log,
		done:     make(chan struct{}),
	}

	go l.gcLoop()

	return l
}

// Allow reports whether a request for key fits in the current window.
func (l *RateLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.config.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= l.config.MaxRequests {
		l.mu.Unlock()

		if l.onReject != nil {
			l.onReject(key)
		}

		return false
	}

	w.count++
	l.mu.Unlock()

	return true
}

// AllowEvent applies the limiter to an event using the configured key function.
func (l *RateLimiter) AllowEvent(event *models.Event) bool {
	if l.keyFn == nil {
		return true
	}

	return l.Allow(l.keyFn(event))
}

// Close stops the garbage-collection loop.
func (l *RateLimiter) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// gcLoop drops expired windows on a fixed interval rather than on every request.
func (l *RateLimiter) gcLoop() {
	ticker := time.NewTicker(l.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.gc()
		}
	}
}

func (l *RateLimiter) gc() {
	now := time.Now()

	l.mu.Lock()

	removed := 0

	for key, w := range l.windows {
		if now.Sub(w.start) >= l.config.Window {
			delete(l.windows, key)

			removed++
		}
	}

	remaining := len(l.windows)
	l.mu.Unlock()

	if removed > 0 && l.logger != nil {
		l.logger.Debug().
			Int("removed", removed).
			Int("remaining", remaining).
			Msg("Rate limiter GC swept expired windows")
	}
}
