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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

func TestRateLimiterExactBudgetPerWindow(t *testing.T) {
	rejected := 0

	limiter := NewRateLimiter(RateLimiterConfig{
		MaxRequests: 5,
		Window:      100 * time.Millisecond,
	}, nil, func(string) { rejected++ }, logger.NewTestLogger())
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("atlas"), "request %d should fit the window", i+1)
	}

	assert.False(t, limiter.Allow("atlas"))
	assert.Equal(t, 1, rejected)

	// A fresh window permits the full budget again.
	time.Sleep(120 * time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("atlas"), "request %d after reset should fit", i+1)
	}

	assert.False(t, limiter.Allow("atlas"))
	assert.Equal(t, 2, rejected)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxRequests: 1,
		Window:      time.Minute,
	}, nil, nil, logger.NewTestLogger())
	defer limiter.Close()

	assert.True(t, limiter.Allow("atlas"))
	assert.False(t, limiter.Allow("atlas"))
	assert.True(t, limiter.Allow("hermes"))
}

func TestRateLimiterEventKeyFunc(t *testing.T) {
	keyFn := func(event *models.Event) string { return event.Source }

	limiter := NewRateLimiter(RateLimiterConfig{
		MaxRequests: 2,
		Window:      time.Minute,
	}, keyFn, nil, logger.NewTestLogger())
	defer limiter.Close()

	event := &models.Event{Source: "atlas", Type: "evidence.collected"}

	assert.True(t, limiter.AllowEvent(event))
	assert.True(t, limiter.AllowEvent(event))
	assert.False(t, limiter.AllowEvent(event))
}

func TestRateLimiterNilKeyFuncAllowsEverything(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxRequests: 1,
		Window:      time.Minute,
	}, nil, nil, logger.NewTestLogger())
	defer limiter.Close()

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.AllowEvent(&models.Event{Source: "atlas"}))
	}
}

func TestRateLimiterGCRemovesExpiredWindows(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxRequests: 1,
		Window:      10 * time.Millisecond,
		GCInterval:  time.Hour, // drive gc manually
	}, nil, nil, logger.NewTestLogger())
	defer limiter.Close()

	limiter.Allow("atlas")
	limiter.Allow("hermes")

	time.Sleep(20 * time.Millisecond)
	limiter.gc()

	limiter.mu.Lock()
	remaining := len(limiter.windows)
	limiter.mu.Unlock()

	assert.Zero(t, remaining)
}
