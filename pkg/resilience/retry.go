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

// Package resilience provides the retry policy and rate limiter used by
// components that call transiently failing or abusable dependencies.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 100 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
	defaultMultiplier   = 2.0
)

// RetryConfig controls the exponential-backoff retry policy.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialDelay    time.Duration `json:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay"`
	Multiplier      float64       `json:"multiplier"`
	Jitter          bool          `json:"jitter"`
	RetryableErrors []string      `json:"retryable_errors"` // substring match; empty means retry everything
}

// DefaultRetryConfig returns the policy used when a component supplies none.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
		Jitter:       true,
	}
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. The last error is returned in the latter two
// cases. The inter-attempt delay respects context cancellation.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(cfg, err) {
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(cfg, attempt)):
		}
	}

	return lastErr
}

// backoffDelay computes min(maxDelay, initial*multiplier^(attempt-1)),
// optionally scaled by a uniform jitter factor in [0.5, 1.0].
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	if cfg.Jitter {
		factor := 0.5 + rand.Float64()*0.5 //nolint:gosec // jitter does not need crypto randomness
		delay = time.Duration(float64(delay) * factor)
	}

	return delay
}

func isRetryable(cfg RetryConfig, err error) bool {
	if len(cfg.RetryableErrors) == 0 {
		return true
	}

	msg := err.Error()

	for _, substr := range cfg.RetryableErrors {
		if strings.Contains(msg, substr) {
			return true
		}
	}

	return false
}
