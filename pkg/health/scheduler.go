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

// Package health runs registered checks on a fixed interval, independent of
// event flow, to catch failures that produce no events at all.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultInterval     = 30 * time.Second
	defaultCheckTimeout = 5 * time.Second
)

// CheckResult is what a probe function reports.
type CheckResult struct {
	Status  models.ComponentStatus
	Details string
}

// CheckFunc is a no-argument probe. It must be safe to call concurrently
// with itself across ticks; a run that outlives its timeout is ignored.
type CheckFunc func() CheckResult

// ChangeFunc is invoked when the aggregate status transitions, not on every
// tick that repeats the same status.
type ChangeFunc func(report *models.HealthReport, previous models.ComponentStatus)

type registeredCheck struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Scheduler runs all registered checks concurrently on each tick and keeps
// the single latest result per check name.
type Scheduler struct {
	mu         sync.Mutex
	checks     []registeredCheck
	results    map[string]*models.HealthCheckResult
	lastStatus models.ComponentStatus

	config   models.HealthConfig
	clock    Clock
	logger   logger.Logger
	onChange ChangeFunc

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler. A nil clock defaults to the real clock.
func NewScheduler(config models.HealthConfig, clock Clock, log logger.Logger) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}

	if config.Interval <= 0 {
		config.Interval = models.Duration(defaultInterval)
	}

	if config.CheckTimeout <= 0 {
		config.CheckTimeout = models.Duration(defaultCheckTimeout)
	}

	return &Scheduler{
		checks:     make([]registeredCheck, 0),
		results:    make(map[string]*models.HealthCheckResult),
		lastStatus: models.StatusHealthy,
		config:     config,
		clock:      clock,
		logger:     log,
		done:       make(chan struct{}),
	}
}

// Register adds a named check. A non-positive timeout uses the configured
// per-check default.
func (s *Scheduler) Register(name string, timeout time.Duration, fn CheckFunc) {
	if timeout <= 0 {
		timeout = time.Duration(s.config.CheckTimeout)
	}

	s.mu.Lock()
	s.checks = append(s.checks, registeredCheck{name: name, timeout: timeout, fn: fn})
	s.mu.Unlock()
}

// OnChange sets the status-transition callback.
func (s *Scheduler) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Start runs the check loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	interval := time.Duration(s.config.Interval)
	ticker := s.clock.Ticker(interval)

	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Int("checks", len(s.checks)).Msg("Starting health scheduler")

	s.wg.Add(1)
	defer s.wg.Done()

	s.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-ticker.Chan():
			s.RunChecks(ctx)
		}
	}
}

// Stop terminates the check loop and waits for it to drain.
func (s *Scheduler) Stop(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()

	return nil
}

// RunChecks executes all registered checks concurrently and records their
// results. Each check races its own timeout: a slow check that eventually
// returns is discarded once the timeout result has been recorded.
func (s *Scheduler) RunChecks(ctx context.Context) *models.HealthReport {
	s.mu.Lock()
	checks := make([]registeredCheck, len(s.checks))
	copy(checks, s.checks)
	s.mu.Unlock()

	results := make([]*models.HealthCheckResult, len(checks))

	var wg sync.WaitGroup

	for i, check := range checks {
		wg.Add(1)

		go func(idx int, c registeredCheck) {
			defer wg.Done()

			results[idx] = s.runCheck(ctx, c)
		}(i, check)
	}

	wg.Wait()

	report := &models.HealthReport{
		Status:    aggregateStatus(results),
		Checks:    results,
		Timestamp: s.clock.Now(),
	}

	s.mu.Lock()

	for _, r := range results {
		s.results[r.Name] = r
	}

	previous := s.lastStatus
	s.lastStatus = report.Status
	onChange := s.onChange
	s.mu.Unlock()

	if report.Status != previous {
		s.logger.Info().
			Str("previous", string(previous)).
			Str("current", string(report.Status)).
			Msg("Aggregate health status changed")

		if onChange != nil {
			onChange(report, previous)
		}
	}

	return report
}

// runCheck races one probe against its timeout. The probe goroutine writes
// into a buffered channel so a late return never blocks or corrupts state.
func (s *Scheduler) runCheck(_ context.Context, c registeredCheck) *models.HealthCheckResult {
	start := s.clock.Now()
	resultCh := make(chan CheckResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- CheckResult{
					Status:  models.StatusUnhealthy,
					Details: fmt.Sprintf("check panicked: %v", r),
				}
			}
		}()

		resultCh <- c.fn()
	}()

	var result CheckResult

	select {
	case result = <-resultCh:
	case <-time.After(c.timeout):
		result = CheckResult{
			Status:  models.StatusUnhealthy,
			Details: fmt.Sprintf("check timed out after %s", c.timeout),
		}
	}

	return &models.HealthCheckResult{
		Name:        c.name,
		Status:      result.Status,
		Duration:    s.clock.Now().Sub(start),
		Details:     result.Details,
		LastUpdated: s.clock.Now(),
	}
}

// Results returns snapshot copies of the latest result per check, in
// registration order.
func (s *Scheduler) Results() []*models.HealthCheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.HealthCheckResult, 0, len(s.checks))

	for _, c := range s.checks {
		if r, ok := s.results[c.name]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}

	return out
}

// Status returns the aggregate status of the most recent tick.
func (s *Scheduler) Status() models.ComponentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastStatus
}

// aggregateStatus is healthy iff all checks are healthy, unhealthy iff none
// are, degraded otherwise.
func aggregateStatus(results []*models.HealthCheckResult) models.ComponentStatus {
	if len(results) == 0 {
		return models.StatusHealthy
	}

	healthy := 0

	for _, r := range results {
		if r.Status == models.StatusHealthy {
			healthy++
		}
	}

	switch healthy {
	case len(results):
		return models.StatusHealthy
	case 0:
		return models.StatusUnhealthy
	default:
		return models.StatusDegraded
	}
}
