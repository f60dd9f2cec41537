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

package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

// manualClock drives the scheduler loop from the test.
type manualClock struct {
	tickCh chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{tickCh: make(chan time.Time)}
}

func (*manualClock) Now() time.Time { return time.Now() }

func (c *manualClock) Ticker(time.Duration) Ticker { return &manualTicker{ch: c.tickCh} }

func (c *manualClock) tick() { c.tickCh <- time.Now() }

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) Chan() <-chan time.Time { return t.ch }
func (*manualTicker) Stop()                    {}

func healthyCheck() CheckResult {
	return CheckResult{Status: models.StatusHealthy}
}

func unhealthyCheck() CheckResult {
	return CheckResult{Status: models.StatusUnhealthy, Details: "connection refused"}
}

func newTestScheduler(clock Clock) *Scheduler {
	return NewScheduler(models.HealthConfig{
		Interval:     models.Duration(30 * time.Second),
		CheckTimeout: models.Duration(time.Second),
	}, clock, logger.NewTestLogger())
}

func TestAggregateStatusRules(t *testing.T) {
	s := newTestScheduler(nil)
	s.Register("db", 0, unhealthyCheck)
	s.Register("bus", 0, healthyCheck)
	s.Register("api", 0, healthyCheck)

	report := s.RunChecks(context.Background())

	// One failing check among healthy ones is degraded, not unhealthy.
	assert.Equal(t, models.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 3)
}

func TestAggregateAllUnhealthy(t *testing.T) {
	s := newTestScheduler(nil)
	s.Register("db", 0, unhealthyCheck)
	s.Register("bus", 0, unhealthyCheck)

	report := s.RunChecks(context.Background())
	assert.Equal(t, models.StatusUnhealthy, report.Status)
}

func TestAggregateAllHealthy(t *testing.T) {
	s := newTestScheduler(nil)
	s.Register("db", 0, healthyCheck)
	s.Register("bus", 0, healthyCheck)

	report := s.RunChecks(context.Background())
	assert.Equal(t, models.StatusHealthy, report.Status)
}

func TestStatusChangeFiresExactlyOnce(t *testing.T) {
	s := newTestScheduler(nil)
	s.Register("db", 0, unhealthyCheck)
	s.Register("bus", 0, healthyCheck)

	var changes int32

	var lastPrevious models.ComponentStatus

	s.OnChange(func(_ *models.HealthReport, previous models.ComponentStatus) {
		atomic.AddInt32(&changes, 1)

		lastPrevious = previous
	})

	// Three consecutive ticks repeating the same degraded status must alert
	// only on the first transition.
	for i := 0; i < 3; i++ {
		report := s.RunChecks(context.Background())
		assert.Equal(t, models.StatusDegraded, report.Status)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&changes))
	assert.Equal(t, models.StatusHealthy, lastPrevious)
}

func TestCheckTimeoutRace(t *testing.T) {
	s := NewScheduler(models.HealthConfig{
		Interval:     models.Duration(30 * time.Second),
		CheckTimeout: models.Duration(20 * time.Millisecond),
	}, nil, logger.NewTestLogger())

	released := make(chan struct{})

	s.Register("slow", 0, func() CheckResult {
		<-released
		return CheckResult{Status: models.StatusHealthy}
	})
	s.Register("fast", 0, healthyCheck)

	report := s.RunChecks(context.Background())
	assert.Equal(t, models.StatusDegraded, report.Status)

	results := s.Results()
	require.Len(t, results, 2)
	assert.Equal(t, models.StatusUnhealthy, results[0].Status)
	assert.Contains(t, results[0].Details, "timed out")

	// Let the stuck check return; its late result must not disturb the
	// recorded timeout outcome.
	close(released)

	time.Sleep(10 * time.Millisecond)

	results = s.Results()
	assert.Equal(t, models.StatusUnhealthy, results[0].Status)
}

func TestCheckPanicIsCaptured(t *testing.T) {
	s := newTestScheduler(nil)
	s.Register("bad", 0, func() CheckResult {
		panic("boom")
	})

	report := s.RunChecks(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, models.StatusUnhealthy, report.Checks[0].Status)
	assert.Contains(t, report.Checks[0].Details, "panicked")
}

func TestResultsOverwrittenPerRun(t *testing.T) {
	s := newTestScheduler(nil)

	status := int32(0) // 0 healthy, 1 unhealthy
	s.Register("db", 0, func() CheckResult {
		if atomic.LoadInt32(&status) == 0 {
			return healthyCheck()
		}

		return unhealthyCheck()
	})

	s.RunChecks(context.Background())
	results := s.Results()
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusHealthy, results[0].Status)

	atomic.StoreInt32(&status, 1)
	s.RunChecks(context.Background())

	results = s.Results()
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusUnhealthy, results[0].Status)
	assert.Equal(t, "connection refused", results[0].Details)
}

func TestSchedulerStartStop(t *testing.T) {
	clock := newManualClock()
	s := newTestScheduler(clock)

	var runs int32

	s.Register("db", 0, func() CheckResult {
		atomic.AddInt32(&runs, 1)
		return healthyCheck()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- s.Start(ctx)
	}()

	// Initial run plus two driven ticks.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 1
	}, time.Second, 5*time.Millisecond)

	clock.tick()
	clock.tick()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
