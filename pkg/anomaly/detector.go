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

// Package anomaly flags statistically significant deviations of watched
// metrics from their rolling baselines.
package anomaly

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultInterval   = time.Minute
	defaultWindowSize = 50
	defaultZThreshold = 3.0
)

// AnomalyFunc receives every anomaly found by a detection cycle.
type AnomalyFunc func(anomaly models.Anomaly)

type series struct {
	baseline *Baseline
	latest   float64
}

// Detector maintains per-metric rolling baselines and scores the latest
// observation against them on every detection cycle. No suppression is
// applied: a metric that stays out of band re-fires every cycle.
type Detector struct {
	mu     sync.Mutex
	series map[string]*series

	config    models.AnomalyConfig
	logger    logger.Logger
	onAnomaly AnomalyFunc

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDetector creates a detector with the given configuration.
func NewDetector(config models.AnomalyConfig, log logger.Logger) *Detector {
	if config.Interval <= 0 {
		config.Interval = models.Duration(defaultInterval)
	}

	if config.WindowSize <= 0 {
		config.WindowSize = defaultWindowSize
	}

	if config.ZThreshold <= 0 {
		config.ZThreshold = defaultZThreshold
	}

	return &Detector{
		series: make(map[string]*series),
		config: config,
		logger: log,
		done:   make(chan struct{}),
	}
}

// OnAnomaly sets the per-anomaly callback.
func (d *Detector) OnAnomaly(fn AnomalyFunc) {
	d.mu.Lock()
	d.onAnomaly = fn
	d.mu.Unlock()
}

// Observe folds one sample into the metric's baseline window, creating the
// window on first sight.
func (d *Detector) Observe(metric string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.series[metric]
	if !ok {
		s = &series{baseline: NewBaseline(d.config.WindowSize)}
		d.series[metric] = s
	}

	s.baseline.Add(value)
	s.latest = value
}

// DetectAll runs one detection cycle over every watched metric. Metrics whose
// window has not reached its minimum size are skipped to avoid false
// positives from insufficient history.
func (d *Detector) DetectAll() []models.Anomaly {
	now := time.Now()

	d.mu.Lock()

	anomalies := make([]models.Anomaly, 0)

	for metric, s := range d.series {
		if !s.baseline.Full() {
			continue
		}

		mean := s.baseline.Mean()
		stddev := s.baseline.StdDev()
		z := math.Abs(s.latest-mean) / math.Max(stddev, 1)

		if z > d.config.ZThreshold {
			anomalies = append(anomalies, models.Anomaly{
				Metric:     metric,
				Value:      s.latest,
				Mean:       mean,
				StdDev:     stddev,
				ZScore:     z,
				Confidence: math.Min(z/d.config.ZThreshold, 1),
				Timestamp:  now,
			})
		}
	}

	onAnomaly := d.onAnomaly
	d.mu.Unlock()

	for _, a := range anomalies {
		d.logger.Warn().
			Str("metric", a.Metric).
			Float64("value", a.Value).
			Float64("z_score", a.ZScore).
			Float64("confidence", a.Confidence).
			Msg("Metric anomaly detected")

		if onAnomaly != nil {
			onAnomaly(a)
		}
	}

	return anomalies
}

// Start runs the detection loop until Stop or context cancellation.
func (d *Detector) Start(ctx context.Context) error {
	interval := time.Duration(d.config.Interval)
	ticker := time.NewTicker(interval)

	defer ticker.Stop()

	d.logger.Info().Dur("interval", interval).Msg("Starting anomaly detector")

	d.wg.Add(1)
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-ticker.C:
			d.DetectAll()
		}
	}
}

// Stop terminates the detection loop and waits for it to drain.
func (d *Detector) Stop(_ context.Context) error {
	d.closeOnce.Do(func() {
		close(d.done)
	})

	d.wg.Wait()

	return nil
}
