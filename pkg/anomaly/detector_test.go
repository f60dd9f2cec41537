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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

func newTestDetector() *Detector {
	return NewDetector(models.AnomalyConfig{
		Interval:   models.Duration(time.Minute),
		WindowSize: 50,
		ZThreshold: 3,
	}, logger.NewTestLogger())
}

func TestNoDetectionBeforeWindowFills(t *testing.T) {
	d := newTestDetector()

	// 49 wildly varying samples must produce zero anomalies.
	for i := 0; i < 49; i++ {
		d.Observe("response_time", float64(i*1000))
		assert.Empty(t, d.DetectAll(), "no anomaly may fire before the window reaches minimum size")
	}
}

func TestDetectsOutOfBandValue(t *testing.T) {
	d := newTestDetector()

	for i := 0; i < 50; i++ {
		d.Observe("response_time", 100)
	}

	assert.Empty(t, d.DetectAll(), "stable series is not anomalous")

	// A large jump: window stddev stays small, z-score explodes.
	d.Observe("response_time", 5000)

	anomalies := d.DetectAll()
	require.Len(t, anomalies, 1)

	a := anomalies[0]
	assert.Equal(t, "response_time", a.Metric)
	assert.InDelta(t, 5000, a.Value, 0.0001)
	assert.Greater(t, a.ZScore, 3.0)
	assert.InDelta(t, 1.0, a.Confidence, 0.0001)
}

func TestStdDevFloorInZScore(t *testing.T) {
	d := newTestDetector()

	// A perfectly flat window has zero stddev; the denominator floors at 1
	// so the score stays finite.
	for i := 0; i < 50; i++ {
		d.Observe("error_rate", 10)
	}

	d.Observe("error_rate", 14)

	anomalies := d.DetectAll()
	require.Len(t, anomalies, 1)
	assert.InDelta(t, 3.92, anomalies[0].ZScore, 0.01)
	assert.Equal(t, 1.0, anomalies[0].Confidence)
}

func TestAnomalyRefiresEveryCycleWhileOutOfBand(t *testing.T) {
	d := newTestDetector()

	var reported []models.Anomaly

	d.OnAnomaly(func(a models.Anomaly) {
		reported = append(reported, a)
	})

	for i := 0; i < 50; i++ {
		d.Observe("throughput", 200)
	}

	d.Observe("throughput", 9000)

	// A persistent deviation re-fires on every detection cycle.
	for i := 0; i < 3; i++ {
		require.Len(t, d.DetectAll(), 1, "cycle %d", i)
	}

	assert.Len(t, reported, 3)
}

func TestMetricsAreIndependent(t *testing.T) {
	d := newTestDetector()

	for i := 0; i < 50; i++ {
		d.Observe("cpu", 50)
		d.Observe("memory", 60)
	}

	d.Observe("cpu", 4000)

	anomalies := d.DetectAll()
	require.Len(t, anomalies, 1)
	assert.Equal(t, "cpu", anomalies[0].Metric)
}

func TestBaselineWindowEviction(t *testing.T) {
	b := NewBaseline(3)

	b.Add(1)
	b.Add(2)
	b.Add(3)
	require.True(t, b.Full())
	assert.InDelta(t, 2.0, b.Mean(), 0.0001)

	// Oldest sample evicted: window is now {4, 2, 3}.
	b.Add(4)
	assert.Equal(t, 3, b.Count())
	assert.InDelta(t, 3.0, b.Mean(), 0.0001)
}

func TestBaselineStdDev(t *testing.T) {
	b := NewBaseline(4)

	for _, v := range []float64{2, 4, 4, 6} {
		b.Add(v)
	}

	assert.InDelta(t, 4.0, b.Mean(), 0.0001)
	assert.InDelta(t, 1.4142, b.StdDev(), 0.001)
}
