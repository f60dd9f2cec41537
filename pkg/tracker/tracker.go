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

// Package tracker maintains the live per-component metric records derived
// from ingress events and aggregates them into system-wide snapshots.
package tracker

import (
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

// emaWeight is the smoothing factor for the response-time moving average.
const emaWeight = 0.1

const (
	defaultErrorRateThreshold    = 5.0    // percent
	defaultResponseTimeThreshold = 1000.0 // ms
)

// Tracker owns the ComponentMetrics map. It is the only writer; all reads
// return snapshot copies. Entries are created lazily and never deleted.
type Tracker struct {
	mu         sync.RWMutex // guards map shape only
	components map[string]*entry
	config     models.TrackerConfig
	logger     logger.Logger
}

// entry pairs one component's metrics with its own lock so that updating one
// component never blocks another.
type entry struct {
	mu sync.Mutex
	m  models.ComponentMetrics

	events int64
	errors int64
}

// New creates a tracker with the given thresholds. Zero thresholds fall back
// to defaults.
func New(config models.TrackerConfig, log logger.Logger) *Tracker {
	if config.ErrorRateThreshold <= 0 {
		config.ErrorRateThreshold = defaultErrorRateThreshold
	}

	if config.ResponseTimeThresholdMS <= 0 {
		config.ResponseTimeThresholdMS = defaultResponseTimeThreshold
	}

	return &Tracker{
		components: make(map[string]*entry),
		config:     config,
		logger:     log,
	}
}

// RecordEvent folds one classified event into the component's metrics.
// Updates for the same component are applied in call order; the tracker
// performs no event deduplication.
func (t *Tracker) RecordEvent(componentID string, event *models.Event, class models.EventClass) {
	e := t.entry(componentID)

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.m.LastActivity
	e.m.LastActivity = ts
	e.events++

	if class == models.ClassError {
		e.errors++
	}

	e.m.ErrorRate = float64(e.errors) / float64(e.events) * 100

	if sample, ok := event.ProcessingTime(); ok {
		e.m.ResponseTime += emaWeight * (sample - e.m.ResponseTime)
	}

	if delta, ok := event.TrustDelta(); ok {
		e.m.TrustContribution += delta
	}

	if !prev.IsZero() {
		if dt := ts.Sub(prev).Seconds(); dt > 0 {
			e.m.RequestsPerSecond += emaWeight * (1/dt - e.m.RequestsPerSecond)
		}
	}

	e.m.Status = t.deriveStatus(&e.m)

	// A slow event degrades the component immediately even while the
	// smoothed average is still under threshold.
	if class == models.ClassSlow && e.m.Status == models.StatusHealthy {
		e.m.Status = models.StatusDegraded
	}
}

// deriveStatus applies the 2x threshold rule to a component's current metrics.
func (t *Tracker) deriveStatus(m *models.ComponentMetrics) models.ComponentStatus {
	switch {
	case m.ErrorRate > 2*t.config.ErrorRateThreshold || m.ResponseTime > 2*t.config.ResponseTimeThresholdMS:
		return models.StatusUnhealthy
	case m.ErrorRate > t.config.ErrorRateThreshold || m.ResponseTime > t.config.ResponseTimeThresholdMS:
		return models.StatusDegraded
	default:
		return models.StatusHealthy
	}
}

// AttachAlert links an alert to the owning component's alert list, creating
// the component record if the alert fired before any event arrived.
func (t *Tracker) AttachAlert(componentID string, alert *models.Alert) {
	e := t.entry(componentID)

	e.mu.Lock()
	e.m.Alerts = append(e.m.Alerts, alert)
	e.mu.Unlock()
}

// PruneResolvedAlerts drops resolved alerts older than cutoff from every
// component's alert list. Active alerts are never pruned.
func (t *Tracker) PruneResolvedAlerts(cutoff time.Time) int {
	pruned := 0

	for _, e := range t.entries() {
		e.mu.Lock()

		kept := e.m.Alerts[:0]

		for _, a := range e.m.Alerts {
			if a.Resolved && a.Timestamp.Before(cutoff) {
				pruned++
				continue
			}

			kept = append(kept, a)
		}

		e.m.Alerts = kept
		e.mu.Unlock()
	}

	return pruned
}

// Get returns a snapshot copy of one component's metrics.
func (t *Tracker) Get(componentID string) (models.ComponentMetrics, bool) {
	t.mu.RLock()
	e, ok := t.components[componentID]
	t.mu.RUnlock()

	if !ok {
		return models.ComponentMetrics{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return copyMetrics(&e.m), true
}

// List returns snapshot copies of all component metrics.
func (t *Tracker) List() []models.ComponentMetrics {
	entries := t.entries()
	out := make([]models.ComponentMetrics, 0, len(entries))

	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copyMetrics(&e.m))
		e.mu.Unlock()
	}

	return out
}

// Aggregate computes an immutable SystemMetrics snapshot from the current
// component set. The caller supplies the active-alert count and trust score
// observed at snapshot time.
func (t *Tracker) Aggregate(activeAlerts int, trustScore float64) models.SystemMetrics {
	components := t.List()

	snapshot := models.SystemMetrics{
		Timestamp:     time.Now(),
		OverallStatus: models.StatusHealthy,
		Components:    len(components),
		ActiveAlerts:  activeAlerts,
		TrustScore:    trustScore,
	}

	if len(components) == 0 {
		return snapshot
	}

	healthy := 0

	var rtSum, errSum float64

	for i := range components {
		if components[i].Status == models.StatusHealthy {
			healthy++
		}

		rtSum += components[i].ResponseTime
		errSum += components[i].ErrorRate
	}

	snapshot.AvgResponseTime = rtSum / float64(len(components))
	snapshot.ErrorRate = errSum / float64(len(components))

	switch {
	case healthy == len(components):
		snapshot.OverallStatus = models.StatusHealthy
	case healthy == 0:
		snapshot.OverallStatus = models.StatusUnhealthy
	default:
		snapshot.OverallStatus = models.StatusDegraded
	}

	return snapshot
}

func (t *Tracker) entry(componentID string) *entry {
	t.mu.RLock()
	e, ok := t.components[componentID]
	t.mu.RUnlock()

	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok = t.components[componentID]; ok {
		return e
	}

	e = &entry{m: models.ComponentMetrics{
		Component: componentID,
		Status:    models.StatusHealthy,
	}}
	t.components[componentID] = e

	if t.logger != nil {
		t.logger.Debug().Str("component", componentID).Msg("Tracking new component")
	}

	return e
}

func (t *Tracker) entries() []*entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*entry, 0, len(t.components))
	for _, e := range t.components {
		out = append(out, e)
	}

	return out
}

func copyMetrics(m *models.ComponentMetrics) models.ComponentMetrics {
	cp := *m
	cp.Alerts = append([]*models.Alert(nil), m.Alerts...)

	return cp
}
