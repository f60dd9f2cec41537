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

// Package core wires the monitoring pipeline together and owns its lifetime.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/alerts"
	"github.com/carverauto/pulse/pkg/anomaly"
	"github.com/carverauto/pulse/pkg/broadcast"
	"github.com/carverauto/pulse/pkg/bus"
	"github.com/carverauto/pulse/pkg/health"
	"github.com/carverauto/pulse/pkg/health/syschecks"
	"github.com/carverauto/pulse/pkg/ingress"
	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
	"github.com/carverauto/pulse/pkg/resilience"
	"github.com/carverauto/pulse/pkg/sink"
	"github.com/carverauto/pulse/pkg/tracker"
	"github.com/carverauto/pulse/pkg/trust"
)

// Monitor is one fully wired monitoring instance. Multiple isolated
// instances can coexist in a process; there is no global state.
type Monitor struct {
	config  *Config
	bus     bus.Bus
	tracker *tracker.Tracker
	alerts  *alerts.Manager
	health  *health.Scheduler
	anomaly *anomaly.Detector
	ingress *ingress.Ingress
	limiter *resilience.RateLimiter
	hub     *broadcast.Hub
	sink    sink.Sink
	trust   trust.Provider
	history *tracker.SnapshotRing
	logger  logger.Logger

	startedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option overrides a wired dependency, mainly for tests and embedding.
type Option func(*Monitor)

// WithBus replaces the NATS connection with a caller-supplied bus.
func WithBus(b bus.Bus) Option {
	return func(m *Monitor) { m.bus = b }
}

// WithTrustProvider replaces the static trust score source.
func WithTrustProvider(p trust.Provider) Option {
	return func(m *Monitor) { m.trust = p }
}

// WithSink replaces the snapshot sink.
func WithSink(s sink.Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// New wires a Monitor from configuration. The bus connection is established
// here; background loops start in Start.
func New(ctx context.Context, config *Config, log logger.Logger, opts ...Option) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		config:  config,
		logger:  log,
		trust:   trust.StaticProvider{Score: 1.0},
		sink:    sink.NopSink{},
		history: tracker.NewSnapshotRing(config.HistoryCapacity),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.bus == nil {
		b, err := bus.NewNATSBus(config.Bus, log)
		if err != nil {
			return nil, err
		}

		m.bus = b
	}

	if _, isNop := m.sink.(sink.NopSink); isNop && config.Sink.Enabled {
		s, err := sink.NewPGSink(ctx, config.Sink, log)
		if err != nil {
			// a store outage degrades history only, never live monitoring
			log.Warn().Err(err).Msg("Snapshot sink unavailable, continuing without persistence")
		} else {
			m.sink = s
		}
	}

	m.tracker = tracker.New(config.Tracker, log)
	m.alerts = alerts.NewManager(m.tracker, m.bus, resilience.DefaultRetryConfig(), log)
	m.anomaly = anomaly.NewDetector(config.Anomaly, log)
	m.health = health.NewScheduler(config.Health, nil, log)
	m.hub = broadcast.NewHub(config.Broadcast, m, m.alerts, log)

	m.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{},
		func(e *models.Event) string { return e.Source }, nil, log)

	m.ingress = ingress.New(config.Ingress, m.bus, m.tracker, m.alerts, m.limiter, m.anomaly.Observe, log)

	m.wire()

	return m, nil
}

// wire connects the cross-component callbacks.
func (m *Monitor) wire() {
	m.alerts.OnCreated(func(alert models.Alert) {
		m.hub.Broadcast(models.PushTypeAlert, models.NewPushMessage(models.PushTypeAlert, alert))
	})

	m.anomaly.OnAnomaly(func(a models.Anomaly) {
		m.hub.Broadcast(models.PushTypeAnomaly, models.NewPushMessage(models.PushTypeAnomaly, a))

		m.alerts.Create(context.Background(), models.SeverityWarning, a.Metric,
			fmt.Sprintf("Anomaly detected on %s", a.Metric),
			fmt.Sprintf("Value %.2f deviates from baseline mean %.2f (z=%.2f)", a.Value, a.Mean, a.ZScore),
			map[string]interface{}{
				"z_score":    a.ZScore,
				"confidence": a.Confidence,
			})
	})

	m.health.OnChange(func(report *models.HealthReport, previous models.ComponentStatus) {
		m.hub.Broadcast(models.PushTypeHealth, models.NewPushMessage(models.PushTypeHealth, report))

		severity := models.SeverityInfo

		switch report.Status {
		case models.StatusUnhealthy:
			severity = models.SeverityCritical
		case models.StatusDegraded:
			severity = models.SeverityWarning
		case models.StatusHealthy:
		}

		m.alerts.Create(context.Background(), severity, "system",
			fmt.Sprintf("System health changed to %s", report.Status),
			fmt.Sprintf("Aggregate health moved from %s to %s", previous, report.Status),
			map[string]interface{}{"previous": string(previous)})
	})

	m.ingress.OnUpdate(func(event *models.Event, _ models.EventClass) {
		if component, ok := m.tracker.Get(event.Source); ok {
			m.hub.Broadcast(models.PushTypeMetrics,
				models.NewPushMessage(models.PushTypeMetrics, component))
		}
	})
}

// Start launches every background loop. Shutdown is via Stop only; no
// failure inside the pipeline terminates the process.
func (m *Monitor) Start(ctx context.Context) error {
	m.startedAt = time.Now()

	if err := m.ingress.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ingress: %w", err)
	}

	// scheduler and detector Start calls block until stopped, so run each
	// on its own goroutine
	go func() {
		if err := m.health.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Msg("Health scheduler exited")
		}
	}()

	go func() {
		if err := m.anomaly.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Msg("Anomaly detector exited")
		}
	}()

	if err := m.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}

	m.wg.Add(2)

	go func() {
		defer m.wg.Done()
		m.aggregationLoop()
	}()

	go func() {
		defer m.wg.Done()
		m.retentionLoop()
	}()

	m.logger.Info().
		Str("listen_addr", m.config.ListenAddr).
		Msg("Monitoring core started")

	return nil
}

// Stop shuts down all loops, connections and the bus.
func (m *Monitor) Stop(ctx context.Context) error {
	m.closeOnce.Do(func() {
		close(m.done)
	})

	m.wg.Wait()

	if err := m.ingress.Stop(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to stop ingress")
	}

	if err := m.health.Stop(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to stop health scheduler")
	}

	if err := m.anomaly.Stop(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to stop anomaly detector")
	}

	if err := m.hub.Stop(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to stop broadcaster")
	}

	m.limiter.Close()

	if err := m.sink.Close(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to close snapshot sink")
	}

	if err := m.bus.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to close bus connection")
	}

	m.logger.Info().Msg("Monitoring core stopped")

	return nil
}

func (m *Monitor) aggregationLoop() {
	ticker := time.NewTicker(time.Duration(m.config.AggregationInterval))
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.aggregate()
		}
	}
}

// aggregate produces one system snapshot, records it and fans it out.
func (m *Monitor) aggregate() {
	score, err := m.trust.GetTrustScore(context.Background(), m.config.TrustEntityID, m.config.TrustEntityType)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Trust score unavailable, reusing last snapshot's score")

		if last, ok := m.history.Last(); ok {
			score = last.TrustScore
		}
	}

	snapshot := m.tracker.Aggregate(m.alerts.ActiveCount(), score)

	m.history.Append(snapshot)
	m.sink.WriteSnapshot(snapshot)

	m.hub.Broadcast(models.PushTypeMetrics, models.NewPushMessage(models.PushTypeMetrics, snapshot))
	m.hub.Broadcast(models.PushTypeTrustScore, models.NewPushMessage(models.PushTypeTrustScore, score))
}

func (m *Monitor) retentionLoop() {
	ticker := time.NewTicker(time.Duration(m.config.Alerts.SweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(m.config.Alerts.RetentionWindow))

			if pruned := m.tracker.PruneResolvedAlerts(cutoff); pruned > 0 {
				m.logger.Info().Int("pruned", pruned).Msg("Pruned resolved alerts")
			}
		}
	}
}

// GetSystemMetrics returns the latest snapshot, computing one on demand when
// the aggregation tick has not fired yet.
func (m *Monitor) GetSystemMetrics() models.SystemMetrics {
	if last, ok := m.history.Last(); ok {
		return last
	}

	score, err := m.trust.GetTrustScore(context.Background(), m.config.TrustEntityID, m.config.TrustEntityType)
	if err != nil {
		score = 0
	}

	return m.tracker.Aggregate(m.alerts.ActiveCount(), score)
}

// GetComponents returns snapshot copies of every tracked component.
func (m *Monitor) GetComponents() []models.ComponentMetrics {
	return m.tracker.List()
}

// GetActiveAlerts returns the active alerts, newest first.
func (m *Monitor) GetActiveAlerts() []models.Alert {
	return m.alerts.Active()
}

// GetHistory returns retained snapshots within the window, oldest first.
func (m *Monitor) GetHistory(window time.Duration) []models.SystemMetrics {
	return m.history.History(window)
}

// GetRecentEvents returns up to limit recently ingested events, oldest first.
func (m *Monitor) GetRecentEvents(limit int) []*models.Event {
	return m.ingress.History(limit)
}

// GetHealthResults returns the latest result per registered check.
func (m *Monitor) GetHealthResults() *models.HealthReport {
	return &models.HealthReport{
		Status:    m.health.Status(),
		Checks:    m.health.Results(),
		Timestamp: time.Now(),
	}
}

// AcknowledgeAlert marks an active alert as seen.
func (m *Monitor) AcknowledgeAlert(id string) bool {
	return m.alerts.Acknowledge(id)
}

// ResolveAlert closes an active alert.
func (m *Monitor) ResolveAlert(id string) bool {
	return m.alerts.Resolve(id)
}

// Hub exposes the broadcaster for transport adapters.
func (m *Monitor) Hub() *broadcast.Hub {
	return m.hub
}

// RegisterCheck adds a named health check.
func (m *Monitor) RegisterCheck(name string, timeout time.Duration, fn health.CheckFunc) {
	m.health.Register(name, timeout, fn)
}

// RegisterDefaultChecks adds the host-level CPU, memory and disk probes.
func (m *Monitor) RegisterDefaultChecks() {
	syschecks.RegisterDefaults(m.health)
}

// Stats summarizes the service for operators.
type Stats struct {
	UptimeSeconds     float64       `json:"uptime_seconds"`
	Ingress           ingress.Stats `json:"ingress"`
	Components        int           `json:"components"`
	ActiveAlerts      int           `json:"active_alerts"`
	Subscribers       int           `json:"subscribers"`
	HealthStatus      string        `json:"health_status"`
	SnapshotsRetained int           `json:"snapshots_retained"`
}

// Stats returns a point-in-time operational summary.
func (m *Monitor) Stats() Stats {
	return Stats{
		UptimeSeconds:     time.Since(m.startedAt).Seconds(),
		Ingress:           m.ingress.Stats(),
		Components:        len(m.tracker.List()),
		ActiveAlerts:      m.alerts.ActiveCount(),
		Subscribers:       m.hub.SubscriberCount(),
		HealthStatus:      string(m.health.Status()),
		SnapshotsRetained: m.history.Len(),
	}
}
