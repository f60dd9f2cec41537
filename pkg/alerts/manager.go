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

// Package alerts owns the alert lifecycle and is the single source of truth
// for what is currently wrong.
package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
	"github.com/carverauto/pulse/pkg/resilience"
)

// Publisher publishes alert-created events back onto the shared bus.
type Publisher interface {
	PublishAlert(ctx context.Context, event *models.AlertEvent) error
}

// ComponentAttacher links a created alert to the owning component's record.
type ComponentAttacher interface {
	AttachAlert(componentID string, alert *models.Alert)
}

// CreatedFunc is notified after every created alert, for broadcast fan-out.
type CreatedFunc func(alert models.Alert)

// Manager is the only writer of alert state. All reads return snapshot
// copies so broadcasting never races a lifecycle mutation.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*models.Alert

	attacher  ComponentAttacher
	publisher Publisher
	retryCfg  resilience.RetryConfig
	onCreated CreatedFunc
	logger    logger.Logger
}

// NewManager creates an alert manager. attacher and publisher may be nil.
func NewManager(attacher ComponentAttacher, publisher Publisher, retryCfg resilience.RetryConfig, log logger.Logger) *Manager {
	if retryCfg.MaxAttempts == 0 {
		retryCfg = resilience.DefaultRetryConfig()
	}

	return &Manager{
		active:    make(map[string]*models.Alert),
		attacher:  attacher,
		publisher: publisher,
		retryCfg:  retryCfg,
		logger:    log,
	}
}

// OnCreated sets the post-create notification hook.
func (m *Manager) OnCreated(fn CreatedFunc) {
	m.mu.Lock()
	m.onCreated = fn
	m.mu.Unlock()
}

// Create registers a new active alert, attaches it to the owning component
// and publishes an alert-created event on the bus. It returns a snapshot
// copy of the alert.
func (m *Manager) Create(
	ctx context.Context,
	severity models.AlertSeverity,
	component, title, description string,
	metadata map[string]interface{},
) models.Alert {
	alert := &models.Alert{
		ID:          uuid.New().String(),
		Severity:    severity,
		Component:   component,
		Title:       title,
		Description: description,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}

	m.mu.Lock()
	m.active[alert.ID] = alert
	onCreated := m.onCreated
	m.mu.Unlock()

	if m.attacher != nil {
		m.attacher.AttachAlert(component, alert)
	}

	m.logger.Warn().
		Str("alert_id", alert.ID).
		Str("severity", string(severity)).
		Str("component", component).
		Str("title", title).
		Msg("Alert created")

	snapshot := copyAlert(alert)

	if onCreated != nil {
		onCreated(snapshot)
	}

	if m.publisher != nil {
		go m.publish(ctx, &models.AlertEvent{
			AlertID:     alert.ID,
			Severity:    alert.Severity,
			Title:       alert.Title,
			Description: alert.Description,
			Source:      alert.Component,
			Timestamp:   alert.Timestamp,
		})
	}

	return snapshot
}

// publish pushes the alert-created event with the retry policy; a final
// failure is logged and dropped, never propagated.
func (m *Manager) publish(ctx context.Context, event *models.AlertEvent) {
	err := resilience.Retry(ctx, m.retryCfg, func(ctx context.Context) error {
		return m.publisher.PublishAlert(ctx, event)
	})
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("alert_id", event.AlertID).
			Msg("Failed to publish alert event")
	}
}

// Acknowledge marks an active alert acknowledged. It reports false for
// unknown ids, including already-resolved alerts.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.active[id]
	if !ok {
		return false
	}

	alert.Acknowledged = true

	return true
}

// Resolve marks an alert resolved, stamps its resolution time and removes it
// from the active set. The alert object remains reachable through the
// component's alert list but no longer counts toward the active total.
func (m *Manager) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.active[id]
	if !ok {
		return false
	}

	now := time.Now()
	alert.Resolved = true
	alert.Acknowledged = true
	alert.ResolutionTime = &now

	delete(m.active, id)

	m.logger.Info().
		Str("alert_id", id).
		Str("component", alert.Component).
		Msg("Alert resolved")

	return true
}

// Active returns snapshot copies of the active alerts, newest first.
func (m *Manager) Active() []models.Alert {
	m.mu.RLock()

	out := make([]models.Alert, 0, len(m.active))
	for _, alert := range m.active {
		out = append(out, copyAlert(alert))
	}

	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out
}

// ActiveCount returns the cardinality of the active-alert set.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.active)
}

func copyAlert(a *models.Alert) models.Alert {
	cp := *a

	if a.ResolutionTime != nil {
		t := *a.ResolutionTime
		cp.ResolutionTime = &t
	}

	if a.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}

	return cp
}
