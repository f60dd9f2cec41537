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

package models

import "time"

// ComponentStatus represents the derived health of a tracked component.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// ComponentMetrics is the live record for a single named component. Entries
// are created lazily on first event and never deleted; a component that goes
// silent simply stops advancing LastActivity.
type ComponentMetrics struct {
	Component         string          `json:"component"`
	Status            ComponentStatus `json:"status"`
	ResponseTime      float64         `json:"response_time_ms"`
	ErrorRate         float64         `json:"error_rate"`
	RequestsPerSecond float64         `json:"requests_per_second"`
	LastActivity      time.Time       `json:"last_activity"`
	TrustContribution float64         `json:"trust_contribution"`
	Alerts            []*Alert        `json:"alerts,omitempty"`
}

// SystemMetrics is a single aggregated snapshot over all component metrics.
// Snapshots are immutable once produced and superseded by the next one.
type SystemMetrics struct {
	Timestamp       time.Time       `json:"timestamp"`
	OverallStatus   ComponentStatus `json:"overall_status"`
	Components      int             `json:"components"`
	AvgResponseTime float64         `json:"avg_response_time_ms"`
	ErrorRate       float64         `json:"error_rate"`
	ActiveAlerts    int             `json:"active_alerts"`
	TrustScore      float64         `json:"trust_score"`
}
