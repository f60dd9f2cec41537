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

// AlertSeverity is the severity level of an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Alert records a single detected failure condition. An alert is active until
// resolved; acknowledging it does not remove it from the active set.
type Alert struct {
	ID             string                 `json:"id"`
	Severity       AlertSeverity          `json:"severity"`
	Component      string                 `json:"component"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Timestamp      time.Time              `json:"timestamp"`
	Acknowledged   bool                   `json:"acknowledged"`
	Resolved       bool                   `json:"resolved"`
	ResolutionTime *time.Time             `json:"resolution_time,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// AlertEvent is the outbound bus payload published whenever an alert is created.
type AlertEvent struct {
	AlertID     string        `json:"alert_id"`
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Source      string        `json:"source"`
	Timestamp   time.Time     `json:"timestamp"`
}
