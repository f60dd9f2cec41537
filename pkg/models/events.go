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

// Event is a structured domain event delivered by the shared bus.
type Event struct {
	EventID   string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventClass is the internal classification of a bus event, decided once at
// ingress and consumed downstream instead of repeated string matching.
type EventClass int

const (
	ClassNormal EventClass = iota
	ClassError
	ClassHighRisk
	ClassSlow
)

func (c EventClass) String() string {
	switch c {
	case ClassError:
		return "error"
	case ClassHighRisk:
		return "high_risk"
	case ClassSlow:
		return "slow"
	default:
		return "normal"
	}
}

// ProcessingTime returns the processing time carried in the event payload,
// in milliseconds, if present.
func (e *Event) ProcessingTime() (float64, bool) {
	return e.floatField("processingTime")
}

// TrustDelta returns the trust-equity delta carried in the event payload, if present.
func (e *Event) TrustDelta() (float64, bool) {
	return e.floatField("trustDelta")
}

// SeverityField returns the payload severity string, if present.
func (e *Event) SeverityField() (string, bool) {
	if e.Data == nil {
		return "", false
	}

	s, ok := e.Data["severity"].(string)

	return s, ok
}

// HasErrorField reports whether the payload carries an error field.
func (e *Event) HasErrorField() bool {
	if e.Data == nil {
		return false
	}

	_, ok := e.Data["error"]

	return ok
}

func (e *Event) floatField(key string) (float64, bool) {
	if e.Data == nil {
		return 0, false
	}

	switch v := e.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
