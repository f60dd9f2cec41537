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

// Push channel message types.
const (
	PushTypeMetrics    = "metrics"
	PushTypeAlert      = "alert"
	PushTypeHealth     = "health"
	PushTypeTrustScore = "trust_score"
	PushTypeAnomaly    = "anomaly"
	PushTypeHeartbeat  = "heartbeat"
	PushTypeError      = "error"
)

// PushMessage is the envelope sent to live subscribers.
type PushMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewPushMessage builds an envelope stamped with the current time.
func NewPushMessage(msgType string, data interface{}) *PushMessage {
	return &PushMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
}
