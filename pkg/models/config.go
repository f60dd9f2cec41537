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

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errInvalidDuration = errors.New("invalid duration")

// Duration is a time.Duration that unmarshals from either a duration string
// ("30s") or a numeric nanosecond value.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}

	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// IngressConfig configures event ingestion and classification.
type IngressConfig struct {
	ResponseTimeThresholdMS float64  `json:"response_time_threshold_ms"` // slow-response alert threshold
	QueueSize               int      `json:"queue_size"`                 // dispatch buffer; overflow drops
	Components              []string `json:"components"`                 // named component subscriptions
}

// TrackerConfig holds the thresholds used to derive component status.
type TrackerConfig struct {
	ErrorRateThreshold      float64 `json:"error_rate_threshold"`
	ResponseTimeThresholdMS float64 `json:"response_time_threshold_ms"`
}

// HealthConfig configures the health-check scheduler.
type HealthConfig struct {
	Interval     Duration `json:"interval"`      // default 30s
	CheckTimeout Duration `json:"check_timeout"` // default 5s, per check
}

// AnomalyConfig configures baseline windows and detection cycles.
type AnomalyConfig struct {
	Interval   Duration `json:"interval"`    // default 60s
	WindowSize int      `json:"window_size"` // default 50
	ZThreshold float64  `json:"z_threshold"` // default 3
}

// AlertsConfig configures the alert manager.
type AlertsConfig struct {
	RetentionWindow Duration `json:"retention_window"` // resolved-alert pruning horizon
	SweepInterval   Duration `json:"sweep_interval"`
}

// BroadcastConfig configures the real-time broadcaster.
type BroadcastConfig struct {
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	HeartbeatMisses   int      `json:"heartbeat_misses"`
	SendQueueSize     int      `json:"send_queue_size"`
	PollInterval      Duration `json:"poll_interval"` // poll-and-push fallback cadence
}

// BusConfig configures the shared event bus connection.
type BusConfig struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix"`
	AlertSubject  string `json:"alert_subject"`
}

// SinkConfig configures the best-effort external time-series sink.
type SinkConfig struct {
	Enabled   bool   `json:"enabled"`
	DSN       string `json:"dsn"`
	QueueSize int    `json:"queue_size"`
}
