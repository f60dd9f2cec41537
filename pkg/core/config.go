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

package core

import (
	"errors"
	"time"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultAggregationInterval = 10 * time.Second
	defaultRetentionWindow     = 24 * time.Hour
	defaultSweepInterval       = time.Hour
	defaultHistoryCapacity     = 360
)

var errNoListenAddr = errors.New("listen_addr is required")

// Config is the full monitoring service configuration.
type Config struct {
	ListenAddr          string                 `json:"listen_addr"`
	AllowedOrigins      []string               `json:"allowed_origins,omitempty"`
	AggregationInterval models.Duration        `json:"aggregation_interval,omitempty"`
	HistoryCapacity     int                    `json:"history_capacity,omitempty"`
	TrustEntityID       string                 `json:"trust_entity_id,omitempty"`
	TrustEntityType     string                 `json:"trust_entity_type,omitempty"`
	Bus                 models.BusConfig       `json:"bus"`
	Ingress             models.IngressConfig   `json:"ingress"`
	Tracker             models.TrackerConfig   `json:"tracker"`
	Health              models.HealthConfig    `json:"health"`
	Anomaly             models.AnomalyConfig   `json:"anomaly"`
	Alerts              models.AlertsConfig    `json:"alerts"`
	Broadcast           models.BroadcastConfig `json:"broadcast"`
	Sink                models.SinkConfig      `json:"sink"`
	Logging             *logger.Config         `json:"logging,omitempty"`
}

// Validate applies defaults and rejects impossible configurations.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errNoListenAddr
	}

	if c.AggregationInterval <= 0 {
		c.AggregationInterval = models.Duration(defaultAggregationInterval)
	}

	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultHistoryCapacity
	}

	if c.Alerts.RetentionWindow <= 0 {
		c.Alerts.RetentionWindow = models.Duration(defaultRetentionWindow)
	}

	if c.Alerts.SweepInterval <= 0 {
		c.Alerts.SweepInterval = models.Duration(defaultSweepInterval)
	}

	return nil
}
