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

// HealthCheckResult is the latest outcome of a registered check. One result
// is kept per check name, overwritten on every run.
type HealthCheckResult struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Duration    time.Duration   `json:"duration"`
	Details     string          `json:"details,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
}

// HealthReport is the aggregate view over all registered checks at one tick.
type HealthReport struct {
	Status    ComponentStatus      `json:"status"`
	Checks    []*HealthCheckResult `json:"checks"`
	Timestamp time.Time            `json:"timestamp"`
}
