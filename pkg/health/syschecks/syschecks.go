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

// Package syschecks provides host-resource probe functions for the health
// scheduler, backed by gopsutil.
package syschecks

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/pulse/pkg/health"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	cpuSampleInterval = 500 * time.Millisecond

	defaultCPUWarn  = 85.0
	defaultCPUCrit  = 95.0
	defaultMemWarn  = 85.0
	defaultMemCrit  = 95.0
	defaultDiskWarn = 85.0
	defaultDiskCrit = 95.0
)

// CPU returns a probe that samples total CPU usage and compares it to the
// warn/crit thresholds (percent). Non-positive thresholds use defaults.
func CPU(warn, crit float64) health.CheckFunc {
	if warn <= 0 {
		warn = defaultCPUWarn
	}

	if crit <= 0 {
		crit = defaultCPUCrit
	}

	return func() health.CheckResult {
		percents, err := cpu.Percent(cpuSampleInterval, false)
		if err != nil || len(percents) == 0 {
			return health.CheckResult{
				Status:  models.StatusUnhealthy,
				Details: fmt.Sprintf("cpu sample failed: %v", err),
			}
		}

		return thresholdResult("cpu usage", percents[0], warn, crit)
	}
}

// Memory returns a probe over virtual-memory usage percent.
func Memory(warn, crit float64) health.CheckFunc {
	if warn <= 0 {
		warn = defaultMemWarn
	}

	if crit <= 0 {
		crit = defaultMemCrit
	}

	return func() health.CheckResult {
		vmStats, err := mem.VirtualMemory()
		if err != nil {
			return health.CheckResult{
				Status:  models.StatusUnhealthy,
				Details: fmt.Sprintf("memory stats failed: %v", err),
			}
		}

		return thresholdResult("memory usage", vmStats.UsedPercent, warn, crit)
	}
}

// Disk returns a probe over usage percent of the filesystem at path.
func Disk(path string, warn, crit float64) health.CheckFunc {
	if path == "" {
		path = "/"
	}

	if warn <= 0 {
		warn = defaultDiskWarn
	}

	if crit <= 0 {
		crit = defaultDiskCrit
	}

	return func() health.CheckResult {
		usage, err := disk.Usage(path)
		if err != nil {
			return health.CheckResult{
				Status:  models.StatusUnhealthy,
				Details: fmt.Sprintf("disk stats for %s failed: %v", path, err),
			}
		}

		return thresholdResult(fmt.Sprintf("disk usage on %s", path), usage.UsedPercent, warn, crit)
	}
}

// RegisterDefaults registers the CPU, memory and root-disk probes with their
// default thresholds.
func RegisterDefaults(s *health.Scheduler) {
	s.Register("cpu", 0, CPU(0, 0))
	s.Register("memory", 0, Memory(0, 0))
	s.Register("disk", 0, Disk("/", 0, 0))
}

func thresholdResult(what string, value, warn, crit float64) health.CheckResult {
	details := fmt.Sprintf("%s at %.1f%%", what, value)

	switch {
	case value >= crit:
		return health.CheckResult{Status: models.StatusUnhealthy, Details: details}
	case value >= warn:
		return health.CheckResult{Status: models.StatusDegraded, Details: details}
	default:
		return health.CheckResult{Status: models.StatusHealthy, Details: details}
	}
}
