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

package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/pulse/pkg/models"
)

func snapshotAt(ts time.Time) models.SystemMetrics {
	return models.SystemMetrics{Timestamp: ts, OverallStatus: models.StatusHealthy}
}

func TestSnapshotRingEvictsOldestWhenFull(t *testing.T) {
	ring := NewSnapshotRing(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		ring.Append(snapshotAt(base.Add(time.Duration(i) * time.Second)))
	}

	assert.Equal(t, 3, ring.Len())

	history := ring.History(0)
	require.Len(t, history, 3)

	// Oldest first; entries 0 and 1 were evicted.
	assert.True(t, history[0].Timestamp.Equal(base.Add(2*time.Second)))
	assert.True(t, history[2].Timestamp.Equal(base.Add(4*time.Second)))
}

func TestSnapshotRingLast(t *testing.T) {
	ring := NewSnapshotRing(4)

	_, ok := ring.Last()
	assert.False(t, ok)

	latest := time.Now()
	ring.Append(snapshotAt(latest.Add(-time.Second)))
	ring.Append(snapshotAt(latest))

	last, ok := ring.Last()
	require.True(t, ok)
	assert.True(t, last.Timestamp.Equal(latest))
}

func TestSnapshotRingHistoryWindow(t *testing.T) {
	ring := NewSnapshotRing(10)
	now := time.Now()

	ring.Append(snapshotAt(now.Add(-2 * time.Hour)))
	ring.Append(snapshotAt(now.Add(-30 * time.Minute)))
	ring.Append(snapshotAt(now.Add(-time.Minute)))

	history := ring.History(time.Hour)
	require.Len(t, history, 2)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
}
