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

package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

var errConnDead = errors.New("connection dead")

type fakeSubscriber struct {
	id string

	mu       sync.Mutex
	messages [][]byte
	sendErr  error
	closed   bool
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}

	f.messages = append(f.messages, data)

	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeSubscriber) received() []*models.PushMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.PushMessage, 0, len(f.messages))

	for _, data := range f.messages {
		var msg models.PushMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			out = append(out, &msg)
		}
	}

	return out
}

func (f *fakeSubscriber) receivedTypes() []string {
	msgs := f.received()

	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type)
	}

	return types
}

type fakeSource struct {
	metrics models.SystemMetrics
}

func (f *fakeSource) GetSystemMetrics() models.SystemMetrics { return f.metrics }

type fakeAlertController struct {
	mu       sync.Mutex
	acked    []string
	resolved []string
	ok       bool
}

func (f *fakeAlertController) Acknowledge(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.acked = append(f.acked, id)

	return f.ok
}

func (f *fakeAlertController) Resolve(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolved = append(f.resolved, id)

	return f.ok
}

func newTestHub(source DataSource, alerts AlertController) *Hub {
	return NewHub(models.BroadcastConfig{
		HeartbeatInterval: models.Duration(time.Hour), // not exercised unless a test says so
		SendQueueSize:     16,
	}, source, alerts, logger.NewTestLogger())
}

func waitForTypes(t *testing.T, sub *fakeSubscriber, want int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(sub.received()) >= want
	}, time.Second, 5*time.Millisecond)
}

func TestRegisterPushesInitialSnapshot(t *testing.T) {
	source := &fakeSource{metrics: models.SystemMetrics{OverallStatus: models.StatusHealthy, ActiveAlerts: 2}}
	h := newTestHub(source, nil)

	sub := newFakeSubscriber("c1")
	h.Register(sub)

	waitForTypes(t, sub, 1)

	msgs := sub.received()
	assert.Equal(t, models.PushTypeMetrics, msgs[0].Type)

	require.NoError(t, h.Stop(context.Background()))
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := newTestHub(nil, nil)

	first := newFakeSubscriber("c1")
	second := newFakeSubscriber("c2")
	h.Register(first)
	h.Register(second)

	h.Broadcast(models.PushTypeAlert, models.NewPushMessage(models.PushTypeAlert, nil))

	waitForTypes(t, first, 1)
	waitForTypes(t, second, 1)

	require.NoError(t, h.Stop(context.Background()))
}

func TestSendFailureEvictsOnlyThatSubscriber(t *testing.T) {
	h := newTestHub(nil, nil)

	healthy := newFakeSubscriber("ok")
	dead := newFakeSubscriber("dead")
	dead.sendErr = errConnDead

	h.Register(healthy)
	h.Register(dead)

	h.Broadcast(models.PushTypeAlert, models.NewPushMessage(models.PushTypeAlert, nil))

	waitForTypes(t, healthy, 1)

	require.Eventually(t, func() bool {
		return h.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	dead.mu.Lock()
	assert.True(t, dead.closed)
	dead.mu.Unlock()

	require.NoError(t, h.Stop(context.Background()))
}

func TestChannelFiltering(t *testing.T) {
	h := newTestHub(nil, nil)

	all := newFakeSubscriber("all")
	filtered := newFakeSubscriber("filtered")
	h.Register(all)
	h.Register(filtered)

	cmd, err := json.Marshal(Command{Action: ActionSubscribe, Channel: models.PushTypeAlert})
	require.NoError(t, err)
	h.HandleInbound("filtered", cmd)

	waitForTypes(t, filtered, 1) // subscribe confirmation

	h.Broadcast(models.PushTypeHealth, models.NewPushMessage(models.PushTypeHealth, nil))
	h.Broadcast(models.PushTypeAlert, models.NewPushMessage(models.PushTypeAlert, nil))

	waitForTypes(t, all, 2)

	require.Eventually(t, func() bool {
		types := filtered.receivedTypes()
		return len(types) == 2 && types[1] == models.PushTypeAlert
	}, time.Second, 5*time.Millisecond)

	// the health broadcast never reached the filtered client
	assert.NotContains(t, filtered.receivedTypes(), models.PushTypeHealth)

	require.NoError(t, h.Stop(context.Background()))
}

func TestAcknowledgeAndResolveDelegate(t *testing.T) {
	ctrl := &fakeAlertController{ok: true}
	h := newTestHub(nil, ctrl)

	sub := newFakeSubscriber("c1")
	h.Register(sub)

	ack, err := json.Marshal(Command{Action: ActionAcknowledgeAlert, AlertID: "a-1"})
	require.NoError(t, err)
	h.HandleInbound("c1", ack)

	res, err := json.Marshal(Command{Action: ActionResolveAlert, AlertID: "a-2"})
	require.NoError(t, err)
	h.HandleInbound("c1", res)

	waitForTypes(t, sub, 2)

	ctrl.mu.Lock()
	assert.Equal(t, []string{"a-1"}, ctrl.acked)
	assert.Equal(t, []string{"a-2"}, ctrl.resolved)
	ctrl.mu.Unlock()

	require.NoError(t, h.Stop(context.Background()))
}

func TestGetMetricsCommand(t *testing.T) {
	source := &fakeSource{metrics: models.SystemMetrics{ActiveAlerts: 7}}
	h := newTestHub(source, nil)

	sub := newFakeSubscriber("c1")
	h.Register(sub)

	waitForTypes(t, sub, 1) // initial snapshot

	cmd, err := json.Marshal(Command{Action: ActionGetMetrics})
	require.NoError(t, err)
	h.HandleInbound("c1", cmd)

	waitForTypes(t, sub, 2)

	msgs := sub.received()
	assert.Equal(t, models.PushTypeMetrics, msgs[1].Type)

	require.NoError(t, h.Stop(context.Background()))
}

func TestMalformedCommandAnswersWithError(t *testing.T) {
	h := newTestHub(nil, nil)

	sub := newFakeSubscriber("c1")
	h.Register(sub)

	h.HandleInbound("c1", []byte("{not json"))

	waitForTypes(t, sub, 1)
	assert.Equal(t, models.PushTypeError, sub.received()[0].Type)

	require.NoError(t, h.Stop(context.Background()))
}

func TestHeartbeatTimeoutEvicts(t *testing.T) {
	h := NewHub(models.BroadcastConfig{
		HeartbeatInterval: models.Duration(10 * time.Millisecond),
		HeartbeatMisses:   2,
		SendQueueSize:     16,
	}, nil, nil, logger.NewTestLogger())

	require.NoError(t, h.Start(context.Background()))

	silent := newFakeSubscriber("silent")
	h.Register(silent)

	require.Eventually(t, func() bool {
		return h.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Stop(context.Background()))
}

func TestPongKeepsSubscriberAlive(t *testing.T) {
	h := NewHub(models.BroadcastConfig{
		HeartbeatInterval: models.Duration(10 * time.Millisecond),
		HeartbeatMisses:   2,
		SendQueueSize:     64,
	}, nil, nil, logger.NewTestLogger())

	require.NoError(t, h.Start(context.Background()))

	live := newFakeSubscriber("live")
	h.Register(live)

	pong, err := json.Marshal(Command{Action: ActionPong})
	require.NoError(t, err)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.HandleInbound("live", pong)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, h.SubscriberCount())

	require.NoError(t, h.Stop(context.Background()))
}

func TestPollLoopPushesMetrics(t *testing.T) {
	source := &fakeSource{metrics: models.SystemMetrics{ActiveAlerts: 3}}
	h := NewHub(models.BroadcastConfig{
		HeartbeatInterval: models.Duration(time.Hour),
		PollInterval:      models.Duration(10 * time.Millisecond),
		SendQueueSize:     64,
	}, source, nil, logger.NewTestLogger())

	require.NoError(t, h.Start(context.Background()))

	sub := newFakeSubscriber("c1")
	h.Register(sub)

	require.Eventually(t, func() bool {
		return len(sub.received()) >= 3
	}, time.Second, 5*time.Millisecond)

	for _, msg := range sub.received() {
		assert.Equal(t, models.PushTypeMetrics, msg.Type)
	}

	require.NoError(t, h.Stop(context.Background()))
}

func TestUnregisterClosesConnection(t *testing.T) {
	h := newTestHub(nil, nil)

	sub := newFakeSubscriber("c1")
	h.Register(sub)

	h.Unregister("c1")

	sub.mu.Lock()
	assert.True(t, sub.closed)
	sub.mu.Unlock()

	assert.Zero(t, h.SubscriberCount())

	require.NoError(t, h.Stop(context.Background()))
}
