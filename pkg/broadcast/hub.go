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

// Package broadcast fans out monitoring updates to live subscribers. The
// transport is abstracted behind the Subscriber interface so websockets,
// HTTP/2 streams or message queues are interchangeable.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatMisses   = 2
	defaultSendQueueSize     = 64
)

// Subscriber is one live client connection.
type Subscriber interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// DataSource serves explicit metric pulls and the poll-and-push fallback.
type DataSource interface {
	GetSystemMetrics() models.SystemMetrics
}

// AlertController is the slice of the alert manager clients may drive.
type AlertController interface {
	Acknowledge(id string) bool
	Resolve(id string) bool
}

// client wraps a subscriber with its send queue and liveness state.
type client struct {
	sub      Subscriber
	queue    chan []byte
	channels map[string]bool // empty set receives everything
	missed   int

	mu     sync.Mutex
	closed bool
}

// Hub owns the live subscriber set. Delivery is best-effort per connection;
// a slow or dead client is evicted, never waited on.
type Hub struct {
	config models.BroadcastConfig
	source DataSource
	alerts AlertController
	logger logger.Logger

	mu      sync.RWMutex
	clients map[string]*client

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHub creates a broadcaster. source and alerts may be nil; the matching
// inbound commands then answer with an error envelope.
func NewHub(config models.BroadcastConfig, source DataSource, alerts AlertController, log logger.Logger) *Hub {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = models.Duration(defaultHeartbeatInterval)
	}

	if config.HeartbeatMisses <= 0 {
		config.HeartbeatMisses = defaultHeartbeatMisses
	}

	if config.SendQueueSize <= 0 {
		config.SendQueueSize = defaultSendQueueSize
	}

	return &Hub{
		config:  config,
		source:  source,
		alerts:  alerts,
		logger:  log,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
}

// Start launches the heartbeat loop and, when a poll interval is configured,
// the poll-and-push fallback.
func (h *Hub) Start(_ context.Context) error {
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		h.heartbeatLoop()
	}()

	if h.config.PollInterval > 0 && h.source != nil {
		h.wg.Add(1)

		go func() {
			defer h.wg.Done()
			h.pollLoop()
		}()
	}

	return nil
}

// Stop closes every live connection and stops the background loops.
func (h *Hub) Stop(_ context.Context) error {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))

	for _, c := range h.clients {
		clients = append(clients, c)
	}

	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}

	h.wg.Wait()

	return nil
}

// Register adds a subscriber and immediately pushes the current snapshot.
func (h *Hub) Register(sub Subscriber) {
	c := &client{
		sub:      sub,
		queue:    make(chan []byte, h.config.SendQueueSize),
		channels: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[sub.ID()] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		h.writeLoop(c)
	}()

	if h.source != nil {
		h.sendTo(c, models.NewPushMessage(models.PushTypeMetrics, h.source.GetSystemMetrics()))
	}

	h.logger.Info().
		Str("subscriber_id", sub.ID()).
		Int("subscribers", count).
		Msg("Subscriber connected")
}

// Unregister drops a subscriber and closes its connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if !ok {
		return
	}

	c.shutdown()

	h.logger.Info().Str("subscriber_id", id).Msg("Subscriber disconnected")
}

// Broadcast sends an envelope to every live subscriber of the channel. An
// empty channel filter on a client means it receives all channels.
func (h *Hub) Broadcast(channel string, msg *models.PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal push message")

		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))

	for _, c := range h.clients {
		if c.wants(channel) {
			targets = append(targets, c)
		}
	}

	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
}

// SubscriberCount returns the number of live connections.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) sendTo(c *client, msg *models.PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal push message")

		return
	}

	h.enqueue(c, data)
}

// enqueue hands data to the client's writer. A full queue evicts the client
// instead of backpressuring the caller.
func (h *Hub) enqueue(c *client, data []byte) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	select {
	case c.queue <- data:
		c.mu.Unlock()
	default:
		c.mu.Unlock()

		h.logger.Warn().
			Str("subscriber_id", c.sub.ID()).
			Msg("Send queue full, evicting subscriber")
		h.Unregister(c.sub.ID())
	}
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.queue {
		if err := c.sub.Send(data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("subscriber_id", c.sub.ID()).
				Msg("Send failed, evicting subscriber")
			h.Unregister(c.sub.ID())

			return
		}
	}
}

func (h *Hub) heartbeatLoop() {
	interval := time.Duration(h.config.HeartbeatInterval)
	ticker := time.NewTicker(interval)

	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweepHeartbeats()
		}
	}
}

// sweepHeartbeats sends a heartbeat to every client and evicts those that
// have not answered the allowed number of consecutive probes.
func (h *Hub) sweepHeartbeats() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))

	for _, c := range h.clients {
		targets = append(targets, c)
	}

	h.mu.RUnlock()

	data, err := json.Marshal(models.NewPushMessage(models.PushTypeHeartbeat, nil))
	if err != nil {
		return
	}

	for _, c := range targets {
		c.mu.Lock()
		c.missed++
		missed := c.missed
		c.mu.Unlock()

		if missed > h.config.HeartbeatMisses {
			h.logger.Warn().
				Str("subscriber_id", c.sub.ID()).
				Int("missed", missed).
				Msg("Heartbeat timeout, evicting subscriber")
			h.Unregister(c.sub.ID())

			continue
		}

		h.enqueue(c, data)
	}
}

// Pong records a heartbeat answer from a subscriber.
func (h *Hub) Pong(id string) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()

	if !ok {
		return
	}

	c.mu.Lock()
	c.missed = 0
	c.mu.Unlock()
}

func (h *Hub) pollLoop() {
	ticker := time.NewTicker(time.Duration(h.config.PollInterval))
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.Broadcast(models.PushTypeMetrics,
				models.NewPushMessage(models.PushTypeMetrics, h.source.GetSystemMetrics()))
		}
	}
}

func (c *client) wants(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.channels) == 0 {
		return true
	}

	return c.channels[channel]
}

func (c *client) shutdown() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	c.mu.Unlock()

	close(c.queue)

	_ = c.sub.Close()
}
