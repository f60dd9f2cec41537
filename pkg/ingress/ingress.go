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

// Package ingress consumes domain events from the shared bus, classifies
// them once and fans them out to the tracker, the anomaly detector and the
// alert pipeline without ever blocking the publisher.
package ingress

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/carverauto/pulse/pkg/alerts"
	"github.com/carverauto/pulse/pkg/bus"
	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
	"github.com/carverauto/pulse/pkg/resilience"
	"github.com/carverauto/pulse/pkg/tracker"
)

const (
	defaultResponseThresholdMS = 1000.0
	defaultQueueSize           = 1024
	defaultHistorySize         = 1000
)

// UpdateFunc receives every processed event together with its classification,
// for forwarding to live subscribers.
type UpdateFunc func(event *models.Event, class models.EventClass)

// Stats is a point-in-time view of ingress throughput.
type Stats struct {
	Received uint64            `json:"received"`
	Dropped  uint64            `json:"dropped"`
	Counters map[string]uint64 `json:"counters"` // keyed "source/type"
}

// Ingress subscribes to the bus and drives the monitoring pipeline.
type Ingress struct {
	config   models.IngressConfig
	bus      bus.Bus
	tracker  *tracker.Tracker
	alerts   *alerts.Manager
	limiter  *resilience.RateLimiter
	onUpdate UpdateFunc
	observe  func(metric string, value float64)
	logger   logger.Logger

	queue  chan *models.Event
	unsubs []bus.Unsubscribe

	mu       sync.Mutex
	counters map[counterKey]uint64
	received uint64
	dropped  uint64
	history  *eventRing

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type counterKey struct {
	source string
	typ    string
}

// New creates an Ingress wired to the given downstream components. The
// limiter caps alert creation per component and may be nil; observe feeds
// the anomaly detector and may be nil.
func New(
	config models.IngressConfig,
	b bus.Bus,
	trk *tracker.Tracker,
	mgr *alerts.Manager,
	limiter *resilience.RateLimiter,
	observe func(metric string, value float64),
	log logger.Logger,
) *Ingress {
	if config.ResponseTimeThresholdMS <= 0 {
		config.ResponseTimeThresholdMS = defaultResponseThresholdMS
	}

	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}

	return &Ingress{
		config:   config,
		bus:      b,
		tracker:  trk,
		alerts:   mgr,
		limiter:  limiter,
		observe:  observe,
		logger:   log,
		queue:    make(chan *models.Event, config.QueueSize),
		counters: make(map[counterKey]uint64),
		history:  newEventRing(defaultHistorySize),
		done:     make(chan struct{}),
	}
}

// OnUpdate registers the broadcaster hook. Must be called before Start.
func (i *Ingress) OnUpdate(fn UpdateFunc) {
	i.onUpdate = fn
}

// Start subscribes to the bus and begins draining the dispatch queue.
func (i *Ingress) Start(ctx context.Context) error {
	patterns := []string{">"}
	if nb, ok := i.bus.(interface{ EventsPattern() string }); ok {
		patterns[0] = nb.EventsPattern()
	}

	for _, pattern := range patterns {
		unsub, err := i.bus.Subscribe(pattern, i.enqueue)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}

		i.unsubs = append(i.unsubs, unsub)
	}

	for _, name := range i.config.Components {
		unsub, err := i.bus.SubscribeComponent(name, i.enqueue)
		if err != nil {
			return fmt.Errorf("failed to subscribe to component %s: %w", name, err)
		}

		i.unsubs = append(i.unsubs, unsub)
	}

	i.wg.Add(1)

	go func() {
		defer i.wg.Done()
		i.run(ctx)
	}()

	i.logger.Info().
		Int("components", len(i.config.Components)).
		Int("queue_size", i.config.QueueSize).
		Msg("Event ingress started")

	return nil
}

// Stop unsubscribes from the bus and drains the worker.
func (i *Ingress) Stop(_ context.Context) error {
	i.closeOnce.Do(func() {
		for _, unsub := range i.unsubs {
			if err := unsub(); err != nil {
				i.logger.Warn().Err(err).Msg("Failed to unsubscribe from bus")
			}
		}

		close(i.done)
	})

	i.wg.Wait()

	return nil
}

// enqueue hands the event to the worker. A full queue drops the event so
// that a slow pipeline never stalls the bus delivery goroutine.
func (i *Ingress) enqueue(event *models.Event) {
	select {
	case i.queue <- event:
	default:
		i.mu.Lock()
		i.dropped++
		dropped := i.dropped
		i.mu.Unlock()

		i.logger.Warn().
			Str("event_id", event.EventID).
			Uint64("dropped_total", dropped).
			Msg("Dispatch queue full, dropping event")
	}
}

func (i *Ingress) run(ctx context.Context) {
	for {
		select {
		case <-i.done:
			return
		case event := <-i.queue:
			i.Process(ctx, event)
		}
	}
}

// Process classifies one event and fans it out. Exposed for embedded
// deployments that feed events directly instead of through the bus.
func (i *Ingress) Process(ctx context.Context, event *models.Event) {
	class := i.Classify(event)

	i.mu.Lock()
	i.received++
	i.counters[counterKey{source: event.Source, typ: event.Type}]++
	i.history.append(event)
	i.mu.Unlock()

	if event.Source != "" {
		i.tracker.RecordEvent(event.Source, event, class)
	}

	if i.observe != nil {
		if rt, ok := event.ProcessingTime(); ok {
			i.observe(event.Source+".response_time", rt)
		}
	}

	i.evaluateAlerts(ctx, event, class)

	if i.onUpdate != nil {
		i.onUpdate(event, class)
	}
}

// Classify decides the internal event class once, at ingress. High-risk
// wins over error; slow responses are alerted separately in evaluateAlerts
// whatever the class.
func (i *Ingress) Classify(event *models.Event) models.EventClass {
	typ := strings.ToLower(event.Type)

	if strings.Contains(typ, "vulnerability") ||
		strings.Contains(typ, "breach") ||
		strings.Contains(typ, "compliance.gap") {
		return models.ClassHighRisk
	}

	if sev, ok := event.SeverityField(); ok && sev == "critical" {
		return models.ClassHighRisk
	}

	if strings.Contains(typ, "error") || strings.Contains(typ, "failure") || event.HasErrorField() {
		return models.ClassError
	}

	if rt, ok := event.ProcessingTime(); ok && rt > i.config.ResponseTimeThresholdMS {
		return models.ClassSlow
	}

	return models.ClassNormal
}

func (i *Ingress) evaluateAlerts(ctx context.Context, event *models.Event, class models.EventClass) {
	if i.alerts == nil {
		return
	}

	switch class {
	case models.ClassHighRisk:
		i.createAlert(ctx, event, models.SeverityCritical,
			fmt.Sprintf("High-risk event from %s", event.Source),
			fmt.Sprintf("Event %s of type %s requires attention", event.EventID, event.Type))
	case models.ClassError:
		i.createAlert(ctx, event, models.SeverityError,
			fmt.Sprintf("Error in %s", event.Source),
			fmt.Sprintf("Event %s of type %s reported an error", event.EventID, event.Type))
	case models.ClassNormal, models.ClassSlow:
	}

	// A slow response alerts regardless of the class above.
	if rt, ok := event.ProcessingTime(); ok && rt > i.config.ResponseTimeThresholdMS {
		i.createAlert(ctx, event, models.SeverityWarning,
			fmt.Sprintf("Slow response from %s", event.Source),
			fmt.Sprintf("Processing took %.0fms, threshold is %.0fms",
				rt, i.config.ResponseTimeThresholdMS))
	}
}

func (i *Ingress) createAlert(
	ctx context.Context,
	event *models.Event,
	severity models.AlertSeverity,
	title, description string,
) {
	if i.limiter != nil && !i.limiter.AllowEvent(event) {
		return
	}

	i.alerts.Create(ctx, severity, event.Source, title, description, map[string]interface{}{
		"event_id":   event.EventID,
		"event_type": event.Type,
	})
}

// Stats returns a snapshot of throughput counters.
func (i *Ingress) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	counters := make(map[string]uint64, len(i.counters))
	for k, v := range i.counters {
		counters[k.source+"/"+k.typ] = v
	}

	return Stats{
		Received: i.received,
		Dropped:  i.dropped,
		Counters: counters,
	}
}

// History returns the most recent events, oldest first.
func (i *Ingress) History(limit int) []*models.Event {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.history.last(limit)
}
