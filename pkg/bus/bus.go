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

// Package bus is the pulse core's interface to the shared publish/subscribe
// event bus.
package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/carverauto/pulse/pkg/models"
)

// Handler receives one delivered event.
type Handler func(event *models.Event)

// Unsubscribe tears down one subscription.
type Unsubscribe func() error

// Bus abstracts the shared event bus. Subjects are dot-separated; patterns
// use NATS semantics ("*" matches one token, ">" matches the rest).
type Bus interface {
	Subscribe(pattern string, h Handler) (Unsubscribe, error)
	SubscribeComponent(name string, h Handler) (Unsubscribe, error)
	Publish(ctx context.Context, subject string, event *models.Event) error
	PublishAlert(ctx context.Context, event *models.AlertEvent) error
	Close() error
}

// MemoryBus is an in-process Bus used by tests and embedded deployments.
type MemoryBus struct {
	mu            sync.RWMutex
	subs          map[int]*memorySub
	nextID        int
	subjectPrefix string
	alertSubject  string

	alertsMu sync.Mutex
	alerts   []*models.AlertEvent
}

type memorySub struct {
	pattern string
	handler Handler
}

// NewMemoryBus creates an in-process bus with the given subject layout.
func NewMemoryBus(config models.BusConfig) *MemoryBus {
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = defaultSubjectPrefix
	}

	if config.AlertSubject == "" {
		config.AlertSubject = defaultAlertSubject
	}

	return &MemoryBus{
		subs:          make(map[int]*memorySub),
		subjectPrefix: config.SubjectPrefix,
		alertSubject:  config.AlertSubject,
	}
}

// EventsPattern returns the wildcard pattern covering every event subject.
func (b *MemoryBus) EventsPattern() string {
	return b.subjectPrefix + ".>"
}

func (b *MemoryBus) Subscribe(pattern string, h Handler) (Unsubscribe, error) {
	b.mu.Lock()

	id := b.nextID
	b.nextID++
	b.subs[id] = &memorySub{pattern: pattern, handler: h}

	b.mu.Unlock()

	return func() error {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()

		return nil
	}, nil
}

func (b *MemoryBus) SubscribeComponent(name string, h Handler) (Unsubscribe, error) {
	return b.Subscribe(b.subjectPrefix+"."+name, h)
}

func (b *MemoryBus) Publish(_ context.Context, subject string, event *models.Event) error {
	b.mu.RLock()

	handlers := make([]Handler, 0, len(b.subs))

	for _, sub := range b.subs {
		if subjectMatches(sub.pattern, subject) {
			handlers = append(handlers, sub.handler)
		}
	}

	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	return nil
}

func (b *MemoryBus) PublishAlert(_ context.Context, event *models.AlertEvent) error {
	b.alertsMu.Lock()
	b.alerts = append(b.alerts, event)
	b.alertsMu.Unlock()

	return nil
}

// PublishedAlerts returns the alert events published so far.
func (b *MemoryBus) PublishedAlerts() []*models.AlertEvent {
	b.alertsMu.Lock()
	defer b.alertsMu.Unlock()

	return append([]*models.AlertEvent(nil), b.alerts...)
}

func (*MemoryBus) Close() error { return nil }

// subjectMatches applies NATS wildcard semantics to a dot-separated subject.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject || pattern == ">" {
		return true
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, p := range pTokens {
		if p == ">" {
			return true
		}

		if i >= len(sTokens) {
			return false
		}

		if p != "*" && p != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}
