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

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultSubjectPrefix = "pulse.events"
	defaultAlertSubject  = "pulse.alerts"

	reconnectWait = 2 * time.Second
)

var errBusClosed = errors.New("bus connection closed")

// NATSBus is the production Bus backed by a NATS connection.
type NATSBus struct {
	conn          *nats.Conn
	subjectPrefix string
	alertSubject  string
	logger        logger.Logger
}

// NewNATSBus connects to the NATS server named by config and returns a Bus
// bound to its subject layout.
func NewNATSBus(config models.BusConfig, log logger.Logger) (*NATSBus, error) {
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = defaultSubjectPrefix
	}

	if config.AlertSubject == "" {
		config.AlertSubject = defaultAlertSubject
	}

	url := config.URL
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url,
		nats.Name("pulse-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS connection lost")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATSBus{
		conn:          conn,
		subjectPrefix: config.SubjectPrefix,
		alertSubject:  config.AlertSubject,
		logger:        log,
	}, nil
}

// EventsPattern returns the wildcard pattern covering every event subject.
func (b *NATSBus) EventsPattern() string {
	return b.subjectPrefix + ".>"
}

func (b *NATSBus) Subscribe(pattern string, h Handler) (Unsubscribe, error) {
	sub, err := b.conn.Subscribe(pattern, func(msg *nats.Msg) {
		var event models.Event

		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn().
				Err(err).
				Str("subject", msg.Subject).
				Msg("Dropping undecodable event")

			return
		}

		h(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	return sub.Unsubscribe, nil
}

func (b *NATSBus) SubscribeComponent(name string, h Handler) (Unsubscribe, error) {
	return b.Subscribe(b.subjectPrefix+"."+name, h)
}

func (b *NATSBus) Publish(_ context.Context, subject string, event *models.Event) error {
	if b.conn.IsClosed() {
		return errBusClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

func (b *NATSBus) PublishAlert(_ context.Context, event *models.AlertEvent) error {
	if b.conn.IsClosed() {
		return errBusClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	if err := b.conn.Publish(b.alertSubject, data); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", b.alertSubject, err)
	}

	return nil
}

func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}
