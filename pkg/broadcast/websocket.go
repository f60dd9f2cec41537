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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSSubscriber adapts a gorilla websocket connection to the Subscriber
// capability. Writes are serialized; gorilla connections do not support
// concurrent writers.
type WSSubscriber struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWSSubscriber wraps an upgraded connection.
func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{
		id:   uuid.New().String(),
		conn: conn,
	}
}

func (s *WSSubscriber) ID() string { return s.id }

func (s *WSSubscriber) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}

	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *WSSubscriber) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})

	return err
}

// ReadLoop pumps inbound client messages into the hub until the connection
// drops, then unregisters the subscriber. Runs on the caller's goroutine.
func (s *WSSubscriber) ReadLoop(h *Hub) {
	defer h.Unregister(s.id)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		h.HandleInbound(s.id, data)
	}
}
