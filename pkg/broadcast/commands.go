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
	"encoding/json"

	"github.com/carverauto/pulse/pkg/models"
)

// Inbound client actions.
const (
	ActionSubscribe        = "subscribe"
	ActionUnsubscribe      = "unsubscribe"
	ActionAcknowledgeAlert = "acknowledge_alert"
	ActionResolveAlert     = "resolve_alert"
	ActionGetMetrics       = "get_metrics"
	ActionPong             = "pong"
)

// Command is the inbound message format accepted from subscribers.
type Command struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	AlertID string `json:"alert_id,omitempty"`
}

type commandResult struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	AlertID string `json:"alert_id,omitempty"`
	OK      bool   `json:"ok"`
}

// HandleInbound processes one raw client message. Unknown ids and malformed
// payloads are answered with an error envelope, never a dropped connection.
func (h *Hub) HandleInbound(id string, raw []byte) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()

	if !ok {
		return
	}

	var cmd Command

	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.sendTo(c, models.NewPushMessage(models.PushTypeError, "malformed command"))

		return
	}

	switch cmd.Action {
	case ActionSubscribe:
		c.mu.Lock()
		c.channels[cmd.Channel] = true
		c.mu.Unlock()

		h.sendTo(c, models.NewPushMessage(ActionSubscribe, commandResult{
			Action: ActionSubscribe, Channel: cmd.Channel, OK: true,
		}))
	case ActionUnsubscribe:
		c.mu.Lock()
		delete(c.channels, cmd.Channel)
		c.mu.Unlock()

		h.sendTo(c, models.NewPushMessage(ActionUnsubscribe, commandResult{
			Action: ActionUnsubscribe, Channel: cmd.Channel, OK: true,
		}))
	case ActionAcknowledgeAlert:
		ok := h.alerts != nil && h.alerts.Acknowledge(cmd.AlertID)

		h.sendTo(c, models.NewPushMessage(ActionAcknowledgeAlert, commandResult{
			Action: ActionAcknowledgeAlert, AlertID: cmd.AlertID, OK: ok,
		}))
	case ActionResolveAlert:
		ok := h.alerts != nil && h.alerts.Resolve(cmd.AlertID)

		h.sendTo(c, models.NewPushMessage(ActionResolveAlert, commandResult{
			Action: ActionResolveAlert, AlertID: cmd.AlertID, OK: ok,
		}))
	case ActionGetMetrics:
		if h.source == nil {
			h.sendTo(c, models.NewPushMessage(models.PushTypeError, "no metrics source"))

			return
		}

		h.sendTo(c, models.NewPushMessage(models.PushTypeMetrics, h.source.GetSystemMetrics()))
	case ActionPong:
		h.Pong(id)
	default:
		h.sendTo(c, models.NewPushMessage(models.PushTypeError, "unknown action: "+cmd.Action))
	}
}
