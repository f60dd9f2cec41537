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

// Package api exposes the pull API and the websocket push channel.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carverauto/pulse/pkg/broadcast"
	"github.com/carverauto/pulse/pkg/core"
	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	defaultHistoryWindow = time.Hour
)

// MonitorService is the slice of the core the API serves.
type MonitorService interface {
	GetSystemMetrics() models.SystemMetrics
	GetComponents() []models.ComponentMetrics
	GetActiveAlerts() []models.Alert
	GetHistory(window time.Duration) []models.SystemMetrics
	GetRecentEvents(limit int) []*models.Event
	GetHealthResults() *models.HealthReport
	AcknowledgeAlert(id string) bool
	ResolveAlert(id string) bool
	Stats() core.Stats
	Hub() *broadcast.Hub
}

// APIServer is the HTTP front of one monitoring instance.
type APIServer struct {
	monitor        MonitorService
	router         *mux.Router
	allowedOrigins []string
	logger         logger.Logger
	srv            *http.Server
}

// NewAPIServer creates the server and registers its routes.
func NewAPIServer(monitor MonitorService, allowedOrigins []string, log logger.Logger) *APIServer {
	s := &APIServer{
		monitor:        monitor,
		router:         mux.NewRouter(),
		allowedOrigins: allowedOrigins,
		logger:         log,
	}

	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/metrics", s.getMetrics).Methods(http.MethodGet)
	api.HandleFunc("/components", s.getComponents).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.getAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/acknowledge", s.acknowledgeAlert).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}/resolve", s.resolveAlert).Methods(http.MethodPost)
	api.HandleFunc("/history", s.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/events", s.getEvents).Methods(http.MethodGet)
	api.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// Router exposes the handler for tests and embedding.
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Start serves the API on addr until Stop is called.
func (s *APIServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop shuts the server down gracefully.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}

func (s *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}

	for _, allowed := range s.allowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}

	return false
}

func (s *APIServer) getMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.GetSystemMetrics())
}

func (s *APIServer) getComponents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.GetComponents())
}

func (s *APIServer) getAlerts(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.GetActiveAlerts())
}

func (s *APIServer) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !s.monitor.AcknowledgeAlert(id) {
		http.Error(w, "Alert not found", http.StatusNotFound)

		return
	}

	s.writeJSON(w, map[string]string{"status": "acknowledged", "id": id})
}

func (s *APIServer) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !s.monitor.ResolveAlert(id) {
		http.Error(w, "Alert not found", http.StatusNotFound)

		return
	}

	s.writeJSON(w, map[string]string{"status": "resolved", "id": id})
}

func (s *APIServer) getHistory(w http.ResponseWriter, r *http.Request) {
	window := defaultHistoryWindow

	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "Invalid window duration", http.StatusBadRequest)

			return
		}

		window = parsed
	}

	s.writeJSON(w, s.monitor.GetHistory(window))
}

func (s *APIServer) getEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)

			return
		}

		limit = parsed
	}

	s.writeJSON(w, s.monitor.GetRecentEvents(limit))
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.monitor.GetHealthResults()

	if report.Status == models.StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	s.writeJSON(w, report)
}

func (s *APIServer) getStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.Stats())
}

// handleWebSocket upgrades the connection and hands it to the broadcaster.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	sub := broadcast.NewWSSubscriber(conn)
	hub := s.monitor.Hub()

	hub.Register(sub)

	s.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("subscriber_id", sub.ID()).
		Msg("WebSocket connection established")

	sub.ReadLoop(hub)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
