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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/pulse/pkg/config"
	"github.com/carverauto/pulse/pkg/core"
	"github.com/carverauto/pulse/pkg/core/api"
	"github.com/carverauto/pulse/pkg/lifecycle"
	"github.com/carverauto/pulse/pkg/logger"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/pulse/core.json", "Path to core config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg core.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	coreLogger, err := lifecycle.CreateComponentLogger("pulse-core", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	monitor, err := core.New(ctx, &cfg, coreLogger)
	if err != nil {
		return err
	}

	monitor.RegisterDefaultChecks()

	apiLogger, err := lifecycle.CreateComponentLogger("api", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	server := api.NewAPIServer(monitor, cfg.AllowedOrigins, apiLogger)

	return lifecycle.Run(ctx, &service{
		monitor: monitor,
		server:  server,
		addr:    cfg.ListenAddr,
		logger:  coreLogger,
	}, coreLogger)
}

// service binds the monitor and its HTTP front into one managed lifetime.
type service struct {
	monitor *core.Monitor
	server  *api.APIServer
	addr    string
	logger  logger.Logger
}

func (s *service) Start(ctx context.Context) error {
	if err := s.monitor.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.server.Start(s.addr); err != nil {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()

	return nil
}

func (s *service) Stop(ctx context.Context) error {
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop API server")
	}

	return s.monitor.Stop(ctx)
}
