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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

var errMissingURL = errors.New("bus url is required")

type testConfig struct {
	URL      string          `json:"url"`
	Interval models.Duration `json:"interval"`
}

func (c *testConfig) Validate() error {
	if c.URL == "" {
		return errMissingURL
	}

	return nil
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pulse.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidate(t *testing.T) {
	c := NewConfig(logger.NewTestLogger())

	path := writeConfigFile(t, `{"url": "nats://localhost:4222", "interval": "30s"}`)

	var cfg testConfig

	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Interval))
}

func TestLoadAndValidateNumericDuration(t *testing.T) {
	c := NewConfig(logger.NewTestLogger())

	path := writeConfigFile(t, `{"url": "nats://localhost:4222", "interval": 5000000000}`)

	var cfg testConfig

	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Interval))
}

func TestLoadAndValidateRejectsInvalidConfig(t *testing.T) {
	c := NewConfig(logger.NewTestLogger())

	path := writeConfigFile(t, `{"interval": "30s"}`)

	var cfg testConfig

	err := c.LoadAndValidate(context.Background(), path, &cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingURL)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	c := NewConfig(logger.NewTestLogger())

	var cfg testConfig

	err := c.LoadAndValidate(context.Background(), "/nonexistent/pulse.json", &cfg)
	require.Error(t, err)
}

func TestLoadAndValidateMalformedJSON(t *testing.T) {
	c := NewConfig(logger.NewTestLogger())

	path := writeConfigFile(t, `{not json`)

	var cfg testConfig

	require.Error(t, c.LoadAndValidate(context.Background(), path, &cfg))
}

func TestLoadAndValidateNilDestination(t *testing.T) {
	c := NewConfig(logger.NewTestLogger())

	require.Error(t, c.LoadAndValidate(context.Background(), "unused.json", nil))
}
