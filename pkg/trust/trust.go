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

// Package trust exposes the read-only trust-scoring dependency used by the
// metrics aggregation tick.
package trust

import "context"

// Provider resolves the trust score of an entity.
type Provider interface {
	GetTrustScore(ctx context.Context, entityID, entityType string) (float64, error)
}

// StaticProvider always returns a fixed score. Used when no scoring service
// is configured.
type StaticProvider struct {
	Score float64
}

func (p StaticProvider) GetTrustScore(context.Context, string, string) (float64, error) {
	return p.Score, nil
}

// FuncProvider adapts a function to the Provider interface.
type FuncProvider func(ctx context.Context, entityID, entityType string) (float64, error)

func (f FuncProvider) GetTrustScore(ctx context.Context, entityID, entityType string) (float64, error) {
	return f(ctx, entityID, entityType)
}
