// Copyright 2024 OpsPilot Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig holds the exponential backoff parameters for retrying
// upstream calls.
type BackoffConfig struct {
	BaseDelay  time.Duration
	MaxRetries int
	MaxDelay   time.Duration
	Multiplier float64
	RetryOn    func(error) bool
}

// DefaultBackoffConfig returns the standard retry policy: base delay 500ms,
// two retries, delay doubles per attempt.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:  500 * time.Millisecond,
		MaxRetries: 2,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		RetryOn:    Retryable,
	}
}

// SingleAttemptConfig returns a policy that never retries. The resolution
// pipeline uses it for its tiers: a failed tier falls through to the next
// one instead of being retried in place.
func SingleAttemptConfig() BackoffConfig {
	cfg := DefaultBackoffConfig()
	cfg.MaxRetries = 0
	return cfg
}

// RetryFunc is an operation suitable for retrying with backoff.
type RetryFunc func(ctx context.Context) error

// WithBackoff runs fn with exponential backoff. It returns nil on the first
// success, the last error once retries are exhausted, or the first error the
// retry predicate rejects.
func WithBackoff(ctx context.Context, logger *zap.Logger, cfg BackoffConfig, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = Retryable
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("upstream call succeeded after retry",
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !retryOn(err) {
			logger.Debug("error not retryable, giving up",
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		logger.Debug("retrying upstream call",
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
