// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm provides shared infrastructure for the LLM provider clients.
package llm

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
)

// RateLimiterConfig controls client-side throttling of LLM API calls.
type RateLimiterConfig struct {
	Enabled           bool
	RequestsPerMinute int           // Sustained request rate (default: 60)
	BurstCapacity     int           // Requests allowed to burst above the sustained rate (default: 10)
	MaxRetries        int           // Retries on provider throttling before giving up (default: 3)
	InitialBackoff    time.Duration // First retry delay (default: 1s)
	MaxBackoff        time.Duration // Backoff ceiling (default: 30s)
	BackoffMultiplier float64       // Backoff growth factor (default: 2.0)
}

// DefaultRateLimiterConfig returns a configuration suitable for hosted APIs.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstCapacity:     10,
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RateLimiter is a token-bucket limiter with retry-on-throttle semantics.
// All provider clients in a process share one limiter so that parallel
// pipeline stages cannot exceed the account-level request budget.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// NewRateLimiter creates a limiter from config, applying defaults for
// zero-valued fields.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffMultiplier <= 1 {
		config.BackoffMultiplier = 2.0
	}

	capacity := float64(config.BurstCapacity)
	return &RateLimiter{
		tokens:            capacity,
		capacity:          capacity,
		refillRate:        float64(config.RequestsPerMinute) / 60.0,
		lastRefill:        time.Now(),
		maxRetries:        config.MaxRetries,
		initialBackoff:    config.InitialBackoff,
		maxBackoff:        config.MaxBackoff,
		backoffMultiplier: config.BackoffMultiplier,
	}
}

// Do executes call once a rate token is available, retrying with
// exponential backoff when the provider reports throttling. Non-throttle
// errors are returned immediately.
func (rl *RateLimiter) Do(ctx context.Context, call func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	backoff := rl.initialBackoff

	var lastErr error
	for attempt := 0; attempt <= rl.maxRetries; attempt++ {
		if err := rl.acquire(ctx); err != nil {
			return nil, err
		}

		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		if !isThrottleError(err) {
			return nil, err
		}
		lastErr = err

		if attempt == rl.maxRetries {
			break
		}

		// Full backoff with jitter so concurrent callers do not retry in
		// lockstep after a shared 429.
		delay := time.Duration(float64(backoff) * (0.5 + rand.Float64()/2))
		log.Warn("LLM request throttled, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", rl.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * rl.backoffMultiplier)
		if backoff > rl.maxBackoff {
			backoff = rl.maxBackoff
		}
	}

	return nil, fmt.Errorf("request throttled after %d retries: %w", rl.maxRetries, lastErr)
}

// acquire blocks until a token is available or ctx is done.
func (rl *RateLimiter) acquire(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - rl.tokens) / rl.refillRate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill credits tokens for time elapsed since the last refill.
// Caller must hold rl.mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
}

// isThrottleError reports whether err looks like provider-side rate
// limiting. Providers disagree on wording, so this matches the common
// markers across OpenAI, Anthropic, and proxy gateways.
func isThrottleError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429",
		"rate limit",
		"rate_limit",
		"too many requests",
		"throttl",
		"overloaded",
		"503",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
