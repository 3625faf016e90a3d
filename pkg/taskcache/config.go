// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"fmt"
	"time"
)

// Config contains the timing configuration of the task cache.
type Config struct {
	// EarliestLedger is where a cold backfill starts.
	// Must be > 0.
	EarliestLedger int64

	// GraceDelay is how long a new refresh loop waits before its first poll.
	GraceDelay time.Duration

	// ActiveInterval is the pause after a poll that applied messages.
	// Must be > 0.
	ActiveInterval time.Duration

	// BackoffBase is both the idle polling interval and the first retry
	// delay after a failed poll. Must be > 0.
	BackoffBase time.Duration

	// BackoffCap bounds the retry delay. Must be >= BackoffBase.
	BackoffCap time.Duration

	// IdleTTL is how long a session may go unaccessed before it is evicted.
	// Must be > 0.
	IdleTTL time.Duration

	// SweepInterval is how often idle sessions are looked for.
	// Zero disables the background sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		EarliestLedger: 1,
		GraceDelay:     10 * time.Second,
		ActiveInterval: 10 * time.Second,
		BackoffBase:    10 * time.Second,
		BackoffCap:     60 * time.Second,
		IdleTTL:        2 * time.Hour,
		SweepInterval:  5 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.EarliestLedger <= 0 {
		return fmt.Errorf("earliest ledger must be > 0, got %d", c.EarliestLedger)
	}
	if c.GraceDelay < 0 {
		return fmt.Errorf("grace delay must be >= 0, got %v", c.GraceDelay)
	}
	if c.ActiveInterval <= 0 {
		return fmt.Errorf("active interval must be > 0, got %v", c.ActiveInterval)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be > 0, got %v", c.BackoffBase)
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff cap (%v) must be >= backoff base (%v)", c.BackoffCap, c.BackoffBase)
	}
	if c.IdleTTL <= 0 {
		return fmt.Errorf("idle TTL must be > 0, got %v", c.IdleTTL)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must be >= 0, got %v", c.SweepInterval)
	}
	return nil
}
