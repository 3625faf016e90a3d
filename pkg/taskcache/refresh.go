// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
)

// pollSchedule computes refresh loop delays. The n-th consecutive failure
// waits min(base*2^(n-1), cap); an idle poll waits base.
type pollSchedule struct {
	failures *backoff.ExponentialBackOff
	base     time.Duration
}

func newPollSchedule(base, maxDelay time.Duration) *pollSchedule {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return &pollSchedule{failures: b, base: base}
}

// failed returns the delay before retrying after one more failure.
func (p *pollSchedule) failed() time.Duration {
	return p.failures.NextBackOff()
}

// succeeded restarts the failure sequence.
func (p *pollSchedule) succeeded() {
	p.failures.Reset()
}

// idle returns the delay after a poll that found nothing new.
func (p *pollSchedule) idle() time.Duration {
	return min(p.base, p.failures.MaxInterval)
}

// refreshLoop keeps s in sync until ctx is cancelled: a grace delay, then
// polls paced by activity and backed off on failure. Every poll refreshes
// the session's last access.
func (m *Manager) refreshLoop(ctx context.Context, s *Session) {
	log := logger.ForAccount(s.account)
	log.Info("Refresh loop started")
	m.metrics.loopStarted()
	defer func() {
		m.metrics.loopStopped()
		log.Info("Refresh loop stopped")
	}()

	if err := m.sleep(ctx, m.config.GraceDelay); err != nil {
		return
	}

	schedule := newPollSchedule(m.config.BackoffBase, m.config.BackoffCap)
	for {
		applied, err := m.sync(ctx, s)
		if ctx.Err() != nil {
			return
		}
		// a polled session counts as in use
		s.touch(m.now())

		var delay time.Duration
		switch {
		case err != nil:
			streak := s.recordFailure()
			delay = schedule.failed()
			m.metrics.iteration(outcomeError)
			log.Warn("Refresh failed, backing off", "error", err, "error_streak", streak, "retry_in", delay)
		case applied > 0:
			s.resetErrorStreak()
			schedule.succeeded()
			delay = m.config.ActiveInterval
			m.metrics.iteration(outcomeActive)
			log.Debug("Refresh applied messages", "applied", applied, "cursor", s.Cursor())
		default:
			s.resetErrorStreak()
			schedule.succeeded()
			delay = schedule.idle()
			m.metrics.iteration(outcomeIdle)
		}

		if err := m.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
