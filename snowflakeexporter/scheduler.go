// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type cycleRunner interface {
	scrape(ctx context.Context) error
}

// Scheduler runs one cycle, then sleeps for the interval, forever. The
// interval is measured from the end of one cycle to the start of the next.
type Scheduler struct {
	logger   *zap.Logger
	runner   cycleRunner
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func newScheduler(logger *zap.Logger, runner cycleRunner, interval time.Duration) *Scheduler {
	return &Scheduler{
		logger:   logger,
		runner:   runner,
		interval: interval,
		sleep:    sleepContext,
	}
}

// Run blocks until ctx is cancelled. Cancellation is only observed between
// cycles; a started cycle always runs to completion.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Starting collection loop", zap.Duration("interval", s.interval))
	for {
		s.runOnce(context.WithoutCancel(ctx))

		if err := s.sleep(ctx, s.interval); err != nil {
			s.logger.Info("Collection loop stopped", zap.Error(err))
			return
		}
	}
}

// runOnce never lets a cycle take the process down.
func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Collection cycle panicked", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()

	// The cycle has already logged its own outcome.
	_ = s.runner.scrape(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
