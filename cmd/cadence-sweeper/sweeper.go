package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/funnelworks/cadence/pkg/engine"
)

// Sweeper drives the run queue: on each tick of its schedule it
// processes due entries through the engine.
type Sweeper struct {
	id           string
	service      *engine.Service
	schedule     cron.Schedule
	limit        int
	logger       *slog.Logger
	restartCount int
}

// NewSweeper creates a sweeper from a standard 5-field cron spec.
func NewSweeper(id string, service *engine.Service, cronSpec string, limit int, logger *slog.Logger) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(cronSpec)
	if err != nil {
		return nil, err
	}

	return &Sweeper{
		id:       id,
		service:  service,
		schedule: schedule,
		limit:    limit,
		logger:   logger.With("module", "sweeper", "sweeper_id", id),
	}, nil
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	sCtx, cancel := context.WithCancel(ctx)

	s.logger.Info("Starting sweeper")

	s.handleSignals(sCtx, cancel)
	s.run(sCtx)
}

// handleSignals sets up graceful shutdown and SIGHUP restart.
func (s *Sweeper) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			s.logger.Info("Reloading...")
			s.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			s.logger.Info("Shutting down gracefully...")
			cancel()
			os.Exit(0)
		default:
			s.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart re-enters the loop with linear backoff, giving up after five
// attempts.
func (s *Sweeper) restart(ctx context.Context, cancel context.CancelFunc) {
	s.restartCount++
	newCtx := context.WithoutCancel(ctx)

	cancel()

	if s.restartCount > 5 {
		s.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(s.restartCount) * time.Second
	s.logger.Info("Restarting sweeper...", "backoff", backoff)
	time.Sleep(backoff)

	s.Start(newCtx)
}

// run waits for each scheduled tick and sweeps.
func (s *Sweeper) run(ctx context.Context) {
	for {
		now := time.Now()
		next := s.schedule.Next(now)

		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Sweeper context cancelled, stopping...")

			return
		case tick := <-timer.C:
			stats, err := s.service.Sweep(ctx, tick, s.limit)
			if err != nil {
				s.logger.ErrorContext(ctx, "Sweep iteration failed", "error", err)

				continue
			}

			if stats.Processed > 0 {
				s.logger.InfoContext(ctx, "Sweep iteration finished",
					"processed", stats.Processed,
					"succeeded", stats.Succeeded,
					"failed", stats.Failed,
					"orphaned", stats.Orphaned,
					"retained", stats.Retained,
				)
			}
		}
	}
}
