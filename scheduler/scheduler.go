// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/danielhkuo/elvox/models"
)

// Elections is the part of election.Service the scheduler drives.
type Elections interface {
	ActiveElectionIDs(ctx context.Context) ([]string, error)
	Advance(ctx context.Context, electionID string) (models.Status, error)
	SendDeadlineReminders(ctx context.Context, electionID string, tick time.Duration) (int, error)
}

type Scheduler struct {
	elections Elections
	interval  time.Duration
	logger    *slog.Logger
	running   atomic.Bool
}

func New(elections Elections, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{elections: elections, interval: interval, logger: logger}
}

// Run ticks immediately and then once per interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval.String())

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick advances every open election once. It reports false without doing
// anything when a previous tick is still running. A failure on one election
// is logged and does not stop the others.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler tick skipped, previous tick still running")
		return false
	}
	defer s.running.Store(false)

	ids, err := s.elections.ActiveElectionIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list active elections", "error", err)
		return true
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		status, err := s.elections.Advance(ctx, id)
		if err != nil {
			s.logger.Error("failed to advance election", "election_id", id, "error", err)
			continue
		}
		if status == models.StatusClosed {
			continue
		}

		sent, err := s.elections.SendDeadlineReminders(ctx, id, s.interval)
		if err != nil {
			s.logger.Error("failed to send reminders", "election_id", id, "error", err)
			continue
		}
		if sent > 0 {
			s.logger.Info("deadline reminders sent", "election_id", id, "count", sent)
		}
	}
	return true
}
