// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"fmt"

	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// Advance moves an election forward to the phase its timeline dictates and
// returns the resulting status. Phases are entered one at a time so that a
// late tick still generates ballots and counts votes. All work for the call
// commits or rolls back together.
func (s *Service) Advance(ctx context.Context, electionID string) (models.Status, error) {
	var status models.Status

	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		status = e.Status

		target := ExpectedStatus(e.Timeline, s.now())
		if !e.Status.Before(target) {
			return nil
		}

		for e.Status.Before(target) {
			next, _ := e.Status.Next()
			if err := s.enterPhase(ctx, tx, &e, next); err != nil {
				return fmt.Errorf("enter %s: %w", next, err)
			}
		}
		status = e.Status
		return nil
	})
	return status, err
}

func (s *Service) enterPhase(ctx context.Context, tx *db.Tx, e *models.Election, next models.Status) error {
	_, err := tx.ExecContext(ctx, `UPDATE elections SET status = $1 WHERE id = $2`, next, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	e.Status = next

	switch next {
	case models.StatusPreVoting:
		created, err := generateBallots(ctx, tx, *e)
		if err != nil {
			return err
		}
		s.logger.Info("ballots generated", "election_id", e.ID, "entries", created)
	case models.StatusPostVoting:
		if err := s.countVotes(ctx, tx, e.ID); err != nil {
			return err
		}
	}

	msg := fmt.Sprintf("Election status advanced to %s by system scheduler for %q", next, e.Name)
	if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
		return err
	}
	s.notifyAfterCommit(tx, events.Everyone(), phaseNotice(e.Name, next))

	electionID := e.ID
	tx.AfterCommit(func() {
		s.logger.Info("election status advanced", "election_id", electionID, "status", next)
	})
	return nil
}
