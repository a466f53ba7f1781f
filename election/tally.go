// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"

	"github.com/dustin/go-humanize"
)

// tally is the counted total for one ballot entry.
type tally struct {
	ClassID     int
	Category    models.Category
	CandidateID *string
	IsNOTA      bool
	Votes       int

	Rank   int
	Status models.ResultStatus
	Tie    bool
}

type groupKey struct {
	classID  int
	category models.Category
}

// rankTallies assigns competition ranks per (class, category): equal totals
// share a rank and the following rank skips by the size of the tie. A shared
// first place is a tie, a unique first place is won, everything else lost.
// The input slice is reordered.
func rankTallies(ts []tally) []tally {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if a.IsNOTA != b.IsNOTA {
			return !a.IsNOTA
		}
		return deref(a.CandidateID) < deref(b.CandidateID)
	})

	firsts := make(map[groupKey]int)
	pos := 0
	for i := range ts {
		t := &ts[i]
		if i == 0 || ts[i-1].ClassID != t.ClassID || ts[i-1].Category != t.Category {
			pos = 0
		}
		pos++
		if pos > 1 && ts[i-1].Votes == t.Votes {
			t.Rank = ts[i-1].Rank
		} else {
			t.Rank = pos
		}
		if t.Rank == 1 {
			firsts[groupKey{t.ClassID, t.Category}]++
		}
	}

	for i := range ts {
		t := &ts[i]
		switch {
		case t.Rank == 1 && firsts[groupKey{t.ClassID, t.Category}] > 1:
			t.Status = models.ResultTie
			t.Tie = true
		case t.Rank == 1:
			t.Status = models.ResultWon
		default:
			t.Status = models.ResultLost
		}
	}
	return ts
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// countVotes aggregates the vote ledger into results. It must run inside the
// transaction that moved the election into post-voting and before results
// are published; anything else is an invariant violation.
func (s *Service) countVotes(ctx context.Context, tx *db.Tx, electionID string) error {
	if tx == nil {
		return apperr.Fatal(errors.New("nil transaction"), "count votes")
	}

	e, err := loadElection(ctx, tx, electionID, noLock)
	if err != nil {
		return apperr.Fatal(err, "count votes: election %s", electionID)
	}
	if e.ResultPublished {
		return apperr.Fatal(nil, "count votes: results already published for election %s", electionID)
	}
	if e.Status != models.StatusPostVoting {
		return apperr.Fatal(nil, "count votes: election %s is %s, not post-voting", electionID, e.Status)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT b.class_id, b.category, b.candidate_id, b.is_nota, COUNT(v.id)
		FROM ballot_entries b
		LEFT JOIN votes v ON v.ballot_entry_id = b.id AND v.election_id = b.election_id
		WHERE b.election_id = $1
		  AND (b.category = 'general' OR b.class_id = ANY($2::int[]))
		GROUP BY b.id, b.class_id, b.category, b.candidate_id, b.is_nota
	`, e.ID, intArray(e.ReservedClasses))
	if err != nil {
		return fmt.Errorf("failed to aggregate votes: %w", err)
	}

	var tallies []tally
	for rows.Next() {
		var t tally
		if err := rows.Scan(&t.ClassID, &t.Category, &t.CandidateID, &t.IsNOTA, &t.Votes); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read tallies: %w", err)
	}

	tallies = rankTallies(tallies)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (election_id, class_id, category, candidate_id, is_nota,
			total_votes, rank, result_status, had_tie, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ON CONSTRAINT results_unique DO UPDATE SET
			total_votes = EXCLUDED.total_votes,
			rank = EXCLUDED.rank,
			result_status = EXCLUDED.result_status,
			had_tie = results.had_tie OR EXCLUDED.had_tie,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	totalVotes := 0
	classes := make(map[int]bool)
	for _, t := range tallies {
		_, err := stmt.ExecContext(ctx, e.ID, t.ClassID, t.Category, t.CandidateID, t.IsNOTA,
			t.Votes, t.Rank, t.Status, t.Tie, now)
		if err != nil {
			return fmt.Errorf("failed to upsert result: %w", err)
		}
		totalVotes += t.Votes
		classes[t.ClassID] = true
	}

	msg := fmt.Sprintf("Vote counting completed for %q: %s votes across %d classes",
		e.Name, humanize.Comma(int64(totalVotes)), len(classes))
	if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
		return err
	}

	if e.AutoPublishResults {
		return s.publish(ctx, tx, e, "automatically")
	}
	return nil
}

// publish flips result_published and queues the announcements.
func (s *Service) publish(ctx context.Context, tx *db.Tx, e models.Election, how string) error {
	_, err := tx.ExecContext(ctx, `UPDATE elections SET result_published = TRUE WHERE id = $1`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to publish results: %w", err)
	}

	msg := fmt.Sprintf("Results published %s for %q", how, e.Name)
	if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
		return err
	}

	tied, err := tiedClasses(ctx, tx, e.ID)
	if err != nil {
		return err
	}

	s.notifyAfterCommit(tx, events.Everyone(), models.Notification{
		Title:   "Results Published!",
		Message: fmt.Sprintf("Results published for election %s", e.Name),
		Type:    "info",
	})
	if len(tied) > 0 {
		s.notifyAfterCommit(tx, events.TutorsOf(tied...), models.Notification{
			Title:   "Tie detected!",
			Message: "Tie detected in your class. Please conduct a tie-breaker and submit the results",
			Type:    "warning",
		})
	}
	return nil
}

func tiedClasses(ctx context.Context, q db.Querier, electionID string) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT class_id FROM results
		WHERE election_id = $1 AND result_status = 'tie'
		ORDER BY class_id
	`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tied classes: %w", err)
	}
	defer rows.Close()

	var classes []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tied class: %w", err)
		}
		classes = append(classes, id)
	}
	return classes, rows.Err()
}

// PublishResults releases counted results when auto-publish is off.
func (s *Service) PublishResults(ctx context.Context, actor models.Actor, electionID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if e.ResultPublished {
			return apperr.Conflict("Results are already published")
		}
		if e.AutoPublishResults {
			return apperr.Conflict("Results for this election are published automatically")
		}
		if err := requireStatus(e, "Results can only be published after voting has closed", models.StatusPostVoting); err != nil {
			return err
		}
		return s.publish(ctx, tx, e, "by "+actor.Name)
	})
}
