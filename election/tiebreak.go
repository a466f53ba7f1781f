// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// validateAssignments checks the shape of a tie-break request.
func validateAssignments(as []models.TieAssignment) error {
	if len(as) == 0 {
		return apperr.Validation("At least one assignment is required")
	}

	ids := make(map[string]bool, len(as))
	ranks := make(map[int]bool, len(as))
	for _, a := range as {
		if !auth.IsUUID(a.ResultID) {
			return apperr.Validation("Invalid result id %q", a.ResultID)
		}
		if a.FinalRank < 1 {
			return apperr.Validation("Final rank must be a positive integer")
		}
		if ids[a.ResultID] {
			return apperr.Validation("Duplicate result id %s", a.ResultID)
		}
		if ranks[a.FinalRank] {
			return apperr.Validation("Duplicate final rank %d", a.FinalRank)
		}
		ids[a.ResultID] = true
		ranks[a.FinalRank] = true
	}
	return nil
}

// checkRankBoundary rejects any final rank at or past firstLost, the rank of
// the first non-tied row. A firstLost of zero means no such row exists.
func checkRankBoundary(as []models.TieAssignment, firstLost int) error {
	if firstLost == 0 {
		return nil
	}
	for _, a := range as {
		if a.FinalRank >= firstLost {
			return apperr.Conflict("Final rank %d must be below %d, the rank of the first untied result", a.FinalRank, firstLost)
		}
	}
	return nil
}

type tiedRow struct {
	id       string
	category models.Category
	status   models.ResultStatus
}

// ResolveTieBreak turns a first-place tie in one class and category into a
// strict order. Every tied row of the category must be assigned; rank 1
// becomes won and every other rank lost.
func (s *Service) ResolveTieBreak(ctx context.Context, actor models.Actor, electionID string, classID int, as []models.TieAssignment) error {
	if err := validateAssignments(as); err != nil {
		return err
	}
	if !actor.IsAdmin() && !actor.IsTutorOf(classID) {
		return apperr.Forbidden("Only an admin or the class tutor can resolve this tie")
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forShare)
		if err != nil {
			return err
		}
		if !e.ResultPublished {
			return apperr.Conflict("Election results are not published yet")
		}
		if err := requireStatus(e, "Tie-breakers can only be resolved during post-voting", models.StatusPostVoting); err != nil {
			return err
		}

		ids := make([]string, len(as))
		ranks := make([]int64, len(as))
		for i, a := range as {
			ids[i] = a.ResultID
			ranks[i] = int64(a.FinalRank)
		}

		rows, err := lockTiedRows(ctx, tx, e.ID, classID, ids)
		if err != nil {
			return err
		}
		if len(rows) != len(as) {
			s.warnOnRollback(ctx, tx, e.ID, fmt.Sprintf(
				"Tie-breaker for class %d rejected: %d of %d results found", classID, len(rows), len(as)))
			return apperr.Conflict("Invalid or mismatched result ids").WithCode(apperr.CodeCountMismatch)
		}

		category := rows[0].category
		for _, r := range rows {
			if r.status != models.ResultTie {
				return apperr.Conflict("Result %s is not tied", r.id)
			}
			if r.category != category {
				return apperr.Conflict("Mixed categories in tie-breaker")
			}
		}

		var tiedCount int
		var firstLost sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE result_status = 'tie'),
				MIN(rank) FILTER (WHERE result_status <> 'tie' AND rank > 1)
			FROM results
			WHERE election_id = $1 AND class_id = $2 AND category = $3
		`, e.ID, classID, category).Scan(&tiedCount, &firstLost)
		if err != nil {
			return fmt.Errorf("failed to read category ranks: %w", err)
		}
		if tiedCount != len(as) {
			return apperr.Conflict("All %d tied results must be ranked together", tiedCount)
		}
		if err := checkRankBoundary(as, int(firstLost.Int64)); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE results r
			SET rank = u.final_rank,
				result_status = CASE WHEN u.final_rank = 1 THEN 'won' ELSE 'lost' END,
				updated_at = $5
			FROM UNNEST($1::uuid[], $2::int[]) AS u(id, final_rank)
			WHERE r.id = u.id
			  AND r.election_id = $3
			  AND r.class_id = $4
			  AND r.result_status = 'tie'
		`, pq.Array(ids), pq.Array(ranks), e.ID, classID, s.now())
		if err != nil {
			return fmt.Errorf("failed to apply tie-breaker: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected != int64(len(as)) {
			s.warnOnRollback(ctx, tx, e.ID, fmt.Sprintf(
				"Tie-breaker for class %d aborted: updated %d of %d results", classID, affected, len(as)))
			return apperr.Conflict("Failed to resolve all tied results").WithCode(apperr.CodeCountMismatch)
		}

		msg := fmt.Sprintf("Tie-breaker resolved for class %d (%s) by %s", classID, category, actor.Name)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}

		notice := models.Notification{
			Title:   "Tie-breaker resolved!",
			Message: "Tie-breaker resolved for your class",
			Type:    "info",
		}
		s.notifyAfterCommit(tx, events.StudentsOf(classID), notice)
		s.notifyAfterCommit(tx, events.Users(actor.UserID), notice)
		return nil
	})
}

func lockTiedRows(ctx context.Context, tx *db.Tx, electionID string, classID int, ids []string) ([]tiedRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, category, result_status
		FROM results
		WHERE id = ANY($1::uuid[]) AND election_id = $2 AND class_id = $3
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids), electionID, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock results: %w", err)
	}
	defer rows.Close()

	var out []tiedRow
	for rows.Next() {
		var r tiedRow
		if err := rows.Scan(&r.id, &r.category, &r.status); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TieBreakStatus lists the unresolved ties of a class, grouped by category.
func (s *Service) TieBreakStatus(ctx context.Context, electionID string, classID int) (models.TieBreakStatus, error) {
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return models.TieBreakStatus{}, err
	}
	if !e.ResultPublished {
		return models.TieBreakStatus{}, apperr.Conflict("Election results are not published yet")
	}

	results, err := queryResults(ctx, s.db, e.ID, models.ResultsFilter{Status: models.ResultTie, ClassID: classID})
	if err != nil {
		return models.TieBreakStatus{}, err
	}

	status := models.TieBreakStatus{ElectionID: e.ID, ClassID: classID, Categories: []models.CategoryTies{}}
	for _, cat := range []models.Category{models.CategoryGeneral, models.CategoryReserved} {
		var tied []models.Result
		for _, r := range results {
			if r.Category == cat {
				tied = append(tied, r)
			}
		}
		if len(tied) > 0 {
			status.Categories = append(status.Categories, models.CategoryTies{Category: cat, Tied: tied})
			status.Pending = true
		}
	}
	return status, nil
}
