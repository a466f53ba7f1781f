// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"fmt"

	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/models"
)

// generateBallots inserts one entry per approved candidate and the NOTA
// entries for each class: general always, reserved only for reserved
// classes. A class takes part when it has students or an approved
// candidate. Existing entries are left untouched, so repeated calls are
// no-ops. It returns the number of entries created.
func generateBallots(ctx context.Context, q db.Querier, e models.Election) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO ballot_entries (election_id, class_id, category, candidate_id, is_nota)
		SELECT c.election_id, c.class_id, c.category, c.id, FALSE
		FROM candidates c
		WHERE c.election_id = $1 AND c.status = 'approved'
		ON CONFLICT ON CONSTRAINT ballot_entries_unique DO NOTHING
	`, e.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert candidate entries: %w", err)
	}
	candidates, _ := res.RowsAffected()

	res, err = q.ExecContext(ctx, `
		INSERT INTO ballot_entries (election_id, class_id, category, candidate_id, is_nota)
		SELECT $1, cls.id, cat.category, NULL, TRUE
		FROM classes cls
		CROSS JOIN (VALUES ('general'), ('reserved')) AS cat(category)
		WHERE (cat.category = 'general' OR cls.id = ANY($2::int[]))
		  AND (
			EXISTS (SELECT 1 FROM students s WHERE s.class_id = cls.id)
			OR EXISTS (
				SELECT 1 FROM candidates c
				WHERE c.election_id = $1 AND c.class_id = cls.id AND c.status = 'approved'
			)
		  )
		ON CONFLICT ON CONSTRAINT ballot_entries_unique DO NOTHING
	`, e.ID, intArray(e.ReservedClasses))
	if err != nil {
		return 0, fmt.Errorf("failed to insert NOTA entries: %w", err)
	}
	nota, _ := res.RowsAffected()

	return candidates + nota, nil
}

// Ballot returns the entries a voter of classID chooses from, per category.
func (s *Service) Ballot(ctx context.Context, electionID string, classID int) (map[models.Category][]models.BallotEntry, error) {
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.category, b.candidate_id, COALESCE(c.name, ''), b.is_nota
		FROM ballot_entries b
		LEFT JOIN candidates c ON c.id = b.candidate_id
		WHERE b.election_id = $1 AND b.class_id = $2
		ORDER BY b.category, b.is_nota, c.name
	`, e.ID, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ballot: %w", err)
	}
	defer rows.Close()

	ballot := make(map[models.Category][]models.BallotEntry)
	for _, cat := range e.RequiredCategories(classID) {
		ballot[cat] = []models.BallotEntry{}
	}
	for rows.Next() {
		var r models.BallotEntry
		if err := rows.Scan(&r.ID, &r.Category, &r.CandidateID, &r.CandidateName, &r.IsNOTA); err != nil {
			return nil, fmt.Errorf("failed to scan ballot entry: %w", err)
		}
		if _, ok := ballot[r.Category]; !ok {
			continue
		}
		r.ElectionID = e.ID
		r.ClassID = classID
		ballot[r.Category] = append(ballot[r.Category], r)
	}
	return ballot, rows.Err()
}
