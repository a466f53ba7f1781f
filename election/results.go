// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/models"
)

// queryResults reads result rows matching filter, ordered by class, category and rank.
func queryResults(ctx context.Context, q db.Querier, electionID string, filter models.ResultsFilter) ([]models.Result, error) {
	where := []string{"r.election_id = $1"}
	args := []any{electionID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "r.result_status = $"+strconv.Itoa(len(args)))
	}
	if filter.ClassID != 0 {
		args = append(args, filter.ClassID)
		where = append(where, "r.class_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		where = append(where, "cls.year = $"+strconv.Itoa(len(args)))
	}

	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.election_id, r.class_id, r.category, r.candidate_id, COALESCE(c.name, ''),
			r.is_nota, r.total_votes, COALESCE(r.rank, 0), r.result_status, r.had_tie
		FROM results r
		JOIN classes cls ON cls.id = r.class_id
		LEFT JOIN candidates c ON c.id = r.candidate_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY r.class_id, r.category, r.rank, r.is_nota, c.name
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []models.Result
	for rows.Next() {
		var r models.Result
		err := rows.Scan(&r.ID, &r.ElectionID, &r.ClassID, &r.Category, &r.CandidateID, &r.CandidateName,
			&r.IsNOTA, &r.TotalVotes, &r.Rank, &r.Status, &r.HadTie)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// applyLeads fills Lead for one (class, category) group sorted by rank.
// A sole winner leads by its margin over the runner-up; tied winners lead
// by zero; everyone else carries their (negative) gap to the top.
func applyLeads(group []models.Result) {
	if len(group) == 0 {
		return
	}
	top := group[0].TotalVotes
	runnerUp := 0
	for _, r := range group {
		if r.TotalVotes < top {
			runnerUp = r.TotalVotes
			break
		}
		if r.ID != group[0].ID {
			runnerUp = top
			break
		}
	}

	for i := range group {
		lead := group[i].TotalVotes - top
		if group[i].TotalVotes == top {
			lead = top - runnerUp
		}
		group[i].Lead = &lead
	}
}

// Results returns published results grouped per class. Filters narrow the
// result rows; Leads are computed over the whole group before the status filter applies.
func (s *Service) Results(ctx context.Context, electionID string, filter models.ResultsFilter) ([]models.ClassResults, error) {
	if filter.Status != "" && filter.Status != models.ResultWon && filter.Status != models.ResultLost && filter.Status != models.ResultTie {
		return nil, apperr.Validation("Invalid status filter %q", filter.Status)
	}

	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return nil, err
	}
	if !e.ResultPublished {
		return nil, apperr.Conflict("Election results are not published yet")
	}

	// Leads need the full group, so filter by status after computing them.
	statusFilter := filter.Status
	filter.Status = ""
	results, err := queryResults(ctx, s.db, e.ID, filter)
	if err != nil {
		return nil, err
	}

	classes, err := s.classInfo(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.ClassResults
	index := make(map[int]int)
	for start := 0; start < len(results); {
		end := start
		for end < len(results) && results[end].ClassID == results[start].ClassID && results[end].Category == results[start].Category {
			end++
		}
		group := results[start:end]
		applyLeads(group)

		classID := group[0].ClassID
		i, ok := index[classID]
		if !ok {
			info := classes[classID]
			out = append(out, models.ClassResults{
				ClassID:   classID,
				ClassName: info.name,
				Year:      info.year,
				General:   []models.Result{},
				Reserved:  []models.Result{},
			})
			i = len(out) - 1
			index[classID] = i
		}
		for _, r := range group {
			if statusFilter != "" && r.Status != statusFilter {
				continue
			}
			if r.Category == models.CategoryReserved {
				out[i].Reserved = append(out[i].Reserved, r)
			} else {
				out[i].General = append(out[i].General, r)
			}
		}
		start = end
	}
	if out == nil {
		out = []models.ClassResults{}
	}
	return out, nil
}

type classRow struct {
	name string
	year int
}

func (s *Service) classInfo(ctx context.Context) (map[int]classRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, year FROM classes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	out := make(map[int]classRow)
	for rows.Next() {
		var id int
		var c classRow
		if err := rows.Scan(&id, &c.name, &c.year); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		out[id] = c
	}
	return out, rows.Err()
}
