// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"testing"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/models"
	"github.com/danielhkuo/elvox/testutil"
)

func TestValidateAssignments(t *testing.T) {
	id1, id2 := auth.NewID(), auth.NewID()

	testCases := []struct {
		name    string
		as      []models.TieAssignment
		wantErr bool
	}{
		{"valid", []models.TieAssignment{{ResultID: id1, FinalRank: 1}, {ResultID: id2, FinalRank: 2}}, false},
		{"empty", nil, true},
		{"bad id", []models.TieAssignment{{ResultID: "not-a-uuid", FinalRank: 1}}, true},
		{"zero rank", []models.TieAssignment{{ResultID: id1, FinalRank: 0}}, true},
		{"duplicate id", []models.TieAssignment{{ResultID: id1, FinalRank: 1}, {ResultID: id1, FinalRank: 2}}, true},
		{"duplicate rank", []models.TieAssignment{{ResultID: id1, FinalRank: 1}, {ResultID: id2, FinalRank: 1}}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAssignments(tc.as)
			if tc.wantErr {
				if !apperr.Is(err, apperr.KindValidation) {
					t.Errorf("Expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestCheckRankBoundary(t *testing.T) {
	id1, id2 := auth.NewID(), auth.NewID()

	testCases := []struct {
		name      string
		as        []models.TieAssignment
		firstLost int
		wantErr   bool
	}{
		// Totals {10, 10, 5} rank 1, 1, 3.
		{"within tied band", []models.TieAssignment{{ResultID: id1, FinalRank: 1}, {ResultID: id2, FinalRank: 2}}, 3, false},
		{"reaches first untied rank", []models.TieAssignment{{ResultID: id1, FinalRank: 1}, {ResultID: id2, FinalRank: 3}}, 3, true},
		{"past first untied rank", []models.TieAssignment{{ResultID: id1, FinalRank: 4}, {ResultID: id2, FinalRank: 1}}, 3, true},
		{"everyone tied", []models.TieAssignment{{ResultID: id1, FinalRank: 1}, {ResultID: id2, FinalRank: 7}}, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkRankBoundary(tc.as, tc.firstLost)
			if tc.wantErr {
				if !apperr.Is(err, apperr.KindConflict) {
					t.Errorf("Expected conflict, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestResolveTieBreakFlow(t *testing.T) {
	h := newHarness(t)
	s, d := votingSchool(t, h)
	ctx := context.Background()

	ballotA, err := h.svc.Ballot(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	res := entryFor(t, ballotA[models.CategoryReserved], s.reservedA)
	for admno, cand := range map[string]string{"A1": s.generalA1, "A2": s.generalA2} {
		token := h.votingToken(t, s.supervisor, d, admno)
		err := h.svc.CastVote(ctx, d, s.electionID, token, map[models.Category]string{
			models.CategoryGeneral:  entryFor(t, ballotA[models.CategoryGeneral], cand),
			models.CategoryReserved: res,
		})
		if err != nil {
			t.Fatalf("CastVote(%s) failed: %v", admno, err)
		}
	}

	h.at(t, s.electionID, models.StatusPostVoting)

	_, err = h.svc.TieBreakStatus(ctx, s.electionID, s.classA)
	assertCode(t, err, apperr.KindConflict, "")

	if err := h.svc.PublishResults(ctx, s.admin, s.electionID); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}

	status, err := h.svc.TieBreakStatus(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("TieBreakStatus failed: %v", err)
	}
	if !status.Pending || len(status.Categories) != 1 || status.Categories[0].Category != models.CategoryGeneral {
		t.Fatalf("Expected one pending general tie, got %+v", status)
	}
	tied := status.Categories[0].Tied
	if len(tied) != 2 {
		t.Fatalf("Expected 2 tied results, got %d", len(tied))
	}
	first, second := tied[0].ID, tied[1].ID

	tutorB := h.actor(t, testutil.CreateTestTeacher(t, h.conn, "Tutor B", "EMP3", s.classB))
	err = h.svc.ResolveTieBreak(ctx, tutorB, s.electionID, s.classA, []models.TieAssignment{
		{ResultID: first, FinalRank: 1}, {ResultID: second, FinalRank: 2},
	})
	assertCode(t, err, apperr.KindForbidden, "")

	// Totals {1, 1, 0} rank 1, 1, 3, so rank 3 belongs to the untied row.
	err = h.svc.ResolveTieBreak(ctx, s.tutorA, s.electionID, s.classA, []models.TieAssignment{
		{ResultID: first, FinalRank: 1}, {ResultID: second, FinalRank: 3},
	})
	assertCode(t, err, apperr.KindConflict, "")

	err = h.svc.ResolveTieBreak(ctx, s.tutorA, s.electionID, s.classA, []models.TieAssignment{
		{ResultID: first, FinalRank: 1},
	})
	assertCode(t, err, apperr.KindConflict, "")

	err = h.svc.ResolveTieBreak(ctx, s.tutorA, s.electionID, s.classA, []models.TieAssignment{
		{ResultID: auth.NewID(), FinalRank: 1}, {ResultID: second, FinalRank: 2},
	})
	assertCode(t, err, apperr.KindConflict, apperr.CodeCountMismatch)

	// The rejected attempt is still audited after the rollback.
	var warnings int
	err = h.conn.QueryRow(`
		SELECT COUNT(*) FROM logs
		WHERE election_id = $1 AND level = $2 AND message LIKE 'Tie-breaker for class%rejected%'
	`, s.electionID, models.LogWarning).Scan(&warnings)
	if err != nil {
		t.Fatalf("Failed to count warning logs: %v", err)
	}
	if warnings != 1 {
		t.Errorf("Expected 1 warning log for the mismatched attempt, got %d", warnings)
	}

	err = h.svc.ResolveTieBreak(ctx, s.tutorA, s.electionID, s.classA, []models.TieAssignment{
		{ResultID: first, FinalRank: 2}, {ResultID: second, FinalRank: 1},
	})
	if err != nil {
		t.Fatalf("ResolveTieBreak failed: %v", err)
	}

	status, err = h.svc.TieBreakStatus(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("TieBreakStatus failed: %v", err)
	}
	if status.Pending {
		t.Errorf("Expected no pending ties, got %+v", status)
	}

	classes, err := h.svc.Results(ctx, s.electionID, models.ResultsFilter{ClassID: s.classA})
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	for _, r := range classes[0].General {
		switch r.ID {
		case second:
			if r.Status != models.ResultWon || r.Rank != 1 || !r.HadTie {
				t.Errorf("Expected resolved winner, got %+v", r)
			}
		case first:
			if r.Status != models.ResultLost || r.Rank != 2 || !r.HadTie {
				t.Errorf("Expected resolved runner-up, got %+v", r)
			}
		}
	}

	// Resolved rows are no longer tied.
	err = h.svc.ResolveTieBreak(ctx, s.tutorA, s.electionID, s.classA, []models.TieAssignment{
		{ResultID: first, FinalRank: 1}, {ResultID: second, FinalRank: 2},
	})
	assertCode(t, err, apperr.KindConflict, "")
}
