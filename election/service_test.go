// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
	"github.com/danielhkuo/elvox/testutil"
)

// testClock is a settable clock shared by the service and its token signer.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	conn  *sql.DB
	svc   *Service
	hub   *events.Hub
	clock *testClock
	start time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	start := time.Now().UTC().Truncate(time.Second)
	clock := &testClock{t: start}
	hub := events.NewHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testutil.GetTestConfig()
	tokens := auth.NewSigner(cfg.VotingTokenSecret).WithClock(clock.Now)
	svc := NewService(conn, tokens, events.NewAuditLog(hub), events.NewNotifier(conn, logger), hub,
		WithClock(clock.Now), WithLogger(logger))

	return &harness{conn: conn, svc: svc, hub: hub, clock: clock, start: start}
}

// at moves the clock to the middle of status for an election created by
// testutil.CreateTestElection at h.start, then advances the election.
func (h *harness) at(t *testing.T, electionID string, status models.Status) {
	t.Helper()

	h.clock.Set(h.start.Add(time.Duration(status.Index()-models.StatusNominations.Index()) * time.Hour))
	got, err := h.svc.Advance(context.Background(), electionID)
	if err != nil {
		t.Fatalf("Advance to %s failed: %v", status, err)
	}
	if got != status {
		t.Fatalf("Expected status %s, got %s", status, got)
	}
}

func (h *harness) actor(t *testing.T, userID string) models.Actor {
	t.Helper()

	a, err := auth.LoadActor(context.Background(), h.conn, userID)
	if err != nil {
		t.Fatalf("Failed to load actor: %v", err)
	}
	return a
}

// activate generates a secret key and activates a terminal with it.
func (h *harness) activate(t *testing.T, admin models.Actor, electionID, deviceID string) models.VotingDevice {
	t.Helper()
	ctx := context.Background()

	key, err := h.svc.GenerateSecretKey(ctx, admin, electionID)
	if err != nil {
		t.Fatalf("GenerateSecretKey failed: %v", err)
	}
	resp, err := h.svc.ActivateDevice(ctx, electionID, models.ActivateDeviceRequest{
		SecretKey:  key.SecretKey,
		DeviceID:   deviceID,
		DeviceName: "Terminal " + deviceID,
	})
	if err != nil {
		t.Fatalf("ActivateDevice failed: %v", err)
	}
	d, err := h.svc.AuthenticateDevice(ctx, resp.DeviceToken)
	if err != nil {
		t.Fatalf("AuthenticateDevice failed: %v", err)
	}
	return d
}

// votingToken runs the supervisor OTP handshake for admno on device d.
func (h *harness) votingToken(t *testing.T, supervisor models.Actor, d models.VotingDevice, admno string) string {
	t.Helper()
	ctx := context.Background()

	v, err := h.svc.VerifyVoter(ctx, supervisor, d.ElectionID, admno)
	if err != nil {
		t.Fatalf("VerifyVoter(%s) failed: %v", admno, err)
	}
	resp, err := h.svc.AuthenticateVoter(ctx, d, d.ElectionID, admno, v.OTP)
	if err != nil {
		t.Fatalf("AuthenticateVoter(%s) failed: %v", admno, err)
	}
	return resp.VotingToken
}

// entryFor finds the ballot entry for a candidate, or NOTA when candidateID is empty.
func entryFor(t *testing.T, entries []models.BallotEntry, candidateID string) string {
	t.Helper()

	for _, e := range entries {
		if candidateID == "" && e.IsNOTA {
			return e.ID
		}
		if e.CandidateID != nil && *e.CandidateID == candidateID {
			return e.ID
		}
	}
	t.Fatalf("No ballot entry for candidate %q", candidateID)
	return ""
}

func assertCode(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()

	if !apperr.Is(err, kind) {
		t.Fatalf("Expected %s error, got %v", kind, err)
	}
	if code != "" && apperr.CodeOf(err) != code {
		t.Errorf("Expected code %s, got %q", code, apperr.CodeOf(err))
	}
}

// school is a small fixture: class A is reserved, class B is not.
type school struct {
	electionID string
	classA     int
	classB     int
	admin      models.Actor
	supervisor models.Actor
	tutorA     models.Actor
	generalA1  string
	generalA2  string
	reservedA  string
	generalB   string
}

func newSchool(t *testing.T, h *harness) school {
	t.Helper()

	var s school
	s.classA = testutil.CreateTestClass(t, h.conn, "10-A", 10)
	s.classB = testutil.CreateTestClass(t, h.conn, "11-B", 11)
	s.electionID = testutil.CreateTestElection(t, h.conn, models.StatusNominations, h.start, s.classA)

	s.admin = h.actor(t, testutil.CreateTestUser(t, h.conn, "Admin", models.RoleAdmin))
	sup := testutil.CreateTestTeacher(t, h.conn, "Supervisor", "EMP1", 0)
	testutil.AddTestSupervisor(t, h.conn, s.electionID, sup)
	s.supervisor = h.actor(t, sup)
	s.tutorA = h.actor(t, testutil.CreateTestTeacher(t, h.conn, "Tutor A", "EMP2", s.classA))

	for _, v := range []string{"A1", "A2", "A3"} {
		testutil.CreateTestStudent(t, h.conn, v, "Voter "+v, s.classA)
	}
	testutil.CreateTestStudent(t, h.conn, "B1", "Voter B1", s.classB)

	cand := func(admno string, classID int, cat models.Category) string {
		uid := testutil.CreateTestStudent(t, h.conn, admno, "Candidate "+admno, classID)
		return testutil.CreateTestCandidate(t, h.conn, s.electionID, uid, "Candidate "+admno, classID, cat, models.CandidateApproved)
	}
	s.generalA1 = cand("CA1", s.classA, models.CategoryGeneral)
	s.generalA2 = cand("CA2", s.classA, models.CategoryGeneral)
	s.reservedA = cand("CA3", s.classA, models.CategoryReserved)
	s.generalB = cand("CB1", s.classB, models.CategoryGeneral)
	return s
}

func TestAdvanceGeneratesBallotsOnce(t *testing.T) {
	h := newHarness(t)
	s := newSchool(t, h)
	ctx := context.Background()

	// A pending application never reaches the ballot.
	pendingUser := testutil.CreateTestStudent(t, h.conn, "CA9", "Pending", s.classA)
	testutil.CreateTestCandidate(t, h.conn, s.electionID, pendingUser, "Pending", s.classA, models.CategoryGeneral, models.CandidatePending)

	h.at(t, s.electionID, models.StatusPreVoting)

	ballotA, err := h.svc.Ballot(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	if n := len(ballotA[models.CategoryGeneral]); n != 3 {
		t.Errorf("Expected 2 candidates + NOTA in class A general, got %d", n)
	}
	if n := len(ballotA[models.CategoryReserved]); n != 2 {
		t.Errorf("Expected 1 candidate + NOTA in class A reserved, got %d", n)
	}

	ballotB, err := h.svc.Ballot(ctx, s.electionID, s.classB)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	if _, ok := ballotB[models.CategoryReserved]; ok {
		t.Error("Class B should have no reserved ballot")
	}
	if n := len(ballotB[models.CategoryGeneral]); n != 2 {
		t.Errorf("Expected 1 candidate + NOTA in class B general, got %d", n)
	}

	e, err := loadElection(ctx, h.conn, s.electionID, noLock)
	if err != nil {
		t.Fatalf("loadElection failed: %v", err)
	}
	created, err := generateBallots(ctx, h.conn, e)
	if err != nil {
		t.Fatalf("generateBallots failed: %v", err)
	}
	if created != 0 {
		t.Errorf("Expected regeneration to create nothing, created %d", created)
	}

	// A second tick in the same phase changes nothing.
	status, err := h.svc.Advance(ctx, s.electionID)
	if err != nil || status != models.StatusPreVoting {
		t.Errorf("Expected pre-voting with no error, got %s, %v", status, err)
	}
}

func TestAdvanceCatchesUpMissedPhases(t *testing.T) {
	h := newHarness(t)
	s := newSchool(t, h)
	ctx := context.Background()

	// Jump straight past voting: ballots and results must still exist.
	h.at(t, s.electionID, models.StatusPostVoting)

	var entries, results int
	if err := h.conn.QueryRow(`SELECT COUNT(*) FROM ballot_entries WHERE election_id = $1`, s.electionID).Scan(&entries); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if err := h.conn.QueryRow(`SELECT COUNT(*) FROM results WHERE election_id = $1`, s.electionID).Scan(&results); err != nil {
		t.Fatalf("Failed to count results: %v", err)
	}
	if entries == 0 || entries != results {
		t.Errorf("Expected one result per ballot entry, got %d entries and %d results", entries, results)
	}

	logs, err := h.svc.Logs(ctx, s.admin, s.electionID, time.Time{})
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(logs) < 3 {
		t.Errorf("Expected a log entry per phase entered, got %d", len(logs))
	}
}

func TestElectionEndToEnd(t *testing.T) {
	h := newHarness(t)
	s := newSchool(t, h)
	ctx := context.Background()

	h.at(t, s.electionID, models.StatusPreVoting)
	h.at(t, s.electionID, models.StatusVoting)

	d := h.activate(t, s.admin, s.electionID, "desk-1")
	ballotA, err := h.svc.Ballot(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	ballotB, err := h.svc.Ballot(ctx, s.electionID, s.classB)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	gen, res := ballotA[models.CategoryGeneral], ballotA[models.CategoryReserved]

	casts := []struct {
		admno string
		votes map[models.Category]string
	}{
		{"A1", map[models.Category]string{models.CategoryGeneral: entryFor(t, gen, s.generalA1), models.CategoryReserved: entryFor(t, res, s.reservedA)}},
		{"A2", map[models.Category]string{models.CategoryGeneral: entryFor(t, gen, s.generalA1), models.CategoryReserved: entryFor(t, res, "")}},
		{"A3", map[models.Category]string{models.CategoryGeneral: entryFor(t, gen, s.generalA2), models.CategoryReserved: entryFor(t, res, s.reservedA)}},
		{"B1", map[models.Category]string{models.CategoryGeneral: entryFor(t, ballotB[models.CategoryGeneral], s.generalB)}},
	}
	for _, c := range casts {
		token := h.votingToken(t, s.supervisor, d, c.admno)
		if err := h.svc.CastVote(ctx, d, s.electionID, token, c.votes); err != nil {
			t.Fatalf("CastVote(%s) failed: %v", c.admno, err)
		}
	}

	h.at(t, s.electionID, models.StatusPostVoting)

	_, err = h.svc.Results(ctx, s.electionID, models.ResultsFilter{})
	assertCode(t, err, apperr.KindConflict, "")

	if err := h.svc.PublishResults(ctx, s.admin, s.electionID); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}
	err = h.svc.PublishResults(ctx, s.admin, s.electionID)
	assertCode(t, err, apperr.KindConflict, "")

	classes, err := h.svc.Results(ctx, s.electionID, models.ResultsFilter{ClassID: s.classA})
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("Expected results for one class, got %d", len(classes))
	}
	a := classes[0]

	want := map[string]struct {
		votes  int
		rank   int
		status models.ResultStatus
	}{
		s.generalA1: {2, 1, models.ResultWon},
		s.generalA2: {1, 2, models.ResultLost},
		s.reservedA: {2, 1, models.ResultWon},
	}
	for _, r := range append(a.General, a.Reserved...) {
		if r.CandidateID == nil {
			continue
		}
		w, ok := want[*r.CandidateID]
		if !ok {
			continue
		}
		if r.TotalVotes != w.votes || r.Rank != w.rank || r.Status != w.status {
			t.Errorf("Candidate %s: got %d votes rank %d %s, want %d votes rank %d %s",
				*r.CandidateID, r.TotalVotes, r.Rank, r.Status, w.votes, w.rank, w.status)
		}
	}
	if a.General[0].Lead == nil || *a.General[0].Lead != 1 {
		t.Errorf("Expected general winner to lead by 1, got %v", a.General[0].Lead)
	}

	// Each voter is counted once per required category.
	var total int
	if err := h.conn.QueryRow(`SELECT COUNT(*) FROM votes WHERE election_id = $1`, s.electionID).Scan(&total); err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	if total != 7 {
		t.Errorf("Expected 7 vote rows (3x2 + 1), got %d", total)
	}

	won, err := h.svc.Results(ctx, s.electionID, models.ResultsFilter{Status: models.ResultWon})
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	for _, c := range won {
		for _, r := range append(c.General, c.Reserved...) {
			if r.Status != models.ResultWon {
				t.Errorf("Status filter leaked a %s row", r.Status)
			}
		}
	}
}

// resultRows snapshots the stored results of an election.
func resultRows(t *testing.T, conn *sql.DB, electionID string) []string {
	t.Helper()

	rows, err := conn.Query(`
		SELECT class_id, category, COALESCE(candidate_id::text, 'nota'), total_votes, COALESCE(rank, 0), result_status
		FROM results WHERE election_id = $1
		ORDER BY class_id, category, is_nota, candidate_id
	`, electionID)
	if err != nil {
		t.Fatalf("Failed to query results: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var classID, votes, rank int
		var category, candidate, status string
		if err := rows.Scan(&classID, &category, &candidate, &votes, &rank, &status); err != nil {
			t.Fatalf("Failed to scan result: %v", err)
		}
		out = append(out, fmt.Sprintf("%d/%s/%s/%d/%d/%s", classID, category, candidate, votes, rank, status))
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Failed to read results: %v", err)
	}
	return out
}

func TestCountVotesGuards(t *testing.T) {
	h := newHarness(t)
	s := newSchool(t, h)
	ctx := context.Background()

	count := func() error {
		return db.WithTx(ctx, h.conn, func(tx *db.Tx) error {
			return h.svc.countVotes(ctx, tx, s.electionID)
		})
	}

	assertCode(t, h.svc.countVotes(ctx, nil, s.electionID), apperr.KindFatal, "")

	h.at(t, s.electionID, models.StatusPreVoting)
	h.at(t, s.electionID, models.StatusVoting)
	assertCode(t, count(), apperr.KindFatal, "")

	d := h.activate(t, s.admin, s.electionID, "desk-1")
	ballot, err := h.svc.Ballot(ctx, s.electionID, s.classB)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	token := h.votingToken(t, s.supervisor, d, "B1")
	vote := map[models.Category]string{models.CategoryGeneral: entryFor(t, ballot[models.CategoryGeneral], s.generalB)}
	if err := h.svc.CastVote(ctx, d, s.electionID, token, vote); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	h.at(t, s.electionID, models.StatusPostVoting)
	if err := h.svc.PublishResults(ctx, s.admin, s.electionID); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}
	before := resultRows(t, h.conn, s.electionID)
	if len(before) == 0 {
		t.Fatal("Expected stored results after publishing")
	}

	assertCode(t, count(), apperr.KindFatal, "")

	after := resultRows(t, h.conn, s.electionID)
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("Published results changed:\nbefore %v\nafter  %v", before, after)
	}
}

func TestResultsRejectsUnknownStatusFilter(t *testing.T) {
	var s Service
	_, err := s.Results(context.Background(), auth.NewID(), models.ResultsFilter{Status: "maybe"})
	assertCode(t, err, apperr.KindValidation, "")
}
