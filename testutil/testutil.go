// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/cliparse"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/models"
	_ "github.com/lib/pq"
)

// TestDBEnv names the variable holding the test database connection string.
const TestDBEnv = "TEST_DATABASE_URL"

// SetupTestDB opens the test database and recreates the full schema.
// Tests are skipped when TEST_DATABASE_URL is unset.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv(TestDBEnv)
	if url == "" {
		t.Skipf("%s not set, skipping database test", TestDBEnv)
	}

	conn, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("Failed to reach test database: %v", err)
	}

	if err := db.DropSchema(conn); err != nil {
		t.Fatalf("Failed to clean database: %v", err)
	}
	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:               3318,
		DatabaseURL:        os.Getenv(TestDBEnv),
		VotingTokenSecret:  "test-voting-secret",
		SessionTokenSecret: "test-session-secret",
		TickInterval:       30 * time.Second,
		CORSOrigin:         "*",
	}
}

// TimelineAt returns a timeline under which now falls in the middle of status.
// Boundaries are an hour apart.
func TimelineAt(status models.Status, now time.Time) models.Timeline {
	i := status.Index()
	at := func(k int) time.Time {
		return now.Add(time.Duration(2*(k-i)+1) * 30 * time.Minute)
	}
	return models.Timeline{
		NominationStart: at(0),
		NominationEnd:   at(1),
		VotingStart:     at(2),
		VotingEnd:       at(3),
		ElectionEnd:     at(4),
	}
}

// CreateTestUser inserts a user account and returns its ID
func CreateTestUser(t *testing.T, conn *sql.DB, name string, role models.Role) string {
	t.Helper()

	id := auth.NewID()
	_, err := conn.Exec(`INSERT INTO users (id, name, role) VALUES ($1, $2, $3)`, id, name, role)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return id
}

// CreateTestClass inserts a class and returns its ID
func CreateTestClass(t *testing.T, conn *sql.DB, name string, year int) int {
	t.Helper()

	var id int
	err := conn.QueryRow(`INSERT INTO classes (name, year) VALUES ($1, $2) RETURNING id`, name, year).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test class: %v", err)
	}
	return id
}

// CreateTestStudent inserts a student with a user account and returns the user ID
func CreateTestStudent(t *testing.T, conn *sql.DB, admno, name string, classID int) string {
	t.Helper()

	userID := CreateTestUser(t, conn, name, models.RoleStudent)
	_, err := conn.Exec(`
		INSERT INTO students (admno, user_id, name, class_id)
		VALUES ($1, $2, $3, $4)
	`, admno, userID, name, classID)
	if err != nil {
		t.Fatalf("Failed to create test student: %v", err)
	}
	return userID
}

// CreateTestTeacher inserts a teacher and returns the user ID.
// tutorOf is the class tutored, or 0 for none.
func CreateTestTeacher(t *testing.T, conn *sql.DB, name, empcode string, tutorOf int) string {
	t.Helper()

	userID := CreateTestUser(t, conn, name, models.RoleTeacher)
	var tutor *int
	if tutorOf != 0 {
		tutor = &tutorOf
	}
	_, err := conn.Exec(`
		INSERT INTO teachers (user_id, empcode, name, tutor_of)
		VALUES ($1, $2, $3, $4)
	`, userID, empcode, name, tutor)
	if err != nil {
		t.Fatalf("Failed to create test teacher: %v", err)
	}
	return userID
}

// CreateTestElection inserts an election whose timeline matches status at
// now, with the given reserved classes, and returns its ID
func CreateTestElection(t *testing.T, conn *sql.DB, status models.Status, now time.Time, reserved ...int) string {
	t.Helper()

	if reserved == nil {
		reserved = []int{}
	}
	config, _ := json.Marshal(reserved)
	tl := TimelineAt(status, now)

	id := auth.NewID()
	_, err := conn.Exec(`
		INSERT INTO elections (id, name, nomination_start, nomination_end, voting_start,
			voting_end, election_end, election_start, status, category_config)
		VALUES ($1, 'Test Election', $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, tl.NominationStart, tl.NominationEnd, tl.VotingStart, tl.VotingEnd, tl.ElectionEnd,
		tl.NominationStart.Add(-time.Hour), status, config)
	if err != nil {
		t.Fatalf("Failed to create test election: %v", err)
	}
	return id
}

// SetTestElectionStatus moves an election to status and shifts its timeline to match.
func SetTestElectionStatus(t *testing.T, conn *sql.DB, electionID string, status models.Status, now time.Time) {
	t.Helper()

	tl := TimelineAt(status, now)
	_, err := conn.Exec(`
		UPDATE elections
		SET status = $2, nomination_start = $3, nomination_end = $4,
			voting_start = $5, voting_end = $6, election_end = $7
		WHERE id = $1
	`, electionID, status, tl.NominationStart, tl.NominationEnd, tl.VotingStart, tl.VotingEnd, tl.ElectionEnd)
	if err != nil {
		t.Fatalf("Failed to update test election: %v", err)
	}
}

// CreateTestCandidate inserts a candidate with the given status and returns its ID.
// The nominees are created in the candidate's class.
func CreateTestCandidate(t *testing.T, conn *sql.DB, electionID, userID, name string, classID int, category models.Category, status models.CandidateStatus) string {
	t.Helper()

	n1, n2 := auth.NewID()[:8], auth.NewID()[:8]
	CreateTestStudent(t, conn, n1, "Nominee "+n1, classID)
	CreateTestStudent(t, conn, n2, "Nominee "+n2, classID)

	id := auth.NewID()
	_, err := conn.Exec(`
		INSERT INTO candidates (id, election_id, user_id, name, category, class_id, status,
			nominee1_admno, nominee2_admno)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, electionID, userID, name, category, classID, status, n1, n2)
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}
	return id
}

// AddTestSupervisor assigns a teacher as supervisor of an election
func AddTestSupervisor(t *testing.T, conn *sql.DB, electionID, userID string) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO supervisors (election_id, user_id, name, empcode)
		SELECT $1, user_id, name, empcode FROM teachers WHERE user_id = $2
	`, electionID, userID)
	if err != nil {
		t.Fatalf("Failed to add test supervisor: %v", err)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// SessionHeader returns request headers carrying a session token for userID
func SessionHeader(t *testing.T, signer *auth.Signer, userID string) map[string]string {
	t.Helper()

	token, err := signer.IssueSessionToken(userID)
	if err != nil {
		t.Fatalf("Failed to issue session token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
