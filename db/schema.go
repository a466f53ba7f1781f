// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// DropSchema removes every application table. Used by tests.
func DropSchema(db *sql.DB) error {
	_, err := db.Exec(`
		DROP TABLE IF EXISTS notifications CASCADE;
		DROP TABLE IF EXISTS logs CASCADE;
		DROP TABLE IF EXISTS voting_devices CASCADE;
		DROP TABLE IF EXISTS results CASCADE;
		DROP TABLE IF EXISTS votes CASCADE;
		DROP TABLE IF EXISTS otp_verifications CASCADE;
		DROP TABLE IF EXISTS voters CASCADE;
		DROP TABLE IF EXISTS ballot_entries CASCADE;
		DROP TABLE IF EXISTS candidates CASCADE;
		DROP TABLE IF EXISTS supervisors CASCADE;
		DROP TABLE IF EXISTS elections CASCADE;
		DROP TABLE IF EXISTS teachers CASCADE;
		DROP TABLE IF EXISTS students CASCADE;
		DROP TABLE IF EXISTS classes CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	return nil
}

const schema = `
-- Directory (managed outside this service)
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name TEXT NOT NULL,
    email TEXT UNIQUE,
    role TEXT NOT NULL CHECK (role IN ('student', 'teacher', 'admin')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS classes (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    year INT NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
    admno TEXT PRIMARY KEY,
    user_id UUID UNIQUE REFERENCES users(id) ON DELETE SET NULL,
    name TEXT NOT NULL,
    class_id INT NOT NULL REFERENCES classes(id)
);

CREATE INDEX IF NOT EXISTS idx_students_class_id ON students(class_id);

CREATE TABLE IF NOT EXISTS teachers (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    empcode TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    department TEXT,
    tutor_of INT UNIQUE REFERENCES classes(id)
);

-- Elections
CREATE TABLE IF NOT EXISTS elections (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name TEXT NOT NULL,
    nomination_start TIMESTAMPTZ NOT NULL,
    nomination_end TIMESTAMPTZ NOT NULL,
    voting_start TIMESTAMPTZ NOT NULL,
    voting_end TIMESTAMPTZ NOT NULL,
    election_start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    election_end TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft'
        CHECK (status IN ('draft', 'nominations', 'pre-voting', 'voting', 'post-voting', 'closed')),
    category_config JSONB NOT NULL DEFAULT '[]'::jsonb,
    auto_publish_results BOOLEAN NOT NULL DEFAULT FALSE,
    result_published BOOLEAN NOT NULL DEFAULT FALSE,
    desktop_voting_key_hash TEXT,
    desktop_voting_key_generated_at TIMESTAMPTZ,
    created_by UUID REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (nomination_start < nomination_end
       AND nomination_end < voting_start
       AND voting_start < voting_end
       AND voting_end < election_end)
);

CREATE INDEX IF NOT EXISTS idx_elections_status ON elections(status);

CREATE TABLE IF NOT EXISTS supervisors (
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    empcode TEXT NOT NULL,
    PRIMARY KEY (election_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_supervisors_user_id ON supervisors(user_id);

-- Nominations
CREATE TABLE IF NOT EXISTS candidates (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    category TEXT NOT NULL CHECK (category IN ('general', 'reserved')),
    class_id INT NOT NULL REFERENCES classes(id),
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'approved', 'rejected', 'withdrawn')),
    nominee1_admno TEXT NOT NULL REFERENCES students(admno),
    nominee1_proof TEXT,
    nominee2_admno TEXT NOT NULL REFERENCES students(admno),
    nominee2_proof TEXT,
    rejection_reason TEXT,
    actioned_by UUID REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_candidates_active
    ON candidates(user_id, election_id) WHERE status <> 'withdrawn';
CREATE INDEX IF NOT EXISTS idx_candidates_election_class ON candidates(election_id, class_id);

-- Ballots
CREATE TABLE IF NOT EXISTS ballot_entries (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    class_id INT NOT NULL REFERENCES classes(id),
    category TEXT NOT NULL CHECK (category IN ('general', 'reserved')),
    candidate_id UUID REFERENCES candidates(id) ON DELETE CASCADE,
    is_nota BOOLEAN NOT NULL DEFAULT FALSE,
    CHECK (is_nota = (candidate_id IS NULL)),
    CONSTRAINT ballot_entries_unique
        UNIQUE NULLS NOT DISTINCT (election_id, class_id, category, candidate_id, is_nota)
);

CREATE TABLE IF NOT EXISTS voters (
    admno TEXT NOT NULL REFERENCES students(admno),
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    has_voted BOOLEAN NOT NULL DEFAULT FALSE,
    verified_by UUID REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (admno, election_id)
);

CREATE TABLE IF NOT EXISTS otp_verifications (
    admno TEXT NOT NULL,
    election_id UUID NOT NULL,
    otp_hash TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    used_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (admno, election_id),
    FOREIGN KEY (admno, election_id) REFERENCES voters(admno, election_id) ON DELETE CASCADE
);

-- Votes are anonymous: no column links a vote to a voter.
CREATE TABLE IF NOT EXISTS votes (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    ballot_entry_id UUID NOT NULL REFERENCES ballot_entries(id),
    candidate_id UUID,
    is_nota BOOLEAN NOT NULL,
    class_id INT NOT NULL,
    category TEXT NOT NULL,
    device_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_votes_ballot_entry ON votes(ballot_entry_id);

CREATE TABLE IF NOT EXISTS results (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    class_id INT NOT NULL REFERENCES classes(id),
    category TEXT NOT NULL CHECK (category IN ('general', 'reserved')),
    candidate_id UUID REFERENCES candidates(id) ON DELETE CASCADE,
    is_nota BOOLEAN NOT NULL DEFAULT FALSE,
    total_votes INT NOT NULL DEFAULT 0,
    rank INT,
    result_status TEXT NOT NULL DEFAULT 'lost' CHECK (result_status IN ('won', 'lost', 'tie')),
    had_tie BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT results_unique
        UNIQUE NULLS NOT DISTINCT (election_id, class_id, category, candidate_id, is_nota)
);

CREATE INDEX IF NOT EXISTS idx_results_election_class ON results(election_id, class_id, category);

-- Desktop voting terminals
CREATE TABLE IF NOT EXISTS voting_devices (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    device_id TEXT NOT NULL,
    device_name TEXT NOT NULL,
    auth_token_hash TEXT NOT NULL UNIQUE,
    activated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    revoked_at TIMESTAMPTZ,
    UNIQUE (election_id, device_id)
);

-- Audit trail and inbox
CREATE TABLE IF NOT EXISTS logs (
    id BIGSERIAL PRIMARY KEY,
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    level TEXT NOT NULL CHECK (level IN ('info', 'warning', 'error')),
    message TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_logs_election_created ON logs(election_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'info',
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
`
