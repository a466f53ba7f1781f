// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles schema creation and transaction scoping.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The schema needs PostgreSQL 15 or later for UNIQUE NULLS NOT DISTINCT.

# Tables

  - users, classes, students, teachers: read-only directory
  - elections: timeline, phase, reserved classes, desktop key hash
  - supervisors: teachers allowed to verify voters
  - candidates: nominations and their review state
  - ballot_entries: candidate and NOTA options per class and category
  - voters, otp_verifications: voting session state
  - votes: anonymous append-only ledger
  - results: counted totals, ranks and outcomes
  - voting_devices: activated desktop terminals
  - logs, notifications: audit trail and user inbox

# Relationships

	elections 1──* candidates 1──* ballot_entries 1──* votes
	elections 1──* voters 1──1 otp_verifications
	elections 1──* results
	elections 1──* voting_devices

# Transactions

WithTx is the unit of work for every multi-step write. The deferred
rollback runs on any returned error or panic, so callers never write
ROLLBACK by hand:

	err := db.WithTx(ctx, conn, func(tx *db.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE ..."); err != nil {
			return err
		}
		tx.AfterCommit(func() { hub.Publish(topic, ev) })
		return nil
	})

AfterCommit hooks run only once the commit succeeded. OnRollback hooks run
after a rollback and must use the pool, not the finished transaction.
*/
package db
