// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events delivers side effects that leave a transaction: live events,
audit log entries and user notifications.

# Hub

Hub is a concurrent map of subscribers keyed by topic, created once in main
and injected into the services and handlers that need it:

	hub := events.NewHub()
	ch, cancel := hub.Subscribe(events.ElectionTopic(electionID))
	defer cancel()

Topics:

	election:<id>            audit-log, otp-used
	device:<election>:<id>   device-revoked

Publish never blocks; a slow subscriber drops events once its buffer fills.

# Audit Log

AuditLog.Record inserts a row inside the caller's transaction and streams it
after commit. RecordDirect writes through the pool and is used for warnings
that must survive a rollback.

# Notifications

Notifier writes inbox rows for an Audience (Everyone, Users, StudentsOf,
TutorsOf, AllStudents, AllTutors, Staff) with one INSERT ... SELECT.
Callers dispatch notifications after commit and log failures instead of
returning them.
*/
package events
