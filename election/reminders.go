// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"fmt"
	"time"

	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// reminderLeads are the lead times before a deadline at which reminders go out.
var reminderLeads = []time.Duration{24 * time.Hour, time.Hour}

// dueReminder returns the lead whose window contains the time left until
// deadline. A window is (lead-tick, lead], so with one check per tick each
// reminder fires exactly once.
func dueReminder(deadline, now time.Time, tick time.Duration) (time.Duration, bool) {
	left := deadline.Sub(now)
	for _, lead := range reminderLeads {
		if left <= lead && left > lead-tick {
			return lead, true
		}
	}
	return 0, false
}

func leadText(lead time.Duration) string {
	if lead == time.Hour {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", int(lead.Hours()))
}

type reminder struct {
	to events.Audience
	n  models.Notification
}

// reminders builds the notices due for e at now, if any.
func reminders(e models.Election, now time.Time, tick time.Duration) []reminder {
	var out []reminder

	if e.Status == models.StatusNominations {
		if lead, ok := dueReminder(e.NominationEnd, now, tick); ok {
			left := leadText(lead)
			out = append(out,
				reminder{events.AllStudents(), models.Notification{
					Title:   e.Name,
					Message: fmt.Sprintf("Only %s left to submit or withdraw applications", left),
					Type:    "warning",
				}},
				reminder{events.AllTutors(), models.Notification{
					Title:   e.Name,
					Message: fmt.Sprintf("Only %s left before nominations close, please review any pending applications", left),
					Type:    "warning",
				}},
				reminder{events.Staff(), models.Notification{
					Title:   e.Name,
					Message: fmt.Sprintf("Only %s left for nominations to close", left),
					Type:    "info",
				}},
			)
		}
	}

	if e.Status.Before(models.StatusVoting) && e.Status != models.StatusDraft {
		if lead, ok := dueReminder(e.VotingStart, now, tick); ok {
			out = append(out, reminder{events.Everyone(), models.Notification{
				Title:   e.Name,
				Message: fmt.Sprintf("Voting starts in %s", leadText(lead)),
				Type:    "info",
			}})
		}
	}
	return out
}

// SendDeadlineReminders notifies users when a nomination or voting deadline
// of the election is 24 hours or 1 hour away. tick is the interval between
// calls. It returns the number of reminders sent.
func (s *Service) SendDeadlineReminders(ctx context.Context, electionID string, tick time.Duration) (int, error) {
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range reminders(e, s.now(), tick) {
		if err := s.notifier.Notify(ctx, r.to, r.n); err != nil {
			s.logger.Warn("reminder failed", "election_id", e.ID, "message", r.n.Message, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
