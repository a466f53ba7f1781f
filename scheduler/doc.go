// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package scheduler drives elections through their phases on a fixed interval.

Each tick lists the elections that are not closed, calls Advance on each and
then sends any deadline reminders that fall due within the tick. Ticks never
overlap: a tick that starts while the previous one is still running is
skipped. The guard only saves work. Correctness comes from the row locks
Advance takes, so two processes running schedulers against one database stay
consistent.

	s := scheduler.New(svc, 30*time.Second, logger)
	go s.Run(ctx)
*/
package scheduler
