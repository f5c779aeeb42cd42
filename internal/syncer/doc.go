// Package syncer drives month-by-month collection of synced settlement
// records.
//
// A Controller runs at most one sync at a time. Start builds the queue of
// YYYYMM units from the requested month through the current month and walks
// it in order on a background goroutine: for each unit it opens a portal
// session, waits for that session's report or the unit timeout, replaces
// the month in the Synced partition, and closes the session before moving
// on. Failed units are collected and reported at the end; they never stop
// the run.
//
// Cancel stops the run cooperatively and returns once the run goroutine has
// exited, so nothing attributable to the cancelled run happens afterwards.
// An observer whose Deliver fails is treated as gone and the run cancels
// itself.
package syncer
