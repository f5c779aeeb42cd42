// Package portal fetches one month of settlement data from the publisher
// portal per session.
//
// A Manager owns at most one open session. Open starts a background fetch of
// the monthly calculation page for a YYYYMM unit; the parsed rows (or the
// failure) arrive exactly once on the Manager's report channel tagged with
// the session id. Close cancels the fetch and releases the session; closing a
// session that is already gone is a no-op.
package portal
