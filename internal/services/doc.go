// Package services defines the error taxonomy and context helpers shared by
// the store, the sync controller and the daemon transports.
//
// Sentinel errors mark a failure class (validation, store unavailable,
// session timeout and so on) and Wrap attaches component and operation
// detail without losing the marker, so callers classify with errors.Is.
// Context helpers stamp run ids, period keys and correlation ids for logging.
package services
