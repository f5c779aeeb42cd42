// Package logs reads the daemon log file for `royalty logs`.
//
// Last returns the trailing lines of the file together with the byte offset
// that follow-mode resumes from. Follow streams appended lines until the
// context ends, waking on fsnotify write events with a slow poll as backup.
package logs
