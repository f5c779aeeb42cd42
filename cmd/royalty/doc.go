// Command royalty is the command-line client for the royalty daemon.
//
// It starts and stops the daemon, drives full portal syncs, uploads
// settlement spreadsheets into the manual partition, inspects stored totals,
// and aggregates a directory of spreadsheets into a summary workbook without
// a running daemon. Most subcommands talk to the daemon over its Unix socket;
// `aggregate` and `config` work offline.
package main
