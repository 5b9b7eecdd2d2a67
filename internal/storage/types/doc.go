// Package types defines the core data types of the telemetry store.
//
// A Sample is one observation of one server at one poll round. A Record is
// the all-time peak of a server. Count carries a player count that may be
// absent because the poll failed; absent counts serialize as JSON null.
package types
