// Package journal records the lifecycle of torbridge handles in SQLite.
//
// Handles created through the bridge are never torn down implicitly: a
// stream outlives the circuit it was opened on, and a caller that forgets
// close_stream leaves a live connection behind. The journal keeps one row
// per lifecycle event so such leftovers can be listed after the fact with
// Leaks and rendered as a Markdown report with WriteMarkdown.
//
// One database file holds every session; rows carry the session id so
// reports can be produced per session.
package journal
