// Package queue keeps the rip history in SQLite.
//
// Every StartRip records a Job in the encoding status; the manager finishes it
// with the outcome (done, canceled or error) once the pipeline has drained.
// Jobs left in the encoding status by a process that died mid-rip are marked
// interrupted by RecoverInterrupted on the next start.
//
// The database is a small local archive. Schema changes bump schemaVersion in
// schema.go; an older database is rejected with ErrSchemaMismatch and the user
// deletes it to adopt the new layout.
package queue
