// Package preflight checks the filesystem before a rip starts.
//
// The workflow manager calls RunAll from StartRip and refuses to start when
// any check fails, so a rip does not run for an hour only to fail on an
// unwritable or full output disk. The CLI prints the same results.
package preflight
