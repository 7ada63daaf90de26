// Package workflow hosts the Manager, the state machine that drives scans and
// rips.
//
// A Manager owns one control goroutine. Commands (ScanVolume, StartRip, Pause,
// Resume, Stop) validate the current Mode under a lock and hand work to that
// goroutine, which observes scan results, fatal stage errors and the muxer's
// completion. Every rip ends with the same drain sequence regardless of the
// trigger: the reader is stopped, the workers are joined in reverse start
// order, the output fifos are killed so the muxer unblocks, the muxer is
// joined, and finally every stage handle and fifo is closed and the output
// lock released.
//
// Callers poll Status and NeedUpdate instead of receiving callbacks; the
// status snapshot is copied out under the manager lock.
package workflow
