// Package fifo implements the bounded, non-blocking buffer queue that links
// pipeline stages.
//
// A Fifo never blocks and never drops: Push refuses when full and the caller
// keeps ownership of the buffer. Die marks end of stream; consumers keep
// popping until the queue is drained. The blocking helpers PushWait and PopWait
// wait on a change signal instead of polling.
package fifo
