// Package stage defines the unit of pipeline work scheduled by the worker pool.
//
// A Stage performs one small unit of work per Work call and reports whether it
// made progress. Handles wrap stages with the advisory lock that guarantees at
// most one worker runs a given stage at a time, and record busy time for the
// end-of-rip summary. Transform provides the common single input, single
// output shape used by decoders, filters and encoders.
package stage
