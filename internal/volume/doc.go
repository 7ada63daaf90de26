// Package volume locates titles on a source volume and feeds their packs into
// the pipeline.
//
// A volume is either a directory of program stream files (optionally below a
// VIDEO_TS directory) or a single file. Scanner probes each file for its video
// and AC-3 streams and returns one title.Title per playable file. Reader is
// the per-rip reader goroutine: it reads fixed 2048-byte packs, stamps their
// pass-normalized position and pushes them into the demux fifo. Monitor
// watches udev for media insertion on the configured optical device.
package volume
