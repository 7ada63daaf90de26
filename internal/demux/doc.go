// Package demux splits MPEG-2 program stream packs into elementary stream
// packets and routes them to per-track fifos.
//
// Only the streams a rip needs are kept: video on 0xE0 and AC-3 audio carried
// in private stream 1. Anything else is skipped, as are packs that lost sync,
// so a damaged sector never aborts a rip.
package demux
