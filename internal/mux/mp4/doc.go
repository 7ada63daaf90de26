// Package mp4 writes ISO base media files.
//
// Samples are appended to a single mdat whose size is patched after each
// write. Finish appends the moov box built from the collected sample tables
// and then Optimize moves moov in front of mdat, rewriting chunk offsets, by
// writing a temporary file and renaming it over the original.
package mp4
