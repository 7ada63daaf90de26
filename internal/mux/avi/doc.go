// Package avi writes OpenDML-free AVI 1.0 files with a fixed 2048-byte
// header region.
//
// The header is written once when muxing starts and its size and length
// fields are patched after every chunk, so an interrupted file still parses.
// Finish appends the idx1 index and sets AVIF_HASINDEX.
package avi
