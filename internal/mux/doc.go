// Package mux interleaves encoded tracks into a container file.
//
// Muxer.Run pulls one buffer per active track, writes the one with the lowest
// source position (ties go to video, then audio-1, then audio-2) and repeats
// until every track fifo is dead and drained. Container formats live in the
// avi, mp4 and ogm subpackages. Header fields that grow with the file are
// rewritten in place through Patch records so a partially written file stays
// self-consistent.
package mux
