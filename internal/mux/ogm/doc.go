// Package ogm writes Ogg Media files: one Ogg logical stream per track, with
// OGM stream headers for video and MP3 audio and native Vorbis headers for
// Vorbis audio. Every packet is flushed to its own page so a partial file is
// readable up to the last packet.
package ogm
