// Package buffer defines the reference-counted media buffer that flows between
// pipeline stages.
//
// A Buffer carries an opaque payload plus the metadata every stage needs to
// route and order it: the normalized position within the title, the stream it
// belongs to, the encoding pass and codec flags. Ownership moves with the
// buffer; whoever holds the last reference releases it.
package buffer
