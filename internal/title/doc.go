// Package title models a scanned source title and the encode settings the
// caller applies to it before starting a rip.
package title
