// Package language normalizes audio track language codes and renders them
// for title listings and container metadata.
package language
