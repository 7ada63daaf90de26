// Package main hosts the ripline CLI.
//
// The Cobra command tree scans volumes, runs a rip in the foreground with a
// progress bar, lists rip history, and watches an optical drive for inserted
// media. Every command drives a workflow.Manager in-process; signals map to
// manager commands so an interrupted rip still finalizes its output.
package main
