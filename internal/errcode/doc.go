// Package errcode classifies pipeline failures into the small taxonomy the
// manager reports to callers.
//
// Stages wrap their failures with Wrap so the manager can surface a stable code
// alongside the human readable cause. Use errors.Is with the exported
// sentinels or CodeOf to inspect a failure.
package errcode
