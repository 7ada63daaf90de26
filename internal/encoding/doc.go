// Package encoding wraps codec encoders as pipeline stages.
//
// EncoderStage owns one codec session at a time and reopens it whenever the
// pass tag on incoming buffers changes, keeping a per-process statistics file
// between the analysis and final passes. Audio stages drop analysis-pass input
// since only video needs two passes. Failures surface as errcode
// EncoderInitFailed or EncoderEncodeFailed errors so the manager can report a
// stable code.
package encoding
