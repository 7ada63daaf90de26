// Package codec defines the boundary between the pipeline and codec
// implementations.
//
// Decoders, scalers and encoders are opaque transformers over buffers. The
// pipeline only relies on the contracts here: an encoder session is opened per
// pass, writes rate-control statistics during the analysis pass and reads them
// back during the final pass. The passthrough implementations registered by
// Default move payloads unchanged so the pipeline can run without native
// codec libraries.
package codec
