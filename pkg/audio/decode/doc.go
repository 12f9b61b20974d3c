// ABOUTME: Audio decoder package for frame-level codec support
// ABOUTME: Provides Decoder interface and implementations for PCM and Opus
// Package decode provides frame-level audio decoders.
//
// Supports: PCM (16-bit and 24-bit), Opus
//
// All decoders implement the Decoder interface and output int32 samples
// in 24-bit range for consistent processing. The software codec engine in
// pkg/codec/soft wraps them behind the asynchronous codec contract.
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	samples, err := decoder.Decode(audioData)
package decode
