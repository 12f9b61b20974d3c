// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides streaming audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and keeps
// state across chunks, so a stream can be fed one decoded buffer at a time.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := r.Process(inputSamples)
package resample
