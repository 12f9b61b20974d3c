// ABOUTME: Audio output package for playing decoded PCM
// ABOUTME: Provides Output interface with oto and malgo backends
// Package output provides audio playback backends.
//
// Two backends are available: oto (16-bit, one context per process) and
// malgo/miniaudio (16, 24 and 32-bit). New picks one by name.
//
// Example:
//
//	out, err := output.New("malgo")
//	err = out.Open(48000, 2, 24)
//	err = out.Write(samples)
package output
