// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the audio types shared across codecbridge.
//
// Format describes a stream and is also what a codec receives at Configure time:
// channel count, sample rate, bitrate, bits-per-coded-sample, sample format,
// channel layout and the AAC-ADTS flag. Codecs validate the fields they care
// about; this package never interprets them on a codec's behalf.
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "aac",
//	    SampleRate: 16000,
//	    Channels:   1,
//	    Bitrate:    128000,
//	    ADTS:       true,
//	}
//
//	// Convert 16-bit sample to 24-bit range
//	sample24 := audio.SampleFromInt16(sample16)
package audio
