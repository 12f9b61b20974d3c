// ABOUTME: Audio format and sample definitions shared by codecs, sources and sinks
// ABOUTME: Format carries every configuration key a codec consumes at Configure time
package audio

import (
	"bytes"
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// SampleFormat names the in-memory layout of PCM samples
type SampleFormat string

const (
	SampleS16LE SampleFormat = "s16le"
	SampleS24LE SampleFormat = "s24le"
	SampleS32LE SampleFormat = "s32le"
	SampleF32LE SampleFormat = "f32le"
)

// Channel layout masks (subset of the usual speaker positions)
const (
	LayoutMono   uint64 = 0x4
	LayoutStereo uint64 = 0x3
)

// Format describes an audio stream and doubles as the codec configuration.
// Zero values mean "not set" and are left for the codec to default.
type Format struct {
	Codec              string
	SampleRate         int
	Channels           int
	BitDepth           int
	Bitrate            int
	BitsPerCodedSample int
	SampleFormat       SampleFormat
	ChannelLayout      uint64
	ADTS               bool   // AAC payload carries ADTS headers
	CodecHeader        []byte // For FLAC, Opus, AAC AudioSpecificConfig, etc.
}

// Buffer represents decoded PCM audio
type Buffer struct {
	Timestamp int64     // Presentation timestamp (microseconds)
	PlayAt    time.Time // Local play time
	Samples   []int32   // PCM samples (int32 to support both 16-bit and 24-bit)
	Format    Format
}

// BytesPerSample returns the width of one PCM sample, falling back to BitDepth
func (f Format) BytesPerSample() int {
	switch f.SampleFormat {
	case SampleS16LE:
		return 2
	case SampleS24LE:
		return 3
	case SampleS32LE, SampleF32LE:
		return 4
	}
	if f.BitDepth > 0 {
		return (f.BitDepth + 7) / 8
	}
	return 2
}

// FrameBytes returns the size of one interleaved PCM frame
func (f Format) FrameBytes() int {
	return f.BytesPerSample() * f.Channels
}

// Duration returns the playback duration of n bytes of PCM in this format
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.FrameBytes() <= 0 {
		return 0
	}
	frames := n / f.FrameBytes()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Layout returns the channel layout, deriving mono/stereo when unset
func (f Format) Layout() uint64 {
	if f.ChannelLayout != 0 {
		return f.ChannelLayout
	}
	switch f.Channels {
	case 1:
		return LayoutMono
	case 2:
		return LayoutStereo
	}
	return 0
}

// Equal reports whether two formats describe the same stream
func (f Format) Equal(o Format) bool {
	return f.Codec == o.Codec &&
		f.SampleRate == o.SampleRate &&
		f.Channels == o.Channels &&
		f.BitDepth == o.BitDepth &&
		f.Bitrate == o.Bitrate &&
		f.BitsPerCodedSample == o.BitsPerCodedSample &&
		f.SampleFormat == o.SampleFormat &&
		f.ChannelLayout == o.ChannelLayout &&
		f.ADTS == o.ADTS &&
		bytes.Equal(f.CodecHeader, o.CodecHeader)
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
