// ABOUTME: Format helpers shared by sinks
// ABOUTME: Maps codec names to mimes and builds PCM sample converters
package sink

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
)

type audioFormat = audio.Format

// MimeFor maps a format codec such as "opus" to its mime
func MimeFor(codecName string) string {
	switch codecName {
	case "aac":
		return codec.MimeAAC
	case "mp3", "mpeg":
		return codec.MimeMpeg
	case "flac":
		return codec.MimeFlac
	case "opus":
		return codec.MimeOpus
	default:
		return codec.MimeRaw
	}
}

func sampleFormatFor(bits int) audio.SampleFormat {
	switch bits {
	case 24:
		return audio.SampleS24LE
	case 32:
		return audio.SampleS32LE
	default:
		return audio.SampleS16LE
	}
}
