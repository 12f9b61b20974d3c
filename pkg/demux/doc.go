// ABOUTME: Reference demux collaborator package
// ABOUTME: Reads single-track audio files as a sequence of timestamped packets
// Package demux turns audio files into packets a session can feed to a codec.
//
// Supported inputs:
//   - .aac / .adts: ADTS frames, optionally preceded by the AudioSpecificConfig
//   - .pcm / .raw: headerless PCM in a caller-supplied format
//   - .mp3: decoded to s16le PCM with go-mp3
//   - .flac: decoded to s16le or s24le PCM with mewkiz/flac
//   - .pkt: packet files written by sink.PacketFile
//
// Example:
//
//	src, err := demux.Open("input.aac", demux.WithCodecConfig())
//	defer src.Close()
//	pkt, err := src.ReadPacket()
package demux
