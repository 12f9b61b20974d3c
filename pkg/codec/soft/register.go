// ABOUTME: Registers the built-in software codecs
// ABOUTME: AAC, Opus and raw PCM under their canonical names
package soft

import "github.com/Resonate-Protocol/codecbridge/pkg/codec"

func init() {
	Register(codec.Info{Name: codec.NameAACDecoder, Mime: codec.MimeAAC, Kind: codec.KindDecoder}, NewAACDecoder)
	Register(codec.Info{Name: codec.NameOpusDecoder, Mime: codec.MimeOpus, Kind: codec.KindDecoder}, NewOpusDecoder)
	Register(codec.Info{Name: codec.NameOpusEncoder, Mime: codec.MimeOpus, Kind: codec.KindEncoder}, NewOpusEncoder)
	Register(codec.Info{Name: codec.NameRawDecoder, Mime: codec.MimeRaw, Kind: codec.KindDecoder}, NewPCMDecoder)
	Register(codec.Info{Name: codec.NameRawEncoder, Mime: codec.MimeRaw, Kind: codec.KindEncoder}, NewPCMEncoder)
}
