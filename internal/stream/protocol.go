// ABOUTME: Wire messages for the codec output stream server
// ABOUTME: JSON control messages plus binary chunks carrying PTS and flags
package stream

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

const (
	// ProtocolVersion is sent in both hello messages
	ProtocolVersion = 1

	// ChunkMessageType tags binary codec output chunks
	ChunkMessageType = 1

	chunkHeaderSize = 1 + 8 + 4
)

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeServerError = "server/error"
	TypeStreamStart = "stream/start"
	TypeStreamEnd   = "stream/end"
)

// ErrInvalidChunk is returned for binary messages that are not chunks
var ErrInvalidChunk = errors.New("stream: invalid chunk")

// Message is the top-level wrapper for all JSON messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a message
func NewMessage(msgType string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Wrapf(err, "marshal %s", msgType)
	}
	return Message{Type: msgType, Payload: data}, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	return errors.Wrapf(json.Unmarshal(m.Payload, v), "decode %s", m.Type)
}

// ClientHello is sent by listeners to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Codec    string `json:"codec,omitempty"`
}

// ServerError reports a rejected handshake
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StreamStart announces the format of the chunks that follow
type StreamStart struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	Bitrate     int    `json:"bitrate,omitempty"`
	CodecHeader string `json:"codec_header,omitempty"` // Base64-encoded
}

// StreamEnd closes the stream
type StreamEnd struct {
	Chunks int64 `json:"chunks"`
}

// StartFor describes f on the wire
func StartFor(f audio.Format) StreamStart {
	s := StreamStart{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
		Bitrate:    f.Bitrate,
	}
	if len(f.CodecHeader) > 0 {
		s.CodecHeader = base64.StdEncoding.EncodeToString(f.CodecHeader)
	}
	return s
}

// Format converts the announcement back into an audio format
func (s StreamStart) Format() (audio.Format, error) {
	f := audio.Format{
		Codec:      s.Codec,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		BitDepth:   s.BitDepth,
		Bitrate:    s.Bitrate,
	}
	if s.Codec == "pcm" {
		switch s.BitDepth {
		case 24:
			f.SampleFormat = audio.SampleS24LE
		case 32:
			f.SampleFormat = audio.SampleS32LE
		default:
			f.SampleFormat = audio.SampleS16LE
		}
	}
	if s.CodecHeader != "" {
		header, err := base64.StdEncoding.DecodeString(s.CodecHeader)
		if err != nil {
			return audio.Format{}, errors.Wrap(err, "codec header")
		}
		f.CodecHeader = header
	}
	return f, nil
}

// CreateChunk builds a binary chunk message
func CreateChunk(pts int64, flags codec.Flags, data []byte) []byte {
	// Binary format: [message_type:1][pts:8][flags:4][data:N]
	chunk := make([]byte, chunkHeaderSize+len(data))
	chunk[0] = ChunkMessageType
	binary.BigEndian.PutUint64(chunk[1:9], uint64(pts))
	binary.BigEndian.PutUint32(chunk[9:13], uint32(flags))
	copy(chunk[chunkHeaderSize:], data)
	return chunk
}

// ParseChunk splits a binary chunk message; data aliases msg
func ParseChunk(msg []byte) (pts int64, flags codec.Flags, data []byte, err error) {
	if len(msg) < chunkHeaderSize {
		return 0, 0, nil, errors.Wrapf(ErrInvalidChunk, "%d bytes", len(msg))
	}
	if msg[0] != ChunkMessageType {
		return 0, 0, nil, errors.Wrapf(ErrInvalidChunk, "message type %d", msg[0])
	}
	pts = int64(binary.BigEndian.Uint64(msg[1:9]))
	flags = codec.Flags(binary.BigEndian.Uint32(msg[9:13]))
	return pts, flags, msg[chunkHeaderSize:], nil
}
