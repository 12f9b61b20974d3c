// ABOUTME: Software codec engine package
// ABOUTME: Drives a synchronous Transform behind the asynchronous codec contract
// Package soft implements codec.Codec over synchronous transforms.
//
// An Engine owns its buffer slots and a goroutine that delivers every
// callback. Input slots are announced at Start, handed back by
// QueueInputBuffer, processed by the Transform and announced again. Produced
// units are copied into free output slots and announced with a descriptor;
// ReleaseOutputBuffer returns the slot to the pool.
//
// Importing the package registers the AAC decoder and the Opus and raw PCM
// codecs:
//
//	import _ "github.com/Resonate-Protocol/codecbridge/pkg/codec/soft"
//
//	c, err := codec.CreateByName(codec.NameOpusDecoder)
//
// Other backends plug in with Register under any name, including the
// canonical MPEG and FLAC names.
package soft
