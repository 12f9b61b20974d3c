// ABOUTME: Asynchronous codec contract package
// ABOUTME: Buffer descriptors, callback set, Codec interface and the by-name registry
// Package codec defines the contract between an application and a
// callback-driven audio codec.
//
// The codec owns a fixed set of buffer slots identified by index. A slot is
// handed to the application through OnInputBufferAvailable or
// OnOutputBufferAvailable and belongs to the application until it is handed
// back with QueueInputBuffer or ReleaseOutputBuffer. Ownership strictly
// alternates; the application must not touch a slot after handing it back.
//
// Codecs are created by canonical name or by mime type:
//
//	c, err := codec.CreateByName(codec.NameAACDecoder)
//	c, err := codec.CreateByMime(codec.MimeOpus, codec.KindEncoder)
package codec
