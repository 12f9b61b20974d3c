// ABOUTME: Sink package receiving session output buffers
// ABOUTME: File, packet file, memory, reorder, pipe, resample and playback sinks
// Package sink provides destinations for codec output.
//
// Every sink implements session.Sink. Sinks that keep data past Write copy
// it, since the slot memory goes back to the codec on return. Sinks that
// need the stream format implement session.FormatSink, and sinks that must
// react to end of stream implement session.EndSink.
//
//	mem := sink.NewMemory()
//	s, _ := session.NewByName(codec.NameRawDecoder, session.Config{Source: src, Sink: mem})
package sink
