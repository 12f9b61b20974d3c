// ABOUTME: Tee sink duplicating output to several sinks
// ABOUTME: Format and end of stream notices reach every sink that accepts them
package sink

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/pkg/errors"
)

// Tee writes every buffer to each sink in order and stops at the first error
type Tee []session.Sink

// NewTee combines sinks
func NewTee(sinks ...session.Sink) Tee {
	return Tee(sinks)
}

// Write passes data to every sink
func (t Tee) Write(data []byte, info codec.BufferInfo) error {
	for i, s := range t {
		if err := s.Write(data, info); err != nil {
			return errors.Wrapf(err, "tee sink %d", i)
		}
	}
	return nil
}

// SetFormat passes f to every FormatSink
func (t Tee) SetFormat(f audio.Format) error {
	for i, s := range t {
		if fs, ok := s.(session.FormatSink); ok {
			if err := fs.SetFormat(f); err != nil {
				return errors.Wrapf(err, "tee sink %d", i)
			}
		}
	}
	return nil
}

// EndOfStream notifies every EndSink
func (t Tee) EndOfStream() error {
	for i, s := range t {
		if es, ok := s.(session.EndSink); ok {
			if err := es.EndOfStream(); err != nil {
				return errors.Wrapf(err, "tee sink %d", i)
			}
		}
	}
	return nil
}
