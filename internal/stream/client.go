// ABOUTME: WebSocket listener for a stream server
// ABOUTME: Turns received chunks back into packets so a session can decode them
package stream

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrRejected is returned by Dial when the server refuses the handshake
var ErrRejected = errors.New("stream: rejected by server")

// Listener receives one stream. It implements session.Source.
type Listener struct {
	conn   *websocket.Conn
	server ServerHello
	log    *logrus.Entry

	packets chan demux.Packet
	formats chan audio.Format
	done    chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// ListenerConfig identifies the listener to the server
type ListenerConfig struct {
	ClientID string
	Name     string
	Buffer   int // packets buffered before the reader stalls, 256 when unset
}

// Dial connects to url and completes the handshake
func Dial(ctx context.Context, url string, cfg ListenerConfig) (*Listener, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}
	if cfg.Name == "" {
		cfg.Name = "codecbridge"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial failed")
	}

	l := &Listener{
		conn:    conn,
		log:     logrus.WithFields(logrus.Fields{"component": "listener", "url": url}),
		packets: make(chan demux.Packet, cfg.Buffer),
		formats: make(chan audio.Format, 4),
		done:    make(chan struct{}),
	}
	if err := l.handshake(cfg); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake failed")
	}

	go l.readMessages()
	return l, nil
}

func (l *Listener) handshake(cfg ListenerConfig) error {
	hello, err := NewMessage(TypeClientHello, ClientHello{
		ClientID: cfg.ClientID,
		Name:     cfg.Name,
		Version:  ProtocolVersion,
	})
	if err != nil {
		return err
	}
	if err := l.conn.WriteJSON(hello); err != nil {
		return errors.Wrap(err, "send client/hello")
	}

	_ = l.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := l.conn.ReadJSON(&msg); err != nil {
		return errors.Wrap(err, "read server/hello")
	}
	_ = l.conn.SetReadDeadline(time.Time{})

	switch msg.Type {
	case TypeServerHello:
		if err := msg.Decode(&l.server); err != nil {
			return err
		}
	case TypeServerError:
		var e ServerError
		_ = msg.Decode(&e)
		return errors.Wrap(ErrRejected, e.Message)
	default:
		return errors.Errorf("expected server/hello, got %s", msg.Type)
	}
	l.log.WithField("server", l.server.Name).Debug("Handshake complete")
	return nil
}

// Server returns the server's hello
func (l *Listener) Server() ServerHello {
	return l.server
}

// readMessages routes incoming messages until the stream ends or the
// connection drops
func (l *Listener) readMessages() {
	defer close(l.packets)

	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			l.finish(err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			pts, flags, payload, err := ParseChunk(data)
			if err != nil {
				l.log.WithError(err).Warn("Skipping binary message")
				continue
			}
			select {
			case l.packets <- demux.Packet{Data: payload, PTS: pts, Flags: flags}:
			case <-l.done:
				return
			}

		case websocket.TextMessage:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				l.log.WithError(err).Warn("Failed to parse JSON message")
				continue
			}
			if l.handleJSON(msg) {
				l.finish(nil)
				return
			}
		}
	}
}

// handleJSON applies a control message; true at end of stream
func (l *Listener) handleJSON(msg Message) bool {
	switch msg.Type {
	case TypeStreamStart:
		var start StreamStart
		if err := msg.Decode(&start); err != nil {
			l.log.WithError(err).Warn("Bad stream/start")
			return false
		}
		f, err := start.Format()
		if err != nil {
			l.log.WithError(err).Warn("Bad stream/start")
			return false
		}
		select {
		case l.formats <- f:
		default:
			l.log.Warn("Format announcements not consumed, dropping")
		}
	case TypeStreamEnd:
		return true
	default:
		l.log.WithField("type", msg.Type).Debug("Unknown message type")
	}
	return false
}

func (l *Listener) finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil && err != nil && !l.closed &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		l.err = err
	}
}

// WaitFormat blocks until the server announces the stream format
func (l *Listener) WaitFormat(ctx context.Context) (audio.Format, error) {
	select {
	case f := <-l.formats:
		return f, nil
	case <-ctx.Done():
		return audio.Format{}, ctx.Err()
	case <-l.done:
		return audio.Format{}, io.EOF
	}
}

// ReadPacket returns the next chunk as a packet. io.EOF follows stream/end
// or a clean close; a dropped connection returns its error.
func (l *Listener) ReadPacket() (demux.Packet, error) {
	pkt, ok := <-l.packets
	if ok {
		return pkt, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return demux.Packet{}, errors.Wrap(l.err, "stream connection")
	}
	return demux.Packet{}, io.EOF
}

// Close disconnects from the server
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return l.conn.Close()
}
