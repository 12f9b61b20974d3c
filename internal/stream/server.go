// ABOUTME: WebSocket server broadcasting a session's output to listeners
// ABOUTME: Acts as the session sink and manages listener connections
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/codecbridge/internal/discovery"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	Path       string // websocket endpoint, "/stream" when empty
	Codec      string // codec name advertised to listeners
	EnableMDNS bool
	SendBuffer int // per-listener queued messages, 256 when unset
}

// Server fans codec output out to every connected listener. It implements
// session.Sink, session.FormatSink and session.EndSink.
type Server struct {
	config   Config
	serverID string
	upgrader websocket.Upgrader
	log      *logrus.Entry

	httpServer *http.Server
	mux        *http.ServeMux

	// clientsMu also orders format announcements against chunks
	clientsMu sync.RWMutex
	clients   map[string]*Client
	start     *StreamStart

	chunks  atomic.Int64
	dropped atomic.Int64

	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client is a connected listener
type Client struct {
	ID       string
	Name     string
	Conn     *websocket.Conn
	sendChan chan interface{}
}

// New creates a server
func New(config Config) *Server {
	if config.Path == "" {
		config.Path = "/stream"
	}
	if config.SendBuffer < 2 {
		config.SendBuffer = 256
	}
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Listeners are local tools, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
	}
	s.log = logrus.WithFields(logrus.Fields{"component": "stream", "server": s.serverID[:8]})
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop or ctx ends
func (s *Server) Start(ctx context.Context) error {
	s.log.WithField("name", s.config.Name).Info("Stream server starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
			Codec:       s.config.Codec,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.WithError(err).Warn("Failed to start mDNS advertisement")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("WebSocket server listening")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
	case <-ctx.Done():
	case err := <-errChan:
		serverErr = err
	}
	s.log.Info("Stream server shutting down")

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("HTTP server shutdown error")
	}
	s.closeClients()
	s.wg.Wait()

	if serverErr != nil {
		return errors.Wrap(serverErr, "HTTP server failed")
	}
	return nil
}

// Stop ends Start
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// closeSignal asks a client writer to close after the messages queued before it
type closeSignal struct{}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.sendChan <- closeSignal{}:
		default:
			_ = c.Conn.Close()
		}
	}
}

// Clients returns the number of connected listeners
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Dropped returns the number of chunks dropped for slow listeners
func (s *Server) Dropped() int64 {
	return s.dropped.Load()
}

// Write broadcasts one output buffer
func (s *Server) Write(data []byte, info codec.BufferInfo) error {
	chunk := CreateChunk(info.PTS, info.Flags, data)
	s.chunks.Add(1)

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		if err := s.sendBinary(c, chunk); err != nil {
			s.dropped.Add(1)
		}
	}
	return nil
}

// SetFormat announces f to current and future listeners
func (s *Server) SetFormat(f audio.Format) error {
	start := StartFor(f)
	msg, err := NewMessage(TypeStreamStart, start)
	if err != nil {
		return err
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.start = &start
	for _, c := range s.clients {
		if err := s.sendMessage(c, msg); err != nil {
			s.log.WithField("client", c.Name).WithError(err).Warn("Dropping format announcement")
		}
	}
	return nil
}

// EndOfStream tells every listener the stream is over
func (s *Server) EndOfStream() error {
	msg, err := NewMessage(TypeStreamEnd, StreamEnd{Chunks: s.chunks.Load()})
	if err != nil {
		return err
	}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.start = nil
	for _, c := range s.clients {
		_ = s.sendMessage(c, msg)
	}
	return nil
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	s.log.WithField("remote", r.RemoteAddr).Debug("New WebSocket connection")
	s.handleConnection(conn)
}

// handleConnection runs one listener from handshake to disconnect
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.log.Debug("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		s.log.WithError(err).Debug("Error reading hello")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if msg.Type != TypeClientHello {
		s.log.WithField("type", msg.Type).Warn("Expected client/hello")
		return
	}
	var hello ClientHello
	if err := msg.Decode(&hello); err != nil || hello.ClientID == "" || hello.Name == "" {
		s.log.WithError(err).Warn("Invalid client hello")
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan interface{}, s.config.SendBuffer),
	}
	log := s.log.WithFields(logrus.Fields{"client": client.Name, "id": client.ID})

	serverHello, err := NewMessage(TypeServerHello, ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
		Codec:    s.config.Codec,
	})
	if err != nil {
		return
	}

	// Register with hello and the current format queued first so that no
	// chunk overtakes them
	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		log.WithField("existing", existing.Name).Warn("Client ID already connected, rejecting duplicate")
		if reject, err := NewMessage(TypeServerError, ServerError{
			Error:   "duplicate_client_id",
			Message: "Client ID already connected",
		}); err == nil {
			_ = conn.WriteJSON(reject)
		}
		return
	}
	client.sendChan <- serverHello
	if s.start != nil {
		if start, err := NewMessage(TypeStreamStart, *s.start); err == nil {
			client.sendChan <- start
		}
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	log.Info("Listener connected")

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		close(client.sendChan)
		s.clientsMu.Unlock()
		log.Info("Listener disconnected")
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	// Listeners send nothing after hello; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("WebSocket error")
			}
			return
		}
	}
}

// clientWriter sends queued messages to the listener
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case closeSignal:
				_ = client.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = client.Conn.Close()
				return
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				var data []byte
				if data, err = json.Marshal(v); err == nil {
					err = client.Conn.WriteMessage(websocket.TextMessage, data)
				}
			}
			if err != nil {
				s.log.WithField("client", client.Name).WithError(err).Debug("Write failed")
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a JSON message without blocking
func (s *Server) sendMessage(client *Client, msg Message) error {
	select {
	case client.sendChan <- msg:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

// sendBinary queues a chunk without blocking
func (s *Server) sendBinary(client *Client, data []byte) error {
	select {
	case client.sendChan <- data:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}
