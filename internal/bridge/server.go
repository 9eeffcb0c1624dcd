package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNoPeer is returned by Send when no companion is connected.
var ErrNoPeer = errors.New("no peer connected")

// ServerState tracks the connection manager lifecycle.
type ServerState string

const (
	StateIdle      ServerState = "idle"
	StateListening ServerState = "listening"
	StateConnected ServerState = "connected"
)

const writeTimeout = 10 * time.Second

// Peer is the handle to the single connected companion transport.
type Peer struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server owns the listening socket and the single-peer invariant: at most one
// accepted connection exists at any instant, and a second connection attempt
// while one is active is refused before the WebSocket handshake completes.
//
// Each complete text message is one protocol envelope; the underlying
// WebSocket framing keeps sends and receives atomic.
type Server struct {
	host string
	port int

	upgrader   websocket.Upgrader
	listener   net.Listener
	httpServer *http.Server

	mu    sync.Mutex
	peer  *Peer
	state ServerState

	onMessage    func(data []byte)
	onConnect    func(peer *Peer)
	onDisconnect func(peerID uuid.UUID)
}

func NewServer(host string, port int) *Server {
	return &Server{
		host:  host,
		port:  port,
		state: StateIdle,
		// The companion always dials from localhost; origin checks do not apply
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// OnMessage sets the inbound message callback. One message is fully handled
// before the next one is read from the transport.
func (s *Server) OnMessage(fn func(data []byte)) { s.onMessage = fn }

// OnConnect sets the callback invoked after a peer is accepted.
func (s *Server) OnConnect(fn func(peer *Peer)) { s.onConnect = fn }

// OnDisconnect sets the callback invoked when the peer transport closes or
// errors. It is never invoked for an explicit Stop.
func (s *Server) OnDisconnect(fn func(peerID uuid.UUID)) { s.onDisconnect = fn }

// Start binds the listening socket and begins accepting. With port 0 the
// kernel assigns a free port; Port reports the bound one.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("server already started (state %s)", s.state)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	s.listener = listener
	s.httpServer = &http.Server{Handler: s}
	s.state = StateListening

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Bridge listener stopped", "error", err)
		}
	}()

	slog.Info("Bridge listening", "addr", listener.Addr().String())
	return nil
}

// Port returns the actual bound port. Valid after Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// State returns the current lifecycle state.
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a peer is currently attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer != nil && s.peer.conn != nil
}

// CurrentPeer returns the active peer handle, or nil.
func (s *Server) CurrentPeer() *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// ServeHTTP handles one inbound connection attempt. The single-peer check
// happens before the upgrade, so a rejected peer never completes a handshake.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peer := &Peer{
		ID:          uuid.New(),
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	// Reserve the peer slot first so two simultaneous dials cannot both pass
	s.mu.Lock()
	if s.peer != nil {
		s.mu.Unlock()
		slog.Warn("Refusing connection, a peer is already active", "remote", r.RemoteAddr)
		http.Error(w, "a peer is already connected", http.StatusConflict)
		return
	}
	s.peer = peer
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.mu.Lock()
		if s.peer == peer {
			s.peer = nil
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	peer.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	slog.Info("Peer connected", "peer", peer.ID, "remote", peer.RemoteAddr)
	if s.onConnect != nil {
		s.onConnect(peer)
	}

	s.readLoop(peer)
}

// readLoop reads complete messages until the transport closes. Dispatch is
// synchronous: the next message is not read until the callback returns.
func (s *Server) readLoop(peer *Peer) {
	for {
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("Peer closed connection", "peer", peer.ID)
			} else {
				slog.Warn("Peer transport error", "peer", peer.ID, "error", err)
			}
			s.dropPeer(peer)
			return
		}
		if s.onMessage != nil {
			s.onMessage(data)
		}
	}
}

// dropPeer clears the connection slot and re-enters Listening. The listener
// keeps accepting; only an explicit Stop leaves Listening for Idle.
func (s *Server) dropPeer(peer *Peer) {
	s.mu.Lock()
	if s.peer != peer {
		// Already replaced or stopped
		s.mu.Unlock()
		return
	}
	s.peer = nil
	if s.state == StateConnected {
		s.state = StateListening
	}
	notify := s.state == StateListening
	s.mu.Unlock()

	peer.conn.Close()
	slog.Info("Peer disconnected", "peer", peer.ID)

	if notify && s.onDisconnect != nil {
		s.onDisconnect(peer.ID)
	}
}

// Send writes one complete message to the connected peer. It never blocks
// waiting for a peer to appear.
func (s *Server) Send(data []byte) error {
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()

	if peer == nil || peer.conn == nil {
		return ErrNoPeer
	}

	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()

	peer.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := peer.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write to peer %s: %w", peer.ID, err)
	}
	return nil
}

// Stop closes the active peer transport and the listener, returning to Idle.
// The disconnect callback is not fired for an explicit stop.
func (s *Server) Stop() {
	s.mu.Lock()
	peer := s.peer
	s.peer = nil
	s.state = StateIdle
	httpServer := s.httpServer
	s.mu.Unlock()

	if peer != nil && peer.conn != nil {
		peer.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		peer.conn.Close()
	}
	if httpServer != nil {
		httpServer.Close()
	}
}
