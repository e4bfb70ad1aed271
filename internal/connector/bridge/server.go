package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const handshakeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// peers are servers, not browsers
	CheckOrigin: func(*http.Request) bool { return true },
}

// server is the accepting side of the bridge.
type server struct {
	c   *Connector
	hub *Hub

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	started  time.Time
}

func newServer(c *Connector) *server {
	return &server{c: c, hub: NewHub()}
}

// router returns the bridge routes.
func (s *server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/bridge", s.handleBridge).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return Recovery(Logging(r))
}

func (s *server) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.c.opts.Listen)
	if err != nil {
		return fmt.Errorf("bridge listen %s: %w", s.c.opts.Listen, err)
	}
	s.listener = ln
	s.started = time.Now()
	s.http = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.http
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.c.Log.Error().Err(err).Msg("Bridge server stopped")
		}
	}()
	s.c.Log.Info().Str("addr", ln.Addr().String()).Msg("Bridge server listening")
	return nil
}

// addr returns the listening address, or "" before start.
func (s *server) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *server) stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	// hijacked connections are not closed by Shutdown
	s.hub.closeAll()
	return srv.Shutdown(ctx)
}

func (s *server) authorized(r *http.Request) bool {
	want := s.c.opts.Token
	if want == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"server":  s.c.opts.ServerName,
		"version": ProtocolVersion,
		"peers":   s.hub.Names(),
		"uptime":  int64(time.Since(s.started).Seconds()),
	})
}

func (s *server) handleBridge(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		sendJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.c.Log.Warn().Err(err).Msg("Bridge upgrade failed")
		return
	}

	name, err := s.handshake(conn)
	if err != nil {
		s.c.Log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Bridge handshake rejected")
		_ = conn.Close()
		return
	}

	p := newPeer(name, conn)
	s.hub.add(p)
	go p.writePump()
	p.readPump(func(data []byte) { s.c.handleFrame(name, data) })
	s.hub.remove(p)
}

// handshake reads the peer's hello and answers with ours.
func (s *server) handshake(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	reject := func(err error) (string, error) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(Envelope{Type: TypeError, Server: s.c.opts.ServerName, Error: err.Error()})
		return "", err
	}
	if hello.Type != TypeHello || hello.Server == "" {
		return reject(fmt.Errorf("%w: expected hello", ErrHandshake))
	}
	if hello.Server == s.c.opts.ServerName {
		return reject(fmt.Errorf("%w: peer uses our server name %q", ErrHandshake, hello.Server))
	}
	if err := CheckVersion(hello.Version); err != nil {
		return reject(err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, _ := json.Marshal(Envelope{Type: TypeHello, Server: s.c.opts.ServerName, Version: ProtocolVersion})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return hello.Server, nil
}
