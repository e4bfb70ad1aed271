package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcqq/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024 * 1024

	sendBuffer = 256
)

// peer is one established bridge connection.
type peer struct {
	name string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(name string, conn *websocket.Conn) *peer {
	return &peer{
		name:   name,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// enqueue queues data; it reports false when the peer is gone or its buffer
// is full.
func (p *peer) enqueue(data []byte) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		logger.Warn().Str("peer", p.name).Msg("Bridge peer buffer full, dropping frame")
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = p.conn.Close()
	})
}

// readPump delivers frames to onFrame until the connection fails.
func (p *peer) readPump(onFrame func(data []byte)) {
	defer p.close()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Str("peer", p.name).Msg("Bridge read error")
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		onFrame(data)
	}
}

// writePump writes queued frames and keeps the connection alive.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()

	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn().Err(err).Str("peer", p.name).Msg("Bridge write error")
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.closed:
			return
		}
	}
}

// Hub holds the peers of the server role keyed by their server name.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*peer
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[string]*peer)}
}

// add registers p, replacing and closing an older peer of the same name.
func (h *Hub) add(p *peer) {
	h.mu.Lock()
	old := h.peers[p.name]
	h.peers[p.name] = p
	h.mu.Unlock()
	if old != nil {
		logger.Info().Str("peer", p.name).Msg("Bridge peer reconnected, replacing old connection")
		old.close()
	}
	logger.Info().Str("peer", p.name).Msg("Bridge peer connected")
}

// remove unregisters p if it is still the current peer of its name.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	if h.peers[p.name] == p {
		delete(h.peers, p.name)
	}
	h.mu.Unlock()
	logger.Info().Str("peer", p.name).Msg("Bridge peer disconnected")
}

// broadcast queues data for every peer not skipped and returns the number of
// peers it was queued for.
func (h *Hub) broadcast(data []byte, skip func(name string) bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for name, p := range h.peers {
		if skip != nil && skip(name) {
			continue
		}
		if p.enqueue(data) {
			n++
		}
	}
	return n
}

// Names returns the connected peer names, sorted.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.peers))
	for name := range h.peers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of connected peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}
