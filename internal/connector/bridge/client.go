package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Dialer opens the websocket to the bridge server.
type Dialer func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

func defaultDialer(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// Timer is the part of *time.Timer the client uses.
type Timer interface {
	Stop() bool
}

func defaultAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// client keeps one connection to the bridge server. After a failure a single
// retry is scheduled; stop cancels it. Every start begins a new generation,
// and dials or retries left over from an older one drop out.
type client struct {
	c         *Connector
	dial      Dialer
	afterFunc func(d time.Duration, f func()) Timer

	mu      sync.Mutex
	running bool
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	retry   Timer
	peer    *peer
}

func newClient(c *Connector) *client {
	return &client{c: c, dial: defaultDialer, afterFunc: defaultAfterFunc}
}

func (cl *client) start() {
	cl.mu.Lock()
	if cl.running {
		cl.mu.Unlock()
		return
	}
	cl.running = true
	cl.gen++
	gen := cl.gen
	cl.ctx, cl.cancel = context.WithCancel(context.Background())
	cl.mu.Unlock()
	go cl.attempt(gen)
}

func (cl *client) stop() {
	cl.mu.Lock()
	cl.running = false
	cl.gen++
	if cl.cancel != nil {
		cl.cancel()
	}
	if cl.retry != nil {
		cl.retry.Stop()
		cl.retry = nil
	}
	p := cl.peer
	cl.peer = nil
	cl.mu.Unlock()
	if p != nil {
		p.close()
	}
}

// current reports whether gen is the live generation; callers hold mu.
func (cl *client) current(gen uint64) bool {
	return cl.running && cl.gen == gen
}

// attempt dials once; on failure it schedules the next attempt.
func (cl *client) attempt(gen uint64) {
	cl.mu.Lock()
	if !cl.current(gen) {
		cl.mu.Unlock()
		return
	}
	ctx := cl.ctx
	cl.mu.Unlock()

	p, err := cl.connect(ctx)
	if err != nil {
		cl.c.Log.Warn().Err(err).Dur("retry_in", cl.c.opts.Reconnect).Msg("Bridge connect failed")
		cl.schedule(gen)
		return
	}

	cl.mu.Lock()
	if !cl.current(gen) {
		cl.mu.Unlock()
		p.close()
		return
	}
	cl.peer = p
	cl.mu.Unlock()
	cl.c.Log.Info().Str("peer", p.name).Msg("Bridge connected")

	go p.writePump()
	go func() {
		p.readPump(func(data []byte) { cl.c.handleFrame(p.name, data) })
		cl.mu.Lock()
		if cl.peer == p {
			cl.peer = nil
		}
		cl.mu.Unlock()
		cl.c.Log.Warn().Str("peer", p.name).Dur("retry_in", cl.c.opts.Reconnect).Msg("Bridge connection lost")
		cl.schedule(gen)
	}()
}

// schedule arms the retry timer unless gen is stale or a retry is armed.
func (cl *client) schedule(gen uint64) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if !cl.current(gen) || cl.retry != nil {
		return
	}
	cl.retry = cl.afterFunc(cl.c.opts.Reconnect, func() {
		cl.mu.Lock()
		if cl.gen == gen {
			cl.retry = nil
		}
		cl.mu.Unlock()
		cl.attempt(gen)
	})
}

func (cl *client) connect(ctx context.Context) (*peer, error) {
	header := http.Header{}
	if cl.c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+cl.c.opts.Token)
	}
	dctx, cancel := context.WithTimeout(ctx, handshakeWait)
	defer cancel()
	conn, err := cl.dial(dctx, cl.c.opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cl.c.opts.URL, err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	hello, _ := json.Marshal(Envelope{Type: TypeHello, Server: cl.c.opts.ServerName, Version: ProtocolVersion})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	var reply Envelope
	if err := conn.ReadJSON(&reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if reply.Type == TypeError {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrHandshake, reply.Error)
	}
	if reply.Type != TypeHello || reply.Server == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: expected hello", ErrHandshake)
	}
	if err := CheckVersion(reply.Version); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return newPeer(reply.Server, conn), nil
}

func (cl *client) peerName() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.peer == nil {
		return ""
	}
	return cl.peer.name
}

// send queues data unless the server is already in the chain.
func (cl *client) send(data []byte, chain message.Source) error {
	cl.mu.Lock()
	p := cl.peer
	cl.mu.Unlock()
	if p == nil {
		return connector.ErrNotConnected
	}
	if chain.Contains(p.name) {
		return nil
	}
	if !p.enqueue(data) {
		return fmt.Errorf("bridge peer %s: send buffer unavailable", p.name)
	}
	return nil
}
