package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorcon/rcon"
)

// rconConn is the subset of *rcon.Conn the client uses.
type rconConn interface {
	Execute(command string) (string, error)
	Close() error
}

type rconDialer func(address, password string, timeout time.Duration) (rconConn, error)

func dialRCON(address, password string, timeout time.Duration) (rconConn, error) {
	conn, err := rcon.Dial(address, password, rcon.SetDialTimeout(timeout), rcon.SetDeadline(timeout))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RCON is a lazily connected RCON client. A failed command drops the
// connection and is retried once on a fresh one.
type RCON struct {
	address  string
	password string
	timeout  time.Duration
	dial     rconDialer

	mu   sync.Mutex
	conn rconConn
}

// NewRCON creates a client; nothing is dialled until the first command.
func NewRCON(address, password string, timeout time.Duration) *RCON {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RCON{address: address, password: password, timeout: timeout, dial: dialRCON}
}

// Execute runs command and returns the server's reply.
func (r *RCON) Execute(ctx context.Context, command string) (string, error) {
	if r == nil || r.address == "" {
		return "", ErrNoRCON
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if r.conn == nil {
			conn, err := r.dial(r.address, r.password, r.timeout)
			if err != nil {
				return "", fmt.Errorf("rcon dial %s: %w", r.address, err)
			}
			r.conn = conn
		}
		out, err := r.conn.Execute(command)
		if err == nil {
			return out, nil
		}
		lastErr = err
		_ = r.conn.Close()
		r.conn = nil
	}
	return "", fmt.Errorf("rcon execute: %w", lastErr)
}

// Close drops the connection.
func (r *RCON) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
