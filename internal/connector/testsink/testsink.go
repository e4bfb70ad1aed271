// Package testsink provides a diagnostic connector that performs no I/O.
package testsink

import (
	"context"
	"sync"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Connector logs outbound messages instead of sending them and keeps them for
// inspection. Inject feeds an inbound event as if it arrived from a channel.
type Connector struct {
	*connector.Base

	mu        sync.Mutex
	connected bool
	sent      []*message.ProcessedInfo
	sendErr   error
}

var _ connector.Connector = (*Connector)(nil)

// New creates a test connector.
func New(name string, flags connector.Flags) *Connector {
	return &Connector{Base: connector.NewBase(name, flags)}
}

// Connect implements connector.Connector.
func (c *Connector) Connect(context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.Log.Debug().Msg("Test connector connected")
	return nil
}

// Disconnect implements connector.Connector.
func (c *Connector) Disconnect(context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// Connected reports whether Connect was called more recently than Disconnect.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendMessage implements connector.Connector.
func (c *Connector) SendMessage(_ context.Context, info *message.ProcessedInfo) error {
	if !c.CanSend() || info == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, info)
	c.Log.Info().
		Str("source", info.Source.String()).
		Str("sender", info.Sender).
		Str("text", info.ProcessedMessage.PlainText()).
		Msg("Test send")
	return nil
}

// FailWith makes subsequent sends return err; nil restores success.
func (c *Connector) FailWith(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent returns the recorded outbound messages.
func (c *Connector) Sent() []*message.ProcessedInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*message.ProcessedInfo, len(c.sent))
	copy(out, c.sent)
	return out
}

// Texts returns the plain text of every recorded message.
func (c *Connector) Texts() []string {
	sent := c.Sent()
	out := make([]string, 0, len(sent))
	for _, s := range sent {
		out = append(out, s.ProcessedMessage.PlainText())
	}
	return out
}

// Reset drops the recorded messages.
func (c *Connector) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

// Inject delivers info to the registered handler and returns whether a
// system claimed it.
func (c *Connector) Inject(ctx context.Context, info *message.BroadcastInfo) bool {
	return c.Deliver(ctx, info)
}
