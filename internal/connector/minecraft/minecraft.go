// Package minecraft connects the local server console to the router.
package minecraft

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"mcqq/internal/host"
	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Options configures the Minecraft connector.
type Options struct {
	Name      string
	Flags     connector.Flags
	Server    string
	JoinLeave bool
	Notice    NoticeFunc
	IsAdmin   func(player string) bool
}

// Connector reads chat from the console stream and writes outbound messages
// with tellraw.
type Connector struct {
	*connector.Base

	console   host.Console
	parser    *LineParser
	connected atomic.Bool
}

var _ connector.Connector = (*Connector)(nil)

// New creates the connector and subscribes to console lines; lines are
// ignored until Connect.
func New(console host.Console, opts Options) *Connector {
	c := &Connector{
		Base:    connector.NewBase(opts.Name, opts.Flags),
		console: console,
		parser: &LineParser{
			Server:    opts.Server,
			JoinLeave: opts.JoinLeave,
			Notice:    opts.Notice,
			IsAdmin:   opts.IsAdmin,
		},
	}
	console.OnLine(c.HandleLine)
	return c
}

// Connect implements connector.Connector.
func (c *Connector) Connect(context.Context) error {
	c.connected.Store(true)
	return nil
}

// Disconnect implements connector.Connector.
func (c *Connector) Disconnect(context.Context) error {
	c.connected.Store(false)
	return nil
}

// HandleLine parses one console line and delivers the event.
func (c *Connector) HandleLine(line string) {
	if !c.connected.Load() || !c.CanReceive() {
		return
	}
	info, err := c.parser.Parse(line)
	if err != nil {
		if !errors.Is(err, connector.ErrSkip) {
			c.Log.Warn().Err(connector.NewParseError(c.Name(), []byte(line), err)).Msg("Parse failed")
		}
		return
	}
	c.Deliver(context.Background(), info)
}

// SendMessage implements connector.Connector. Pinned private targets are
// player names and receive a private tellraw; everything else goes to @a.
func (c *Connector) SendMessage(ctx context.Context, info *message.ProcessedInfo) error {
	if !c.CanSend() || info == nil || info.ProcessedMessage.IsEmpty() {
		return nil
	}

	var cs []Component
	if !info.Source.IsFrom(c.Name()) || info.Source.Len() > 1 {
		cs = append(cs, Label(info)...)
	}
	cs = append(cs, Components(info.ProcessedMessage)...)
	payload, err := encode(cs)
	if err != nil {
		return fmt.Errorf("build tellraw: %w", err)
	}

	var errs []error
	for _, who := range recipients(info) {
		if err := c.console.Execute(ctx, "tellraw "+who+" "+payload); err != nil {
			c.Log.Warn().Err(err).Str("target", who).Msg("tellraw failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recipients(info *message.ProcessedInfo) []string {
	var out []string
	for id, kind := range info.Target {
		if kind == message.TargetPrivate && id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return []string{"@a"}
	}
	return out
}
