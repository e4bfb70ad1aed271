// Package bridge links router instances on different Minecraft servers.
//
// One process runs the server role and accepts peers; the others run the
// client role and keep one connection to it. Every frame carries the full
// source chain, and no hop sends toward a server that is already in it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Roles.
const (
	RoleServer = "server"
	RoleClient = "client"
)

// Options configures the bridge connector.
type Options struct {
	Name  string
	Flags connector.Flags
	// ServerName identifies this process to its peers.
	ServerName string
	Role       string
	// Listen is the server role address.
	Listen string
	// URL is the client role peer address.
	URL       string
	Token     string
	Reconnect time.Duration
	DedupTTL  time.Duration
}

// Connector is the bridge endpoint in either role.
type Connector struct {
	*connector.Base

	opts Options
	seen *seenSet

	server *server
	client *client
}

var _ connector.Connector = (*Connector)(nil)

// New creates a bridge connector. The role is fixed here.
func New(opts Options) (*Connector, error) {
	if opts.ServerName == "" {
		return nil, errors.New("bridge: server name is required")
	}
	if opts.Reconnect <= 0 {
		opts.Reconnect = 5 * time.Second
	}
	c := &Connector{
		Base: connector.NewBase(opts.Name, opts.Flags),
		opts: opts,
		seen: newSeenSet(opts.DedupTTL),
	}
	switch opts.Role {
	case RoleServer:
		c.server = newServer(c)
	case RoleClient:
		if opts.URL == "" {
			return nil, errors.New("bridge: url is required in client role")
		}
		c.client = newClient(c)
	default:
		return nil, fmt.Errorf("bridge: unknown role %q", opts.Role)
	}
	return c, nil
}

// Role returns the configured role.
func (c *Connector) Role() string { return c.opts.Role }

// Peers returns the names of connected peers.
func (c *Connector) Peers() []string {
	if c.server != nil {
		return c.server.hub.Names()
	}
	if name := c.client.peerName(); name != "" {
		return []string{name}
	}
	return nil
}

// Connect implements connector.Connector. The server role starts listening;
// the client role starts dialling in the background.
func (c *Connector) Connect(ctx context.Context) error {
	if !c.Flags().Enable {
		return nil
	}
	if c.server != nil {
		return c.server.start()
	}
	c.client.start()
	return nil
}

// Disconnect implements connector.Connector. Pending reconnects are
// cancelled.
func (c *Connector) Disconnect(ctx context.Context) error {
	if c.server != nil {
		return c.server.stop(ctx)
	}
	c.client.stop()
	return nil
}

// SendMessage implements connector.Connector. This server's name is appended
// to the chain, and peers already in the chain are skipped.
func (c *Connector) SendMessage(_ context.Context, info *message.ProcessedInfo) error {
	if !c.CanSend() || info == nil {
		return nil
	}
	out := info.Clone()
	out.Source.Add(c.opts.ServerName)
	// destination ids of one server mean nothing on another
	out.Target = nil

	env := Envelope{
		Type:   TypeMessage,
		ID:     uuid.NewString(),
		Server: c.opts.ServerName,
		Info:   out,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	c.seen.Add(env.ID)

	if c.server != nil {
		c.server.hub.broadcast(data, out.Source.Contains)
		return nil
	}
	return c.client.send(data, out.Source)
}

// handleFrame processes one frame received from the peer named from.
func (c *Connector) handleFrame(from string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.Log.Warn().Err(connector.NewParseError(c.Name(), data, err)).Msg("Bad bridge frame")
		return
	}
	switch env.Type {
	case TypeMessage:
	case TypeHello:
		return
	case TypeError:
		c.Log.Warn().Str("peer", from).Str("error", env.Error).Msg("Bridge peer reported error")
		return
	default:
		c.Log.Debug().Str("type", env.Type).Msg("Unknown bridge frame")
		return
	}
	if env.Info == nil {
		c.Log.Warn().Err(connector.NewParseError(c.Name(), data, errors.New("missing info"))).Msg("Bad bridge frame")
		return
	}
	if !c.seen.Add(env.ID) {
		c.Log.Debug().Str("id", env.ID).Msg("Duplicate bridge message dropped")
		return
	}

	if c.server != nil {
		chain := env.Info.Source
		c.server.hub.broadcast(data, func(name string) bool {
			return name == from || chain.Contains(name)
		})
	}
	c.Deliver(context.Background(), c.toBroadcast(&env))
}

func (c *Connector) toBroadcast(env *Envelope) *message.BroadcastInfo {
	in := env.Info
	src := in.Source.Clone()
	src.Add(c.Name())
	ev := in.EventType
	if ev == "" {
		ev = message.EventMessage
	}
	return &message.BroadcastInfo{
		EventType:      ev,
		EventSubType:   in.EventSubType,
		Message:        in.ProcessedMessage,
		Raw:            in.Raw,
		Source:         src,
		SourceID:       in.SourceID,
		Sender:         in.Sender,
		SenderID:       in.SenderID,
		Receiver:       in.Receiver,
		ReceiverSource: c.Name(),
		IsAdmin:        in.IsAdmin,
	}
}
