// Package qq connects an OneBot v11 gateway over a forward websocket.
package qq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcqq/internal/config"
	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024 * 1024
	eventQueueSize = 256
)

// Options configures the QQ connector.
type Options struct {
	Name             string
	Flags            connector.Flags
	URL              string
	AccessToken      string
	Groups           []string
	AllowPrivate     bool
	MaxMessageLength int
	Templates        []config.Template
	GetterTimeout    time.Duration
	Reconnect        time.Duration
	IsAdmin          func(userID string) bool
	DisplayName      func(info *message.ProcessedInfo) string
}

// Connector relays between the router and QQ groups.
type Connector struct {
	*connector.Base

	opts      Options
	bot       *Bot
	parser    *EventParser
	formatter *Formatter
	dialer    *websocket.Dialer

	// sleep waits between parts sent to one destination.
	sleep func(ctx context.Context, d time.Duration) error
	// partDelay returns the pause between parts.
	partDelay func() time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ connector.Connector = (*Connector)(nil)

// New creates a disconnected QQ connector.
func New(opts Options) *Connector {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxLength
	}
	if opts.Reconnect <= 0 {
		opts.Reconnect = 5 * time.Second
	}
	return &Connector{
		Base: connector.NewBase(opts.Name, opts.Flags),
		opts: opts,
		bot:  NewBot(opts.GetterTimeout),
		parser: &EventParser{
			Groups:       opts.Groups,
			AllowPrivate: opts.AllowPrivate,
			IsAdmin:      opts.IsAdmin,
		},
		formatter: &Formatter{Templates: opts.Templates, DisplayName: opts.DisplayName},
		dialer:    websocket.DefaultDialer,
		sleep:     sleepCtx,
		partDelay: randomDelay,
	}
}

// Bot returns the gateway proxy.
func (c *Connector) Bot() *Bot { return c.bot }

// MemberName resolves the group card or nickname of userID, then the account
// nickname. Both lookups share one getter timeout.
func (c *Connector) MemberName(ctx context.Context, groupID, userID string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.bot.timeout)
	defer cancel()
	if groupID != "" {
		if m, ok := c.bot.GetGroupMemberInfo(ctx, groupID, userID); ok && m.DisplayName() != "" {
			return m.DisplayName(), true
		}
	}
	if s, ok := c.bot.GetStrangerInfo(ctx, userID); ok && s.Nickname != "" {
		return s.Nickname, true
	}
	return "", false
}

// SetTemplates replaces the label templates, e.g. after a config reload.
func (c *Connector) SetTemplates(ts []config.Template) {
	c.mu.Lock()
	c.formatter = &Formatter{Templates: ts, DisplayName: c.opts.DisplayName}
	c.mu.Unlock()
}

// Connect starts the background connection loop and returns immediately.
func (c *Connector) Connect(ctx context.Context) error {
	if !c.Flags().Enable {
		return nil
	}
	if c.opts.URL == "" {
		return errors.New("qq: url is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)
	return nil
}

// Disconnect stops the loop and waits for it to exit; no reconnect happens
// afterwards.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connector) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		c.Log.Warn().Err(err).Dur("retry_in", c.opts.Reconnect).Msg("Gateway connection lost")
		select {
		case <-time.After(c.opts.Reconnect):
		case <-ctx.Done():
			return
		}
	}
}

// session holds one websocket connection until it fails or ctx ends.
func (c *Connector) session(ctx context.Context) error {
	header := http.Header{}
	if c.opts.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	var writeMu sync.Mutex
	c.bot.attach(func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	})
	c.Log.Info().Str("url", c.opts.URL).Msg("Gateway connected")

	sessCtx, stop := context.WithCancel(ctx)
	events := make(chan []byte, eventQueueSize)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer wg.Done()
		c.dispatch(sessCtx, events)
	}()
	defer func() {
		c.bot.detach()
		stop()
		close(events)
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !c.handleFrame(sessCtx, data, events) {
			return sessCtx.Err()
		}
	}
}

// handleFrame answers waiters directly and queues events so a system that
// calls a getter never blocks the reader. A full queue applies backpressure
// to the reader; it returns false only when ctx ends first.
func (c *Connector) handleFrame(ctx context.Context, data []byte, events chan<- []byte) bool {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.Log.Warn().Err(connector.NewParseError(c.Name(), data, err)).Msg("Bad frame")
		return true
	}
	if f.PostType == "" {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil && resp.Echo != "" {
			c.bot.HandleResponse(resp)
		}
		return true
	}
	select {
	case events <- data:
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatch processes events in arrival order.
func (c *Connector) dispatch(ctx context.Context, events <-chan []byte) {
	for data := range events {
		c.HandleEvent(ctx, data)
	}
}

// HandleEvent parses one event and hands it to the system chain.
func (c *Connector) HandleEvent(ctx context.Context, data []byte) bool {
	if !c.CanReceive() {
		return false
	}
	info, err := c.parser.Parse(data)
	if err != nil {
		if !errors.Is(err, connector.ErrSkip) {
			c.Log.Warn().Err(connector.NewParseError(c.Name(), data, err)).Msg("Parse failed")
		}
		return false
	}
	return c.Deliver(ctx, info)
}

type destination struct {
	id   string
	kind string
}

func (c *Connector) destinations(info *message.ProcessedInfo) []destination {
	var out []destination
	if info.IsPinned() {
		for id, kind := range info.Target {
			out = append(out, destination{id: id, kind: kind})
		}
		return out
	}
	for _, g := range c.opts.Groups {
		out = append(out, destination{id: g, kind: message.TargetGroup})
	}
	return out
}

// SendMessage implements connector.Connector. Parts for one destination are
// sent in order with a short random pause between them; destinations are
// served concurrently.
func (c *Connector) SendMessage(ctx context.Context, info *message.ProcessedInfo) error {
	if !c.CanSend() || info == nil || info.ProcessedMessage.IsEmpty() {
		return nil
	}
	c.mu.Lock()
	f := c.formatter
	c.mu.Unlock()

	parts := Split(f.Render(info, c.Name()), c.opts.MaxMessageLength)
	dests := c.destinations(info)
	if len(parts) == 0 || len(dests) == 0 {
		return nil
	}

	errs := make([]error, len(dests))
	var wg sync.WaitGroup
	for i, d := range dests {
		wg.Add(1)
		go func(i int, d destination) {
			defer wg.Done()
			errs[i] = c.sendParts(ctx, d, parts)
		}(i, d)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (c *Connector) sendParts(ctx context.Context, d destination, parts []message.Message) error {
	for i, part := range parts {
		if i > 0 {
			if err := c.sleep(ctx, c.partDelay()); err != nil {
				return err
			}
		}
		var err error
		if d.kind == message.TargetPrivate {
			err = c.bot.SendPrivateMsg(d.id, part)
		} else {
			err = c.bot.SendGroupMsg(d.id, part)
		}
		if err != nil {
			return fmt.Errorf("send to %s %s: %w", d.kind, d.id, err)
		}
	}
	return nil
}

func randomDelay() time.Duration {
	return 500*time.Millisecond + rand.N(time.Second)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
