package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion("1.0.0"))
	assert.NoError(t, CheckVersion("1.4.2"))
	assert.ErrorIs(t, CheckVersion("2.0.0"), ErrIncompatible)
	assert.ErrorIs(t, CheckVersion("0.9.0"), ErrIncompatible)
	assert.ErrorIs(t, CheckVersion("garbage"), ErrIncompatible)
}

func TestSeenSet(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newSeenSet(time.Minute)
	s.now = func() time.Time { return now }

	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add(""))
	assert.True(t, s.Add(""))

	now = now.Add(2 * time.Minute)
	assert.True(t, s.Add("b"))
	assert.Equal(t, 1, s.Len(), "expired ids are swept")
	assert.True(t, s.Add("a"))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Name: "Bridge", Role: RoleClient, ServerName: "a"})
	assert.Error(t, err)
	_, err = New(Options{Name: "Bridge", Role: "mesh", ServerName: "a"})
	assert.Error(t, err)
	_, err = New(Options{Name: "Bridge", Role: RoleServer})
	assert.Error(t, err)
}

type inbox struct {
	ch chan *message.BroadcastInfo
}

func newInbox(c *Connector) *inbox {
	in := &inbox{ch: make(chan *message.BroadcastInfo, 16)}
	c.OnMessage(func(_ context.Context, info *message.BroadcastInfo) bool {
		in.ch <- info
		return false
	})
	return in
}

func (in *inbox) next(t *testing.T) *message.BroadcastInfo {
	t.Helper()
	select {
	case info := <-in.ch:
		return info
	case <-time.After(3 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func (in *inbox) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case info := <-in.ch:
		t.Fatalf("unexpected delivery: %v", info.Source)
	case <-time.After(wait):
	}
}

func flags() connector.Flags { return connector.ResolveFlags(true, nil, nil) }

func startServer(t *testing.T, token string) *Connector {
	t.Helper()
	s, err := New(Options{Name: "Bridge", Flags: flags(), ServerName: "hub", Role: RoleServer, Listen: "127.0.0.1:0", Token: token})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func startClient(t *testing.T, server *Connector, name, token string) *Connector {
	t.Helper()
	c, err := New(Options{
		Name: "Bridge", Flags: flags(), ServerName: name, Role: RoleClient,
		URL: "ws://" + server.server.addr() + "/bridge", Token: token, Reconnect: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	require.Eventually(t, func() bool { return len(c.Peers()) == 1 }, 3*time.Second, 10*time.Millisecond)
	return c
}

func TestBridge_RelayAcrossThreeServers(t *testing.T) {
	hub := startServer(t, "tok")
	a := startClient(t, hub, "survival", "tok")
	b := startClient(t, hub, "creative", "tok")
	require.Eventually(t, func() bool { return hub.server.hub.Count() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"creative", "survival"}, hub.Peers())
	assert.Equal(t, []string{"hub"}, a.Peers())

	hubIn, aIn, bIn := newInbox(hub), newInbox(a), newInbox(b)

	require.NoError(t, a.SendMessage(context.Background(), &message.ProcessedInfo{
		EventType:        message.EventMessage,
		ProcessedMessage: message.TextMessage("hello"),
		Source:           message.NewSource("Minecraft"),
		Sender:           "Alice",
		IsAdmin:          true,
		Target:           map[string]string{"123": message.TargetGroup},
	}))

	got := hubIn.next(t)
	assert.Equal(t, []string{"Minecraft", "survival", "Bridge"}, got.Source.Chain())
	assert.Equal(t, "Bridge", got.ReceiverSource)
	assert.Equal(t, "hello", got.Message.PlainText())
	assert.Equal(t, "Alice", got.Sender)
	assert.True(t, got.IsAdmin)
	assert.Nil(t, got.Target)

	got = bIn.next(t)
	assert.Equal(t, []string{"Minecraft", "survival", "Bridge"}, got.Source.Chain())
	aIn.none(t, 200*time.Millisecond)
}

func TestBridge_ServerSkipsPeersInChain(t *testing.T) {
	hub := startServer(t, "")
	a := startClient(t, hub, "survival", "")
	b := startClient(t, hub, "creative", "")
	require.Eventually(t, func() bool { return hub.server.hub.Count() == 2 }, 3*time.Second, 10*time.Millisecond)
	aIn, bIn := newInbox(a), newInbox(b)

	require.NoError(t, hub.SendMessage(context.Background(), &message.ProcessedInfo{
		ProcessedMessage: message.TextMessage("x"),
		Source:           message.NewSource("QQ", "creative"),
	}))
	got := aIn.next(t)
	assert.Equal(t, []string{"QQ", "creative", "hub", "Bridge"}, got.Source.Chain())
	bIn.none(t, 200*time.Millisecond)
}

func TestBridge_ClientSkipsWhenServerInChain(t *testing.T) {
	hub := startServer(t, "")
	a := startClient(t, hub, "survival", "")
	hubIn := newInbox(hub)

	require.NoError(t, a.SendMessage(context.Background(), &message.ProcessedInfo{
		ProcessedMessage: message.TextMessage("x"),
		Source:           message.NewSource("QQ", "hub"),
	}))
	hubIn.none(t, 200*time.Millisecond)
}

func TestBridge_RejectsBadToken(t *testing.T) {
	hub := startServer(t, "secret")
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+hub.server.addr()+"/bridge", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBridge_RejectsIncompatibleVersion(t *testing.T) {
	hub := startServer(t, "")
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+hub.server.addr()+"/bridge", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeHello, Server: "old", Version: "2.1.0"}))
	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeError, reply.Type)
	assert.Contains(t, reply.Error, "incompatible")
	assert.Equal(t, 0, hub.server.hub.Count())
}

func TestBridge_Health(t *testing.T) {
	hub := startServer(t, "")
	resp, err := http.Get("http://" + hub.server.addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "hub", body["server"])
}

func TestBridge_DuplicateIDsDropped(t *testing.T) {
	c, err := New(Options{Name: "Bridge", Flags: flags(), ServerName: "survival", Role: RoleClient, URL: "ws://127.0.0.1:1/bridge"})
	require.NoError(t, err)
	in := newInbox(c)

	data, err := json.Marshal(Envelope{Type: TypeMessage, ID: "m1", Server: "hub", Info: &message.ProcessedInfo{
		ProcessedMessage: message.TextMessage("once"),
		Source:           message.NewSource("QQ", "hub"),
	}})
	require.NoError(t, err)

	c.handleFrame("hub", data)
	c.handleFrame("hub", data)
	c.handleFrame("hub", []byte("not json"))

	assert.Equal(t, "once", in.next(t).Message.PlainText())
	in.none(t, 100*time.Millisecond)
}

type fakeTimer struct {
	stopped atomic.Bool
}

func (f *fakeTimer) Stop() bool { return !f.stopped.Swap(true) }

func TestBridge_ClientReconnectScheduling(t *testing.T) {
	hub := startServer(t, "")

	c, err := New(Options{
		Name: "Bridge", Flags: flags(), ServerName: "survival", Role: RoleClient,
		URL: "ws://" + hub.server.addr() + "/bridge", Reconnect: 5 * time.Second,
	})
	require.NoError(t, err)

	var dials atomic.Int32
	c.client.dial = func(ctx context.Context, url string, h http.Header) (*websocket.Conn, error) {
		dials.Add(1)
		return defaultDialer(ctx, url, h)
	}
	var (
		mu        sync.Mutex
		scheduled []time.Duration
		fire      func()
		timer     = &fakeTimer{}
	)
	c.client.afterFunc = func(d time.Duration, f func()) Timer {
		mu.Lock()
		defer mu.Unlock()
		scheduled = append(scheduled, d)
		fire = f
		return timer
	}

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return len(c.Peers()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, dials.Load())
	require.Eventually(t, func() bool { return hub.server.hub.Count() == 1 }, 3*time.Second, 10*time.Millisecond)

	// the peer closes the socket
	hub.server.hub.closeAll()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(scheduled) == 1
	}, 3*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []time.Duration{5 * time.Second}, scheduled)
	retry := fire
	mu.Unlock()

	// disabling before the timer fires cancels the retry
	require.NoError(t, c.Disconnect(context.Background()))
	assert.True(t, timer.stopped.Load())

	// even a late fire does not dial
	retry()
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, dials.Load())
	mu.Lock()
	assert.Len(t, scheduled, 1)
	mu.Unlock()
}

func TestBridge_ClientRestartIgnoresStaleDial(t *testing.T) {
	hub := startServer(t, "")

	c, err := New(Options{
		Name: "Bridge", Flags: flags(), ServerName: "survival", Role: RoleClient,
		URL: "ws://" + hub.server.addr() + "/bridge", Reconnect: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })

	var dials atomic.Int32
	release := make(chan struct{})
	c.client.dial = func(ctx context.Context, url string, h http.Header) (*websocket.Conn, error) {
		if dials.Add(1) == 1 {
			<-release
			return nil, errors.New("connection refused")
		}
		return defaultDialer(ctx, url, h)
	}
	var scheduled atomic.Int32
	c.client.afterFunc = func(time.Duration, func()) Timer {
		scheduled.Add(1)
		return &fakeTimer{}
	}

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, func() bool { return dials.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Disconnect(ctx))
	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, func() bool { return len(c.Peers()) == 1 }, 3*time.Second, 10*time.Millisecond)

	// the first dial fails only now, under the new session
	close(release)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, scheduled.Load(), "no retry armed for the old session")
	assert.EqualValues(t, 2, dials.Load())
	assert.Equal(t, []string{"hub"}, c.Peers())
}

func TestBridge_SendWithoutPeer(t *testing.T) {
	c, err := New(Options{Name: "Bridge", Flags: flags(), ServerName: "survival", Role: RoleClient, URL: "ws://127.0.0.1:1/bridge"})
	require.NoError(t, err)
	err = c.SendMessage(context.Background(), &message.ProcessedInfo{ProcessedMessage: message.TextMessage("x")})
	assert.ErrorIs(t, err, connector.ErrNotConnected)

	off := false
	c, err = New(Options{Name: "Bridge", Flags: connector.ResolveFlags(true, nil, &off), ServerName: "s", Role: RoleClient, URL: "ws://x"})
	require.NoError(t, err)
	assert.NoError(t, c.SendMessage(context.Background(), &message.ProcessedInfo{}))
}
