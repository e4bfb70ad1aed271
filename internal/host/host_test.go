package host

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want PlayerList
	}{
		{"vanilla", "There are 2 of a max of 20 players online: Alice, Bob", PlayerList{2, 20, []string{"Alice", "Bob"}}},
		{"empty", "There are 0 of a max of 20 players online: ", PlayerList{0, 20, nil}},
		{"legacy", "There are 1/10 players online:\nSteve", PlayerList{1, 10, []string{"Steve"}}},
		{"colored", "§6There are §c1§6 of a max of §c5§6 players online: §fAlex", PlayerList{1, 5, []string{"Alex"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseList(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseList("Unknown command")
	assert.Error(t, err)
}

type fakeRCON struct {
	mu       sync.Mutex
	fail     int
	commands []string
	closed   int
}

func (f *fakeRCON) Execute(cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.fail > 0 {
		f.fail--
		return "", errors.New("broken pipe")
	}
	return "There are 1 of a max of 20 players online: Alice", nil
}

func (f *fakeRCON) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func TestRCON_RetriesOnFreshConnection(t *testing.T) {
	conn := &fakeRCON{fail: 1}
	dials := 0
	r := NewRCON("127.0.0.1:25575", "pw", time.Second)
	r.dial = func(addr, pw string, _ time.Duration) (rconConn, error) {
		dials++
		assert.Equal(t, "pw", pw)
		return conn, nil
	}

	out, err := r.Execute(context.Background(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.Equal(t, 2, dials)
	assert.Equal(t, 1, conn.closed)

	_, err = r.Execute(context.Background(), "list")
	require.NoError(t, err)
	assert.Equal(t, 2, dials, "healthy connection is reused")
}

func TestRCON_Errors(t *testing.T) {
	var nilRCON *RCON
	_, err := nilRCON.Execute(context.Background(), "list")
	assert.ErrorIs(t, err, ErrNoRCON)

	r := NewRCON("127.0.0.1:1", "", time.Second)
	r.dial = func(string, string, time.Duration) (rconConn, error) { return nil, errors.New("refused") }
	_, err = r.Execute(context.Background(), "list")
	assert.ErrorContains(t, err, "refused")

	conn := &fakeRCON{fail: 5}
	r.dial = func(string, string, time.Duration) (rconConn, error) { return conn, nil }
	_, err = r.Execute(context.Background(), "list")
	assert.ErrorContains(t, err, "broken pipe")
}

func TestServer_PlayersOverRCON(t *testing.T) {
	s := NewServer(Options{RCON: RCONOptions{Address: "127.0.0.1:25575"}})
	conn := &fakeRCON{}
	s.rcon.dial = func(string, string, time.Duration) (rconConn, error) { return conn, nil }

	list, err := s.Players(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, list.Names)

	// attached mode: console commands go over RCON
	require.NoError(t, s.Execute(context.Background(), "say hi"))
	assert.Equal(t, []string{"list", "say hi"}, conn.commands)
}

func TestServer_NoRCON(t *testing.T) {
	s := NewServer(Options{})
	_, err := s.Query(context.Background(), "list")
	assert.ErrorIs(t, err, ErrNoRCON)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler(t *testing.T) {
	s := NewScheduler()
	var n atomic.Int32

	require.NoError(t, s.Add("tick", "@every 1s", func() { n.Add(1) }))
	require.NoError(t, s.Add("five-field", "*/5 * * * *", func() {}))
	assert.Error(t, s.Add("bad", "not a spec", func() {}))
	assert.ElementsMatch(t, []string{"tick", "five-field"}, s.Names())

	s.Start()
	defer s.Stop(context.Background())
	assert.Eventually(t, func() bool { return n.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	s.Remove("tick")
	s.Remove("unknown")
	assert.Equal(t, []string{"five-field"}, s.Names())
}

func TestProcess_EchoesCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses cat")
	}
	p := NewProcess(ProcessConfig{Path: "cat", StopTimeout: 2 * time.Second})

	lines := make(chan string, 8)
	p.OnLine(func(l string) { lines <- l })

	assert.ErrorIs(t, p.Execute(context.Background(), "early"), ErrNotRunning)
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	require.NoError(t, p.Execute(context.Background(), "say hello"))
	select {
	case l := <-lines:
		assert.Equal(t, "say hello", l)
	case <-time.After(2 * time.Second):
		t.Fatal("no console line")
	}

	// cat exits once stdin is closed
	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(context.Background()))
}

func TestProcess_RequiresPath(t *testing.T) {
	assert.Error(t, NewProcess(ProcessConfig{}).Start(context.Background()))
}
