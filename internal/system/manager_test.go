package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcqq/pkg/message"
)

type stubSystem struct {
	name    string
	claim   bool
	err     error
	panics  bool
	initErr error
	calls   int
}

func (s *stubSystem) Name() string                     { return s.name }
func (s *stubSystem) Initialize(context.Context) error { return s.initErr }
func (s *stubSystem) ProcessBroadcastInfo(context.Context, *message.BroadcastInfo) (bool, error) {
	s.calls++
	if s.panics {
		panic("boom")
	}
	return s.claim, s.err
}

func newInfo(text string) *message.BroadcastInfo {
	return &message.BroadcastInfo{
		EventType:      message.EventMessage,
		EventSubType:   message.TargetGroup,
		Message:        message.TextMessage(text),
		Source:         message.NewSource("QQ"),
		SourceID:       "100",
		Sender:         "alice",
		SenderID:       "1",
		ReceiverSource: "QQ",
	}
}

func TestManager_Register(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	require.NoError(t, m.Register(ctx, &stubSystem{name: "a"}))
	err := m.Register(ctx, &stubSystem{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateSystem)

	err = m.Register(ctx, &stubSystem{name: "b", initErr: errors.New("no db")})
	require.Error(t, err)
	_, ok := m.Get("b")
	assert.False(t, ok)

	require.NoError(t, m.Unregister("a"))
	assert.ErrorIs(t, m.Unregister("a"), ErrSystemNotFound)
	assert.Empty(t, m.Names())
}

func TestManager_Placement(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	require.NoError(t, m.Register(ctx, &stubSystem{name: "help"}))
	require.NoError(t, m.Register(ctx, &stubSystem{name: "echo"}))
	require.NoError(t, m.Register(ctx, &stubSystem{name: "bind"}, Before("echo")))
	require.NoError(t, m.Register(ctx, &stubSystem{name: "list"}, After("help")))
	require.NoError(t, m.Register(ctx, &stubSystem{name: "tail"}, Before("missing")))

	assert.Equal(t, []string{"help", "list", "bind", "echo", "tail"}, m.Names())
}

func TestManager_FirstClaimWins(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	a := &stubSystem{name: "a"}
	b := &stubSystem{name: "b", claim: true}
	c := &stubSystem{name: "c", claim: true}
	for _, s := range []*stubSystem{a, b, c} {
		require.NoError(t, m.Register(ctx, s))
	}

	assert.True(t, m.BroadcastCommand(ctx, newInfo("hi"), nil, nil))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 0, c.calls)
}

func TestManager_FaultIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	failing := &stubSystem{name: "failing", claim: true, err: errors.New("broken")}
	panicking := &stubSystem{name: "panicking", panics: true}
	last := &stubSystem{name: "echo", claim: true}
	for _, s := range []*stubSystem{failing, panicking, last} {
		require.NoError(t, m.Register(ctx, s))
	}

	assert.True(t, m.Handler()(ctx, newInfo("hi")))
	assert.Equal(t, 1, last.calls)
}

func TestManager_IncludeExclude(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	a := &stubSystem{name: "a", claim: true}
	b := &stubSystem{name: "b", claim: true}
	require.NoError(t, m.Register(ctx, a))
	require.NoError(t, m.Register(ctx, b))

	assert.True(t, m.BroadcastCommand(ctx, newInfo("x"), []string{"b"}, nil))
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.True(t, m.BroadcastCommand(ctx, newInfo("x"), nil, []string{"a"}))
	assert.Equal(t, 0, a.calls)

	// an empty include is no filter, as for connectors
	assert.True(t, m.BroadcastCommand(ctx, newInfo("x"), []string{}, nil))
	assert.Equal(t, 1, a.calls)
	assert.False(t, m.BroadcastCommand(ctx, newInfo("x"), []string{"missing"}, nil))
	assert.False(t, m.BroadcastCommand(ctx, nil, nil, nil))
}

type recordBroadcaster struct {
	infos    []*message.ProcessedInfo
	includes [][]string
	excludes [][]string
}

func (r *recordBroadcaster) BroadcastProcessedInfo(_ context.Context, info *message.ProcessedInfo, include, exclude []string) map[string]error {
	r.infos = append(r.infos, info)
	r.includes = append(r.includes, include)
	r.excludes = append(r.excludes, exclude)
	return nil
}

type mapTranslator map[string]string

func (t mapTranslator) Tr(key string, params map[string]any) string {
	if v, ok := t[key]; ok {
		return v + ":" + params["prefix"].(string)
	}
	return key
}

func TestEnv_Reply(t *testing.T) {
	rec := &recordBroadcaster{}
	env := &Env{Connectors: rec}

	info := newInfo("#help")
	env.ReplyText(context.Background(), info, "usage")

	require.Len(t, rec.infos, 1)
	out := rec.infos[0]
	assert.Equal(t, []string{"QQ"}, rec.includes[0])
	assert.Equal(t, map[string]string{"100": message.TargetGroup}, out.Target)
	assert.Empty(t, out.Sender)
	assert.Equal(t, "usage", out.ProcessedMessage.PlainText())

	private := newInfo("#help")
	private.EventSubType = message.TargetPrivate
	private.SourceID = "1"
	env.ReplyText(context.Background(), private, "usage")
	assert.Equal(t, map[string]string{"1": message.TargetPrivate}, rec.infos[1].Target)
}

func TestEnv_RelayExclude(t *testing.T) {
	info := newInfo("hi")
	assert.Equal(t, []string{"QQ"}, RelayExclude(info))

	info.Source = message.NewSource("Minecraft", "Bridge")
	info.ReceiverSource = "Bridge"
	assert.Equal(t, []string{"Bridge"}, RelayExclude(info))

	info.Source = message.NewSource("Minecraft")
	info.ReceiverSource = "Bridge"
	assert.Equal(t, []string{"Minecraft", "Bridge"}, RelayExclude(info))
}

func TestEnv_TrAddsPrefix(t *testing.T) {
	env := &Env{Translator: mapTranslator{"help.title": "t"}, Prefix: func() string { return "!" }}
	assert.Equal(t, "t:!", env.Tr("help.title", nil))

	env.Prefix = func() string { return "" }
	assert.Equal(t, "t:#", env.Tr("help.title", nil))

	assert.Equal(t, "other", (&Env{}).Tr("other", nil))
}

func TestIsLocal(t *testing.T) {
	assert.True(t, IsLocal(newInfo("x")))
	relayed := newInfo("x")
	relayed.Source = message.NewSource("Minecraft", "Bridge")
	assert.False(t, IsLocal(relayed))
}
