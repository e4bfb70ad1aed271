package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcqq/internal/config"
	"mcqq/internal/connector/minecraft"
	"mcqq/internal/connector/qq"
	"mcqq/internal/connector/testsink"
	"mcqq/internal/host"
	"mcqq/internal/storage"
	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

type fakeHost struct {
	mu       sync.Mutex
	lines    []func(string)
	executed []string
	tasks    []string
}

func (h *fakeHost) Execute(_ context.Context, cmd string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executed = append(h.executed, cmd)
	return nil
}

func (h *fakeHost) OnLine(fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, fn)
}

func (h *fakeHost) Query(context.Context, string) (string, error) { return "", nil }

func (h *fakeHost) Players(context.Context) (host.PlayerList, error) {
	return host.PlayerList{}, nil
}

func (h *fakeHost) Schedule(name, _ string, _ func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, name)
	return nil
}

func (h *fakeHost) emit(line string) {
	h.mu.Lock()
	subs := append([]func(string){}, h.lines...)
	h.mu.Unlock()
	for _, fn := range subs {
		fn(line)
	}
}

func (h *fakeHost) tellraws() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.executed {
		if strings.HasPrefix(c, "tellraw ") {
			out = append(out, c)
		}
	}
	return out
}

const testConfig = `
server_name: survival
command_prefix: "#"
i18n:
  lang: en_us
permissions:
  admins:
    qq: ["10001"]
players:
  max_java: 1
`

func loadConfig(t *testing.T, body string) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	m, err := config.Load(path)
	require.NoError(t, err)
	return m
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "mcqq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type router struct {
	app    *App
	host   *fakeHost
	qq     *testsink.Connector
	bridge *testsink.Connector
}

// newRouter runs the real system chain over a console-driven Minecraft
// connector and recording QQ and bridge connectors.
func newRouter(t *testing.T) *router {
	t.Helper()
	ctx := context.Background()
	r := &router{
		host:   &fakeHost{},
		qq:     testsink.New("QQ", connector.Flags{Enable: true, EnableReceive: true, EnableSend: true}),
		bridge: testsink.New("Bridge", connector.Flags{Enable: true, EnableReceive: true, EnableSend: true}),
	}
	mc := minecraft.New(r.host, minecraft.Options{
		Name:   "Minecraft",
		Flags:  connector.Flags{Enable: true, EnableReceive: true, EnableSend: true},
		Server: "survival",
	})

	a, err := New(ctx, Options{
		Config:     loadConfig(t, testConfig),
		DB:         openDB(t),
		Host:       r.host,
		Connectors: []connector.Connector{mc, r.qq, r.bridge},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	r.app = a
	return r
}

func groupMessage(text string, admin bool) *message.BroadcastInfo {
	return &message.BroadcastInfo{
		EventType:    message.EventMessage,
		EventSubType: message.TargetGroup,
		Message:      message.TextMessage(text),
		SourceID:     "G",
		Sender:       "bob",
		SenderID:     "10001",
		IsAdmin:      admin,
	}
}

func TestScenario_MinecraftChatReachesQQAndBridge(t *testing.T) {
	r := newRouter(t)

	r.host.emit("[12:00:00] [Server thread/INFO]: <Alice> hello")

	require.Len(t, r.qq.Sent(), 1)
	got := r.qq.Sent()[0]
	assert.Equal(t, []string{"Minecraft"}, got.Source.Chain())
	assert.Equal(t, "Alice", got.Sender)
	assert.Equal(t, "[Minecraft] Alice: hello", (&qq.Formatter{}).Render(got, "QQ").PlainText())

	assert.Equal(t, []string{"hello"}, r.bridge.Texts())
	assert.Empty(t, r.host.tellraws(), "never echoed back to Minecraft")
}

func TestScenario_BanWordManagementRepliesToOriginOnly(t *testing.T) {
	r := newRouter(t)

	assert.True(t, r.qq.Inject(context.Background(), groupMessage("#ban_words add foo reason", true)))

	require.Len(t, r.qq.Sent(), 1)
	reply := r.qq.Sent()[0]
	assert.Equal(t, "Added banned word foo", reply.ProcessedMessage.PlainText())
	assert.Equal(t, map[string]string{"G": message.TargetGroup}, reply.Target)
	assert.Empty(t, r.bridge.Sent())
	assert.Empty(t, r.host.tellraws())
}

func TestScenario_KeywordReplyGoesEverywhere(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	r.qq.Inject(ctx, groupMessage("#keyword add ping pong", true))
	r.qq.Reset()

	assert.True(t, r.qq.Inject(ctx, groupMessage("ping", false)))

	assert.Equal(t, []string{"pong"}, r.qq.Texts())
	assert.Equal(t, []string{"ping", "pong"}, r.bridge.Texts())

	raws := r.host.tellraws()
	require.Len(t, raws, 2)
	assert.Contains(t, raws[0], `"text":"ping"`)
	assert.Contains(t, raws[1], `"text":"pong"`)
}

func TestScenario_IncludeIsExact(t *testing.T) {
	ctx := context.Background()
	flags := connector.Flags{Enable: true, EnableReceive: true, EnableSend: true}
	q1, q2 := testsink.New("QQ", flags), testsink.New("QQ2", flags)

	a, err := New(ctx, Options{
		Config:     loadConfig(t, testConfig),
		DB:         openDB(t),
		Host:       &fakeHost{},
		Connectors: []connector.Connector{q1, q2},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer a.Stop(ctx)

	info := &message.ProcessedInfo{ProcessedMessage: message.TextMessage("hi"), Source: message.NewSource("Test")}
	assert.Empty(t, a.Connectors().BroadcastProcessedInfo(ctx, info, []string{"QQ"}, nil))
	assert.Equal(t, []string{"hi"}, q1.Texts())
	assert.Empty(t, q2.Texts())
}

func TestScenario_BridgedMessageNotEchoedBack(t *testing.T) {
	r := newRouter(t)

	relayed := groupMessage("from creative", false)
	relayed.Source = message.NewSource("Minecraft", "creative", "Bridge")
	assert.True(t, r.bridge.Inject(context.Background(), relayed))

	assert.Empty(t, r.bridge.Sent())
	assert.Equal(t, []string{"from creative"}, r.qq.Texts())
	raws := r.host.tellraws()
	require.Len(t, raws, 1)
	assert.Contains(t, raws[0], "[Minecraft] ", "labelled although the origin name matches")
}

func TestApp_BuildsConnectorsFromConfig(t *testing.T) {
	ctx := context.Background()
	h := &fakeHost{}
	a, err := New(ctx, Options{
		Config: loadConfig(t, testConfig+`
connectors:
  test:
    enable: true
    name: Diag
  bridge:
    enable: true
    role: server
    listen: "127.0.0.1:0"
host:
  cleanup_schedule: "@every 1m"
`),
		DB:   openDB(t),
		Host: h,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	assert.Equal(t, []string{"Minecraft", "QQ", "Bridge", "Diag"}, a.Connectors().Names())
	assert.Equal(t, []string{"help", "command", "online", "bind", "ban_words", "keyword", "echo"}, a.Systems().Names())
	assert.Equal(t, []string{cleanupTask}, h.tasks)
	assert.NotNil(t, a.Env().QQ, "leave notices resolve names through the gateway")

	require.NoError(t, a.Stop(ctx))
}

func TestApp_SystemCanBeDisabled(t *testing.T) {
	a, err := New(context.Background(), Options{
		Config:     loadConfig(t, testConfig+"systems:\n  keyword:\n    enable: false\n"),
		DB:         openDB(t),
		Host:       &fakeHost{},
		Connectors: []connector.Connector{},
	})
	require.NoError(t, err)
	assert.NotContains(t, a.Systems().Names(), "keyword")
}

func TestApp_ReloadAppliesLimits(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	r.qq.Inject(ctx, groupMessage("#bind java Steve", false))
	r.qq.Inject(ctx, groupMessage("#bind java Alex", false))
	assert.Equal(t, "Binding limit reached", r.qq.Texts()[1])

	path := r.app.cfg.Path()
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(testConfig, "max_java: 1", "max_java: 2", 1)), 0600))
	require.NoError(t, r.app.cfg.Reload())

	r.qq.Inject(ctx, groupMessage("#bind java Alex", false))
	assert.Equal(t, "Bound bob to java account Alex", r.qq.Texts()[2])
}

func TestApp_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
