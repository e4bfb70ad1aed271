// Package app wires the router together from configuration and owns its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mcqq/internal/config"
	connmgr "mcqq/internal/connector"
	"mcqq/internal/connector/bridge"
	"mcqq/internal/connector/minecraft"
	"mcqq/internal/connector/qq"
	"mcqq/internal/connector/testsink"
	"mcqq/internal/host"
	"mcqq/internal/i18n"
	"mcqq/internal/player"
	"mcqq/internal/storage"
	"mcqq/internal/system"
	"mcqq/internal/system/builtin"
	"mcqq/pkg/connector"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// cleanupTask is the scheduler name of the expired KV sweep.
const cleanupTask = "kv-cleanup"

// Options configures New.
type Options struct {
	// Config is the loaded configuration.
	Config *config.Manager
	// DB overrides the database opened from storage.path.
	DB *storage.DB
	// Host overrides the server facade built from the host section.
	Host host.Host
	// Connectors replaces the connectors built from configuration.
	Connectors []connector.Connector
	// Watch enables reloading when the config file changes.
	Watch bool
}

// lifecycle is implemented by hosts the app starts and stops itself.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// App is the running router.
type App struct {
	cfg        *config.Manager
	db         *storage.DB
	ownDB      bool
	tr         *i18n.Translator
	players    *player.Registry
	perm       *player.Permission
	host       host.Host
	connectors *connmgr.Manager
	systems    *system.Manager
	env        *system.Env
	pending    []connector.Connector
	qq         *qq.Connector
	watcher    *config.Watcher
	watch      bool

	mu      sync.Mutex
	running bool
}

// New builds the application: storage, translations, players, the host
// facade, connectors and the system chain. Nothing connects until Start.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config.Config()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		cfg:        opts.Config,
		db:         opts.DB,
		host:       opts.Host,
		connectors: connmgr.NewManager(),
		systems:    system.NewManager(),
		watch:      opts.Watch,
	}

	if a.db == nil {
		db, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.db, a.ownDB = db, true
	}

	if err := a.init(ctx, cfg, opts.Connectors); err != nil {
		a.closeDB()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config, connectors []connector.Connector) error {
	tr, err := i18n.New(cfg.I18n.Lang, cfg.I18n.Path)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	a.tr = tr

	store, err := storage.NewStore[player.Player](ctx, a.db, player.Namespace)
	if err != nil {
		return fmt.Errorf("load players: %w", err)
	}
	a.players = player.NewRegistry(store, limits(cfg))
	a.perm = player.NewPermission(func() map[string][]string {
		return a.cfg.Config().Permissions.Admins
	}, a.players)

	if a.host == nil {
		a.host = newHost(cfg)
	}

	if connectors == nil {
		if connectors, err = a.buildConnectors(cfg); err != nil {
			return err
		}
	}
	a.pending = connectors
	if a.qq == nil {
		for _, c := range connectors {
			if q, ok := c.(*qq.Connector); ok {
				a.qq = q
				break
			}
		}
	}

	a.env = &system.Env{
		Connectors: a.connectors,
		Config:     a.cfg,
		Translator: a.tr,
		Players:    a.players,
		Host:       a.host,
		DB:         a.db,
		Prefix:     func() string { return a.cfg.Config().CommandPrefix },
		Systems:    a.systems.Systems,
	}
	if a.qq != nil {
		a.env.QQ = a.qq
	}
	if err := a.registerSystems(ctx, cfg); err != nil {
		return err
	}
	a.cfg.OnChange(a.applyConfig)
	return nil
}

func limits(cfg *config.Config) player.Limits {
	return player.Limits{
		MaxJava:     cfg.Players.MaxJava,
		MaxBedrock:  cfg.Players.MaxBedrock,
		MaxAccounts: cfg.Players.MaxAccounts,
	}
}

func newHost(cfg *config.Config) *host.Server {
	opts := host.Options{
		RCON: host.RCONOptions{
			Address:  cfg.Host.RCON.Address,
			Password: cfg.Host.RCON.Password,
			Timeout:  time.Duration(cfg.Host.RCON.Timeout) * time.Second,
		},
	}
	if cfg.Host.Command != "" {
		opts.Process = &host.ProcessConfig{
			Path:        cfg.Host.Command,
			Args:        cfg.Host.Args,
			Dir:         cfg.Host.Workdir,
			StopCommand: cfg.Host.StopCommand,
		}
	}
	return host.NewServer(opts)
}

// buildConnectors creates the configured connectors. Minecraft and QQ always
// exist and their flags decide whether they do any I/O; the bridge and test
// connectors exist only when enabled.
func (a *App) buildConnectors(cfg *config.Config) ([]connector.Connector, error) {
	mc := cfg.Connectors.Minecraft
	out := []connector.Connector{
		minecraft.New(a.host, minecraft.Options{
			Name:      mc.Name,
			Flags:     mc.Resolve(),
			Server:    cfg.ServerName,
			JoinLeave: mc.JoinLeave,
			Notice:    a.notice,
			IsAdmin: func(name string) bool {
				return a.perm.IsAdmin(player.PlatformMinecraft, name)
			},
		}),
	}

	q := cfg.Connectors.QQ
	a.qq = qq.New(qq.Options{
		Name:             q.Name,
		Flags:            q.Resolve(),
		URL:              q.URL,
		AccessToken:      q.AccessToken,
		Groups:           q.Groups,
		AllowPrivate:     q.AllowPrivate,
		MaxMessageLength: q.MaxMessageLength,
		Templates:        q.Templates,
		GetterTimeout:    q.GetterTimeoutDuration(),
		Reconnect:        q.ReconnectInterval(),
		IsAdmin: func(id string) bool {
			return a.perm.IsAdmin(player.PlatformQQ, id)
		},
		DisplayName: a.displayName,
	})
	out = append(out, a.qq)

	b := cfg.Connectors.Bridge
	if b.Enable {
		br, err := bridge.New(bridge.Options{
			Name:       b.Name,
			Flags:      b.Resolve(),
			ServerName: cfg.ServerName,
			Role:       b.Role,
			Listen:     b.Listen,
			URL:        b.URL,
			Token:      b.Token,
			Reconnect:  b.ReconnectInterval(),
			DedupTTL:   time.Duration(b.DedupTTL) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("bridge: %w", err)
		}
		out = append(out, br)
	}

	if t := cfg.Connectors.Test; t.Enable {
		out = append(out, testsink.New(t.Name, t.Resolve()))
	}
	return out, nil
}

func (a *App) registerSystems(ctx context.Context, cfg *config.Config) error {
	opts := builtin.Options{Bind: builtin.BindOptions{Minecraft: cfg.Connectors.Minecraft.Name}}
	for _, name := range builtin.Order {
		if !a.env.Bool([]string{"systems", name, "enable"}, true) {
			logger.Info().Str("system", name).Msg("System disabled")
			continue
		}
		s, err := builtin.New(name, a.env, opts)
		if err != nil {
			return err
		}
		if err := a.systems.Register(ctx, s); err != nil {
			return fmt.Errorf("register system: %w", err)
		}
	}
	return nil
}

// notice renders a Minecraft join/leave line in the configured language.
func (a *App) notice(subType, name string) message.Message {
	return message.TextMessage(a.tr.Tr("minecraft."+subType, map[string]any{"player": name}))
}

// displayName is the bound player name of the sender, if any.
func (a *App) displayName(info *message.ProcessedInfo) string {
	if info.SenderID != "" {
		if p, ok := a.players.FindByAccount(player.PlatformQQ, info.SenderID); ok {
			return p.Name
		}
	}
	if p, ok := a.players.FindByName(info.Sender); ok {
		return p.Name
	}
	return info.Sender
}

// Start connects every connector, starts the host and the config watcher.
// A connector that fails to connect is logged and left out.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	handler := a.systems.Handler()
	for _, c := range a.pending {
		c.OnMessage(handler)
		if err := a.connectors.Register(ctx, c); err != nil {
			logger.Error().Err(err).Str("connector", c.Name()).Msg("Connector not started")
		}
	}
	a.pending = nil

	if lc, ok := a.host.(lifecycle); ok {
		if err := lc.Start(ctx); err != nil {
			_ = a.connectors.DisconnectAll(ctx)
			return fmt.Errorf("start host: %w", err)
		}
	}
	if spec := a.cfg.Config().Host.CleanupSchedule; spec != "" {
		if err := a.host.Schedule(cleanupTask, spec, a.cleanup); err != nil {
			logger.Warn().Err(err).Msg("Cleanup task not scheduled")
		}
	}

	if a.watch && a.cfg.Path() != "" {
		w, err := config.NewWatcher(a.cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Config watcher not started")
		} else {
			w.Start()
			a.watcher = w
		}
	}

	a.running = true
	logger.Info().
		Strs("connectors", a.connectors.Names()).
		Strs("systems", a.systems.Names()).
		Msg("Router started")
	return nil
}

// Stop disconnects everything and closes storage.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		a.closeDB()
		return nil
	}
	a.running = false

	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	var errs []error
	if err := a.connectors.DisconnectAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if lc, ok := a.host.(lifecycle); ok {
		if err := lc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop host: %w", err))
		}
	}
	a.closeDB()
	logger.Info().Msg("Router stopped")
	return errors.Join(errs...)
}

func (a *App) closeDB() {
	if a.ownDB && a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.db = nil
	}
}

func (a *App) cleanup() {
	n, err := a.db.CleanExpired(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("Expired key cleanup failed")
		return
	}
	if n > 0 {
		logger.Debug().Int64("removed", n).Msg("Expired keys removed")
	}
}

// applyConfig picks up the settings that can change without a restart.
func (a *App) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.Log.Level)
	a.players.SetLimits(limits(cfg))
	if a.qq != nil {
		a.qq.SetTemplates(cfg.Connectors.QQ.Templates)
	}
	if s, ok := a.systems.Get(builtin.NameKeyword); ok {
		if kw, ok := s.(*builtin.Keyword); ok {
			if err := kw.Reload(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Keyword reload failed")
			}
		}
	}
	logger.Info().Msg("Configuration applied")
}

// Connectors returns the connector manager.
func (a *App) Connectors() *connmgr.Manager { return a.connectors }

// Systems returns the system chain.
func (a *App) Systems() *system.Manager { return a.systems }

// Env returns the context handed to systems.
func (a *App) Env() *system.Env { return a.env }

// Players returns the player registry.
func (a *App) Players() *player.Registry { return a.players }
