package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mcqq/pkg/connector"
	"mcqq/pkg/logger"
)

// Bridge roles.
const (
	RoleServer = "server"
	RoleClient = "client"
)

// Config 是应用配置的根结构体
type Config struct {
	ServerName    string            `mapstructure:"server_name" yaml:"server_name"`
	CommandPrefix string            `mapstructure:"command_prefix" yaml:"command_prefix"`
	Log           logger.LogConfig  `mapstructure:"log" yaml:"log"`
	Storage       StorageConfig     `mapstructure:"storage" yaml:"storage"`
	I18n          I18nConfig        `mapstructure:"i18n" yaml:"i18n"`
	Host          HostConfig        `mapstructure:"host" yaml:"host"`
	Connectors    ConnectorsConfig  `mapstructure:"connectors" yaml:"connectors"`
	Permissions   PermissionsConfig `mapstructure:"permissions" yaml:"permissions"`
	Players       PlayersConfig     `mapstructure:"players" yaml:"players"`
	Systems       SystemsConfig     `mapstructure:"systems" yaml:"systems"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// I18nConfig 翻译配置；Path 为空时只使用内置词条
type I18nConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	Lang string `mapstructure:"lang" yaml:"lang"`
}

// HostConfig 托管的 Minecraft 服务端进程
type HostConfig struct {
	Command         string     `mapstructure:"command" yaml:"command"`
	Args            []string   `mapstructure:"args" yaml:"args"`
	Workdir         string     `mapstructure:"workdir" yaml:"workdir"`
	StopCommand     string     `mapstructure:"stop_command" yaml:"stop_command"`
	CleanupSchedule string     `mapstructure:"cleanup_schedule" yaml:"cleanup_schedule"`
	RCON            RCONConfig `mapstructure:"rcon" yaml:"rcon"`
}

// RCONConfig RCON 连接配置，Timeout 单位为秒
type RCONConfig struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	Timeout  int    `mapstructure:"timeout" yaml:"timeout"`
}

// FlagsConfig 连接器开关；EnableReceive/EnableSend 为 nil 时继承 Enable
type FlagsConfig struct {
	Enable        bool  `mapstructure:"enable" yaml:"enable"`
	EnableReceive *bool `mapstructure:"enable_receive" yaml:"enable_receive,omitempty"`
	EnableSend    *bool `mapstructure:"enable_send" yaml:"enable_send,omitempty"`
}

// Resolve returns the effective switches.
func (f FlagsConfig) Resolve() connector.Flags {
	return connector.ResolveFlags(f.Enable, f.EnableReceive, f.EnableSend)
}

// ConnectorsConfig 各连接器配置
type ConnectorsConfig struct {
	Minecraft MinecraftConfig `mapstructure:"minecraft" yaml:"minecraft"`
	QQ        QQConfig        `mapstructure:"qq" yaml:"qq"`
	Bridge    BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Test      TestConfig      `mapstructure:"test" yaml:"test"`
}

// MinecraftConfig 本地服务端控制台连接器
type MinecraftConfig struct {
	FlagsConfig `mapstructure:",squash" yaml:",inline"`
	Name        string `mapstructure:"name" yaml:"name"`
	JoinLeave   bool   `mapstructure:"join_leave" yaml:"join_leave"`
}

// Template 带权重的 QQ 消息标签模板
type Template struct {
	Template string `mapstructure:"template" yaml:"template"`
	Weight   int    `mapstructure:"weight" yaml:"weight"`
}

// QQConfig OneBot v11 正向 WebSocket 连接器
type QQConfig struct {
	FlagsConfig      `mapstructure:",squash" yaml:",inline"`
	Name             string     `mapstructure:"name" yaml:"name"`
	URL              string     `mapstructure:"url" yaml:"url"`
	AccessToken      string     `mapstructure:"access_token" yaml:"access_token"`
	Groups           []string   `mapstructure:"groups" yaml:"groups"`
	AllowPrivate     bool       `mapstructure:"allow_private" yaml:"allow_private"`
	MaxMessageLength int        `mapstructure:"max_message_length" yaml:"max_message_length"`
	Templates        []Template `mapstructure:"templates" yaml:"templates"`
	GetterTimeout    float64    `mapstructure:"getter_timeout" yaml:"getter_timeout"` // 秒
	Reconnect        int        `mapstructure:"reconnect" yaml:"reconnect"`           // 秒
}

// GetterTimeoutDuration returns the getter wait bound.
func (c *QQConfig) GetterTimeoutDuration() time.Duration {
	return time.Duration(c.GetterTimeout * float64(time.Second))
}

// ReconnectInterval returns the reconnect delay.
func (c *QQConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect) * time.Second
}

// BridgeConfig 多服务器桥接
type BridgeConfig struct {
	FlagsConfig `mapstructure:",squash" yaml:",inline"`
	Name        string `mapstructure:"name" yaml:"name"`
	Role        string `mapstructure:"role" yaml:"role"`
	Listen      string `mapstructure:"listen" yaml:"listen"`
	URL         string `mapstructure:"url" yaml:"url"`
	Token       string `mapstructure:"token" yaml:"token"`
	Reconnect   int    `mapstructure:"reconnect" yaml:"reconnect"` // 秒
	DedupTTL    int    `mapstructure:"dedup_ttl" yaml:"dedup_ttl"` // 秒
}

// ReconnectInterval returns the client reconnect delay.
func (c *BridgeConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect) * time.Second
}

// TestConfig 诊断用连接器
type TestConfig struct {
	FlagsConfig `mapstructure:",squash" yaml:",inline"`
	Name        string `mapstructure:"name" yaml:"name"`
}

// PermissionsConfig 管理员列表，key 为平台名（qq、minecraft ...）
type PermissionsConfig struct {
	Admins map[string][]string `mapstructure:"admins" yaml:"admins"`
}

// PlayersConfig 绑定数量上限
type PlayersConfig struct {
	MaxJava     int `mapstructure:"max_java" yaml:"max_java"`
	MaxBedrock  int `mapstructure:"max_bedrock" yaml:"max_bedrock"`
	MaxAccounts int `mapstructure:"max_accounts" yaml:"max_accounts"`
}

// SystemsConfig 内置系统配置；systems.<name>.enable 通过 GetKeys 读取
type SystemsConfig struct {
	Bind BindConfig `mapstructure:"bind" yaml:"bind"`
}

// BindConfig 绑定系统配置
type BindConfig struct {
	RequireBind bool `mapstructure:"require_bind" yaml:"require_bind"`
	Cooldown    int  `mapstructure:"cooldown" yaml:"cooldown"` // 秒
}

// Validate 检查配置的基本一致性
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServerName) == "" {
		errs = append(errs, errors.New("server_name is required"))
	}
	if c.CommandPrefix == "" {
		errs = append(errs, errors.New("command_prefix is required"))
	}
	if r := c.Connectors.Bridge.Role; r != RoleServer && r != RoleClient {
		errs = append(errs, fmt.Errorf("connectors.bridge.role: unknown role %q", r))
	}
	if c.Connectors.QQ.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("connectors.qq.max_message_length must be positive"))
	}
	seen := map[string]string{}
	for key, name := range map[string]string{
		"minecraft": c.Connectors.Minecraft.Name,
		"qq":        c.Connectors.QQ.Name,
		"bridge":    c.Connectors.Bridge.Name,
		"test":      c.Connectors.Test.Name,
	} {
		if other, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("connectors.%s.name %q clashes with connectors.%s", key, name, other))
		}
		seen[name] = key
	}
	return errors.Join(errs...)
}

// Manager 持有 viper 实例和当前解析出的配置
type Manager struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
	cfg  *Config
	subs []func(*Config)
}

// Load 加载配置文件
// 优先级: ENV (MCQQ_*) > 配置文件 > 默认值。文件不存在时只使用默认值。
func Load(path string) (*Manager, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("MCQQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{v: v}
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		m.path = expanded
		v.SetConfigFile(expanded)
	}

	cfg, err := m.read()
	if err != nil {
		return nil, err
	}
	m.cfg = cfg
	return m, nil
}

// read 读取文件、升级旧模板格式并反序列化；调用者负责加锁
func (m *Manager) read() (*Config, error) {
	if m.path != "" {
		if err := m.v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", m.path, err)
		}
	}

	if entries, legacy := legacyTemplates(m.v); legacy {
		if m.path != "" {
			if err := rewriteTemplates(m.path, entries); err != nil {
				logger.Warn().Err(err).Str("path", m.path).Msg("Failed to write upgraded templates")
			} else {
				logger.Info().Str("path", m.path).Int("count", len(entries)).Msg("Upgraded legacy qq templates")
			}
		}
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Config 返回当前配置快照
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Path 返回配置文件路径（可能为空）
func (m *Manager) Path() string {
	return m.path
}

// GetKeys 按路径读取任意配置值，未设置时返回 def
func (m *Manager) GetKeys(path []string, def any) any {
	key := strings.Join(path, ".")
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.v.IsSet(key) {
		return def
	}
	return m.v.Get(key)
}

// GetBool 是 GetKeys 的布尔版本，类型不符时返回 def
func (m *Manager) GetBool(path []string, def bool) bool {
	switch v := m.GetKeys(path, def).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "on", "1":
			return true
		case "false", "no", "off", "0":
			return false
		}
	}
	return def
}

// GetString 是 GetKeys 的字符串版本
func (m *Manager) GetString(path []string, def string) string {
	if s, ok := m.GetKeys(path, def).(string); ok {
		return s
	}
	return def
}

// Settings 返回合并后的全部配置（默认值、文件、环境变量）
func (m *Manager) Settings() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.AllSettings()
}

// Set 设置配置值并持久化到文件
func (m *Manager) Set(key string, value any) error {
	m.mu.Lock()
	m.v.Set(key, value)
	var cfg Config
	err := m.v.Unmarshal(&cfg, decodeHook())
	if err == nil {
		m.cfg = &cfg
	}
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if m.path == "" {
		return nil
	}
	return m.Save()
}

// Save 把所有配置写回文件
func (m *Manager) Save() error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	m.mu.RLock()
	data, err := yaml.Marshal(m.v.AllSettings())
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	// 文件可能含 token，使用 0600
	return os.WriteFile(m.path, data, 0600)
}

// OnChange 注册 Reload 成功后的回调
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Reload 重新读取配置文件；失败时保留旧配置
func (m *Manager) Reload() error {
	m.mu.Lock()
	cfg, err := m.read()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = cfg
	subs := append([]func(*Config){}, m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
	return nil
}
