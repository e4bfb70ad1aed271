package cli

import (
	"errors"
	"sync"

	"mcqq/internal/config"
	"mcqq/internal/storage"
)

var errNoContext = errors.New("CLI context not initialized")

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Manager
	ConfigPath string
	Verbose    bool
	Quiet      bool

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(m *config.Manager, configPath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     m,
		ConfigPath: configPath,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetStorage 获取存储连接（懒加载）
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.Config.Config().Storage.Path)
	})
	return c.storage, c.storageErr
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	if c.storage != nil {
		err := c.storage.Close()
		c.storage = nil
		return err
	}
	return nil
}
