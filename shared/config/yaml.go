package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var _ IConfig = (*YamlConfig)(nil)

// YamlConfig implements IConfig with YAML file-based storage. The file is
// re-read on Update; StartWatcher reloads it automatically on change.
type YamlConfig struct {
	mu         sync.RWMutex
	configPath string
	logger     *zap.Logger
	watcher    *fsnotify.Watcher

	serverAddress string
	serverName    string
	serverVersion string
	logLevel      string

	rateLimitCeiling int
	rateLimitWindow  time.Duration
	requestTimeout   time.Duration

	memoryServiceURL string
	monitoringDSN    string

	sslEnabled      bool
	sslMode         string
	sslCertFile     string
	sslKeyFile      string
	sslAcmeDomains  []string
	sslAcmeEmail    string
	sslAcmeCacheDir string
}

// yamlConfig mirrors the on-disk layout.
type yamlConfig struct {
	Server struct {
		Address  string `yaml:"address"`
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		LogLevel string `yaml:"log_level"`
		SSL      struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
	} `yaml:"server"`

	Comm struct {
		RateLimitCeiling int    `yaml:"rate_limit_ceiling"`
		RateLimitWindow  string `yaml:"rate_limit_window"`
		RequestTimeout   string `yaml:"request_timeout"`
	} `yaml:"comm"`

	Collaborators struct {
		MemoryServiceURL string `yaml:"memory_service_url"`
		MonitoringDSN    string `yaml:"monitoring_dsn"`
	} `yaml:"collaborators"`
}

// NewYamlConfig creates a new YAML-based configuration and performs the
// initial load.
func NewYamlConfig(configPath string, logger *zap.Logger) (*YamlConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &YamlConfig{
		configPath:       configPath,
		logger:           logger.Named("config"),
		rateLimitCeiling: DefaultRateLimitCeiling,
		rateLimitWindow:  DefaultRateLimitWindow,
		requestTimeout:   DefaultRequestTimeout,
		sslMode:          "manual",
		sslAcmeCacheDir:  "./.autocert-cache",
	}

	if err := c.Update(); err != nil {
		return nil, err
	}
	return c, nil
}

// Update reloads configuration from the YAML file.
func (c *YamlConfig) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("Updating configuration from YAML file", zap.String("path", c.configPath))

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return err
	}

	c.serverAddress = yamlCfg.Server.Address
	c.serverName = yamlCfg.Server.Name
	c.serverVersion = yamlCfg.Server.Version
	c.logLevel = yamlCfg.Server.LogLevel

	if yamlCfg.Comm.RateLimitCeiling > 0 {
		c.rateLimitCeiling = yamlCfg.Comm.RateLimitCeiling
	}
	if yamlCfg.Comm.RateLimitWindow != "" {
		window, err := time.ParseDuration(yamlCfg.Comm.RateLimitWindow)
		if err != nil {
			return fmt.Errorf("invalid rate_limit_window: %w", err)
		}
		c.rateLimitWindow = window
	}
	if yamlCfg.Comm.RequestTimeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Comm.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout: %w", err)
		}
		c.requestTimeout = timeout
	}

	c.memoryServiceURL = yamlCfg.Collaborators.MemoryServiceURL
	c.monitoringDSN = yamlCfg.Collaborators.MonitoringDSN

	c.sslEnabled = yamlCfg.Server.SSL.Enabled
	if yamlCfg.Server.SSL.Mode != "" {
		c.sslMode = yamlCfg.Server.SSL.Mode
	}
	c.sslCertFile = yamlCfg.Server.SSL.CertFile
	c.sslKeyFile = yamlCfg.Server.SSL.KeyFile
	c.sslAcmeDomains = yamlCfg.Server.SSL.AcmeDomains
	if yamlCfg.Server.SSL.AcmeEmail != "" {
		c.sslAcmeEmail = yamlCfg.Server.SSL.AcmeEmail
	}
	if yamlCfg.Server.SSL.AcmeCacheDir != "" {
		c.sslAcmeCacheDir = yamlCfg.Server.SSL.AcmeCacheDir
	}

	c.logger.Info("Configuration loaded",
		zap.String("address", c.serverAddress),
		zap.String("name", c.serverName),
		zap.Int("rateLimitCeiling", c.rateLimitCeiling),
		zap.Duration("rateLimitWindow", c.rateLimitWindow),
	)
	return nil
}

// StartWatcher watches the config file and reloads on change. Returns
// immediately; watching continues until Close.
func (c *YamlConfig) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(c.configPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					c.logger.Info("Config file changed, reloading", zap.String("path", c.configPath))
					if err := c.Update(); err != nil {
						c.logger.Error("Failed to reload configuration", zap.Error(err))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (c *YamlConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverAddress == "" {
		return "", fmt.Errorf("server address %w", ErrNotFound)
	}
	return c.serverAddress, nil
}

func (c *YamlConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverName == "" {
		return "meshgate", nil
	}
	return c.serverName, nil
}

func (c *YamlConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverVersion == "" {
		return "0.0.0", nil
	}
	return c.serverVersion, nil
}

func (c *YamlConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logLevel == "" {
		return "info", nil
	}
	return c.logLevel, nil
}

func (c *YamlConfig) RateLimitCeiling() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimitCeiling, nil
}

func (c *YamlConfig) RateLimitWindow() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimitWindow, nil
}

func (c *YamlConfig) RequestTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestTimeout, nil
}

func (c *YamlConfig) MemoryServiceURL() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memoryServiceURL, nil
}

func (c *YamlConfig) MonitoringDSN() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitoringDSN, nil
}

func (c *YamlConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslEnabled, nil
}

func (c *YamlConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslMode, nil
}

func (c *YamlConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslCertFile, nil
}

func (c *YamlConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslKeyFile, nil
}

func (c *YamlConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeDomains, nil
}

func (c *YamlConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeEmail, nil
}

func (c *YamlConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeCacheDir, nil
}

// Status verifies the backing file is still readable.
func (c *YamlConfig) Status(ctx context.Context) error {
	c.mu.RLock()
	path := c.configPath
	c.mu.RUnlock()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

func (c *YamlConfig) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}
