package config

import (
	"context"
	"sync"
	"time"
)

var _ IConfig = (*InternalConfig)(nil)

// InternalConfig implements IConfig with in-memory storage. Primarily used
// by tests and embedding hosts that wire settings programmatically.
type InternalConfig struct {
	mu sync.RWMutex

	ServerAddress      string
	ServerNameValue    string
	ServerVersionValue string
	LogLevelValue      string

	RateLimitCeilingValue int
	RateLimitWindowValue  time.Duration
	RequestTimeoutValue   time.Duration

	MemoryServiceURLValue string
	MonitoringDSNValue    string

	SSLEnabledValue      bool
	SSLModeValue         string
	SSLCertFileValue     string
	SSLKeyFileValue      string
	SSLAcmeDomainsValue  []string
	SSLAcmeEmailValue    string
	SSLAcmeCacheDirValue string
}

// NewInternalConfig creates a new in-memory configuration with defaults.
func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		ServerAddress:         ":8080",
		ServerNameValue:       "meshgate",
		ServerVersionValue:    "0.0.0",
		LogLevelValue:         "info",
		RateLimitCeilingValue: DefaultRateLimitCeiling,
		RateLimitWindowValue:  DefaultRateLimitWindow,
		RequestTimeoutValue:   DefaultRequestTimeout,
		SSLModeValue:          "manual",
		SSLAcmeCacheDirValue:  "./.autocert-cache",
	}
}

func (c *InternalConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerAddress, nil
}

func (c *InternalConfig) SetListenAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerAddress = addr
}

func (c *InternalConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerNameValue, nil
}

func (c *InternalConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerVersionValue, nil
}

func (c *InternalConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogLevelValue, nil
}

func (c *InternalConfig) RateLimitCeiling() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.RateLimitCeilingValue <= 0 {
		return DefaultRateLimitCeiling, nil
	}
	return c.RateLimitCeilingValue, nil
}

func (c *InternalConfig) RateLimitWindow() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.RateLimitWindowValue <= 0 {
		return DefaultRateLimitWindow, nil
	}
	return c.RateLimitWindowValue, nil
}

func (c *InternalConfig) RequestTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.RequestTimeoutValue <= 0 {
		return DefaultRequestTimeout, nil
	}
	return c.RequestTimeoutValue, nil
}

func (c *InternalConfig) MemoryServiceURL() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MemoryServiceURLValue, nil
}

func (c *InternalConfig) MonitoringDSN() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MonitoringDSNValue, nil
}

func (c *InternalConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLEnabledValue, nil
}

func (c *InternalConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLModeValue, nil
}

func (c *InternalConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLCertFileValue, nil
}

func (c *InternalConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLKeyFileValue, nil
}

func (c *InternalConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLAcmeDomainsValue, nil
}

func (c *InternalConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLAcmeEmailValue, nil
}

func (c *InternalConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLAcmeCacheDirValue, nil
}

func (c *InternalConfig) Status(ctx context.Context) error {
	return nil
}

func (c *InternalConfig) Close() error {
	return nil
}
