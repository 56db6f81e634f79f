package config

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// IConfig is the configuration surface consumed by the server components.
// Implementations must be safe for concurrent use; the YAML implementation
// reloads itself when the backing file changes.
type IConfig interface {
	// Core server settings
	ListenAddr() (string, error)
	ServerName() (string, error)
	ServerVersion() (string, error)
	LogLevel() (string, error)

	// Agent communication settings
	RateLimitCeiling() (int, error)         // allowed sends per window, per agent
	RateLimitWindow() (time.Duration, error)
	RequestTimeout() (time.Duration, error) // per-RPC deadline

	// External collaborators
	MemoryServiceURL() (string, error) // empty disables the memory tools
	MonitoringDSN() (string, error)    // Postgres DSN for the monitoring sink, empty disables it

	// SSL settings
	SSLEnabled() (bool, error)
	SSLMode() (string, error)          // "manual" or "acme"
	SSLCertFile() (string, error)      // certificate file path (manual mode)
	SSLKeyFile() (string, error)       // private key file path (manual mode)
	SSLAcmeDomains() ([]string, error) // domains for ACME
	SSLAcmeEmail() (string, error)     // contact email for ACME
	SSLAcmeCacheDir() (string, error)  // directory to cache ACME certificates

	// Lifecycle & status
	Status(ctx context.Context) error
	Close() error
}

const (
	DefaultRateLimitCeiling = 60
	DefaultRateLimitWindow  = time.Minute
	DefaultRequestTimeout   = 30 * time.Second
)
